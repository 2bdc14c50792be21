package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/checklist-casa/internal/db"
)

const selectInvitation = `SELECT i.id, i.project_id, i.email, i.invited_by, u.email, i.token, i.accepted, i.created_at, i.accepted_at
	FROM project_invitations i JOIN users u ON u.id = i.invited_by`

// CreateInvitation stores a pending invitation with the given token.
func (r *Repository) CreateInvitation(ctx context.Context, projectID int64, email string, invitedBy int64, token string) (*Invitation, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO project_invitations (project_id, email, invited_by, token) VALUES (?, ?, ?, ?)`,
		projectID, email, invitedBy, token,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateInvitation
		}
		return nil, fmt.Errorf("inserting invitation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.invitation(ctx, r.db, `WHERE i.id = ?`, id)
}

// InvitationByToken looks up an invitation by its token.
func (r *Repository) InvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.invitation(ctx, r.db, `WHERE i.token = ?`, token)
}

// PendingInvitations lists a project's unaccepted invitations, newest first.
func (r *Repository) PendingInvitations(ctx context.Context, projectID int64) (list []*Invitation, err error) {
	rows, err := r.db.QueryContext(ctx,
		selectInvitation+` WHERE i.project_id = ? AND i.accepted = 0 ORDER BY i.created_at DESC, i.id DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %w", err)
		}
		list = append(list, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitations: %w", err)
	}

	return list, nil
}

// DeleteInvitation removes an invitation belonging to the project.
func (r *Repository) DeleteInvitation(ctx context.Context, projectID, id int64) error {
	err := r.execOne(ctx,
		`DELETE FROM project_invitations WHERE id = ? AND project_id = ?`, id, projectID,
	)
	if errors.Is(err, ErrNotFound) {
		return ErrInvitationNotFound
	}
	return err
}

// AcceptInvitation marks the invitation accepted and adds the user as a
// collaborator in a single transaction. The user's email must match the
// invitation's, case-insensitively, and the project must be active. Owners
// and existing collaborators are not added twice.
func (r *Repository) AcceptInvitation(ctx context.Context, token string, userID int64, email string, at time.Time) (*Invitation, error) {
	var accepted *Invitation
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		inv, err := r.invitation(ctx, tx, `WHERE i.token = ?`, token)
		if err != nil {
			return err
		}
		if inv.Accepted {
			return ErrInvitationUsed
		}
		if !strings.EqualFold(inv.Email, strings.TrimSpace(email)) {
			return ErrEmailMismatch
		}

		var status Status
		if err := tx.QueryRowContext(ctx, `SELECT status FROM projects WHERE id = ?`, inv.ProjectID).Scan(&status); err != nil {
			return fmt.Errorf("reading project status: %w", err)
		}
		if status != Active {
			return ErrFinished
		}

		member, err := isMember(ctx, tx, inv.ProjectID, userID)
		if err != nil {
			return err
		}
		if !member {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO project_collaborators (project_id, user_id) VALUES (?, ?)`,
				inv.ProjectID, userID,
			); err != nil {
				return fmt.Errorf("adding collaborator: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE project_invitations SET accepted = 1, accepted_at = ? WHERE id = ?`,
			at, inv.ID,
		); err != nil {
			return fmt.Errorf("marking invitation accepted: %w", err)
		}

		inv.Accepted = true
		inv.AcceptedAt = &at
		accepted = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func (r *Repository) invitation(ctx context.Context, q db.Querier, where string, arg any) (*Invitation, error) {
	inv, err := scanInvitation(q.QueryRowContext(ctx, selectInvitation+` `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invitation: %w", err)
	}
	return inv, nil
}

func scanInvitation(s scanner) (*Invitation, error) {
	var inv Invitation
	var acceptedAt sql.NullTime
	if err := s.Scan(&inv.ID, &inv.ProjectID, &inv.Email, &inv.InvitedBy, &inv.InviterEmail,
		&inv.Token, &inv.Accepted, &inv.CreatedAt, &acceptedAt); err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return &inv, nil
}
