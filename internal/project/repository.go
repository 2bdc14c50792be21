package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evcraddock/checklist-casa/internal/db"
)

// Repository provides data access for projects and their members.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a project repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectProject = `SELECT p.id, p.name, p.owner_id, u.email, p.status, p.created_at, p.finished_at
	FROM projects p JOIN users u ON u.id = p.owner_id`

// Create inserts an active project owned by ownerID.
func (r *Repository) Create(ctx context.Context, ownerID int64, name string) (*Project, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (name, owner_id) VALUES (?, ?)`, name, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(ctx, id)
}

// Get returns a project by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, selectProject+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return p, nil
}

// ListForUser returns projects the user owns or collaborates on, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64) (projects []*Project, err error) {
	rows, err := r.db.QueryContext(ctx, selectProject+`
		WHERE p.owner_id = ?
		   OR EXISTS (SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = ?)
		ORDER BY p.created_at DESC, p.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}

	return projects, nil
}

// Rename changes a project's name.
func (r *Repository) Rename(ctx context.Context, id int64, name string) error {
	return r.execOne(ctx, `UPDATE projects SET name = ? WHERE id = ?`, name, id)
}

// Finish moves an active project to finished. Finishing twice fails with
// ErrFinished.
func (r *Repository) Finish(ctx context.Context, id int64, at time.Time) error {
	err := r.execOne(ctx,
		`UPDATE projects SET status = 'finished', finished_at = ? WHERE id = ? AND status = 'active'`,
		at, id,
	)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr == nil {
			return ErrFinished
		}
	}
	return err
}

// IsMember reports whether the user owns or collaborates on the project.
func (r *Repository) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	return isMember(ctx, r.db, projectID, userID)
}

func isMember(ctx context.Context, q db.Querier, projectID, userID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM projects WHERE id = ? AND owner_id = ?)
		      + (SELECT COUNT(*) FROM project_collaborators WHERE project_id = ? AND user_id = ?)`,
		projectID, userID, projectID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return n > 0, nil
}

// Members returns the owner followed by collaborators in the order they joined.
func (r *Repository) Members(ctx context.Context, projectID int64) (members []*Member, err error) {
	owner := &Member{Owner: true}
	err = r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.name, p.created_at
		 FROM projects p JOIN users u ON u.id = p.owner_id
		 WHERE p.id = ?`,
		projectID,
	).Scan(&owner.UserID, &owner.Email, &owner.Name, &owner.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying owner: %w", err)
	}
	members = append(members, owner)

	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, c.added_at
		 FROM project_collaborators c JOIN users u ON u.id = c.user_id
		 WHERE c.project_id = ?
		 ORDER BY c.added_at, u.id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collaborators: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning collaborator: %w", err)
		}
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collaborators: %w", err)
	}

	return members, nil
}

// RemoveCollaborator removes a collaborator from a project.
func (r *Repository) RemoveCollaborator(ctx context.Context, projectID, userID int64) error {
	return r.execOne(ctx,
		`DELETE FROM project_collaborators WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	)
}

// execOne runs a statement that must affect exactly one row.
func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing update: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var finished sql.NullTime
	if err := s.Scan(&p.ID, &p.Name, &p.OwnerID, &p.OwnerEmail, &p.Status, &p.CreatedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		p.FinishedAt = &t
	}
	return &p, nil
}

// IsMemberEmail reports whether a user with the email owns or collaborates on
// the project.
func (r *Repository) IsMemberEmail(ctx context.Context, projectID int64, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users u
		 WHERE LOWER(u.email) = LOWER(?)
		   AND (u.id = (SELECT owner_id FROM projects WHERE id = ?)
		        OR u.id IN (SELECT user_id FROM project_collaborators WHERE project_id = ?))`,
		email, projectID, projectID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking membership by email: %w", err)
	}
	return n > 0, nil
}
