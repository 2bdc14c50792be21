package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/db"
)

// Repository provides CRUD operations for visits and their photos.
type Repository struct {
	q db.Querier
}

// NewRepository creates a visit repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository that runs its statements inside tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx}
}

const selectVisit = `SELECT v.id, v.project_id, v.name, v.address, v.visit_date, v.realtor_id,
	COALESCE(rt.name, ''), v.notes, v.created_by, u.email, v.created_at, v.updated_at
	FROM visits v
	JOIN users u ON u.id = v.created_by
	LEFT JOIN realtors rt ON rt.id = v.realtor_id`

// Create records a new visit in a project.
func (r *Repository) Create(ctx context.Context, projectID, createdBy int64, in Input) (*Visit, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	if err := r.checkRealtor(ctx, projectID, in.RealtorID); err != nil {
		return nil, err
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO visits (project_id, name, address, visit_date, realtor_id, notes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, in.Name, in.Address, in.VisitDate, in.RealtorID, in.Notes, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting visit: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(ctx, projectID, id)
}

// Get returns a visit belonging to the project.
func (r *Repository) Get(ctx context.Context, projectID, id int64) (*Visit, error) {
	v, err := scanVisit(r.q.QueryRowContext(ctx, selectVisit+` WHERE v.id = ? AND v.project_id = ?`, id, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying visit: %w", err)
	}
	return v, nil
}

// ListByProject returns a project's visits, newest visit date first, then
// newest created.
func (r *Repository) ListByProject(ctx context.Context, projectID int64, f Filter) (visits []*Visit, err error) {
	query := selectVisit + ` WHERE v.project_id = ?`
	args := []any{projectID}

	if f.RealtorID != nil {
		query += ` AND v.realtor_id = ?`
		args = append(args, *f.RealtorID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		query += ` AND (v.name LIKE ? ESCAPE '\' OR v.address LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY v.visit_date DESC, v.created_at DESC, v.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visits: %w", err)
	}

	return visits, nil
}

// Count returns the number of visits in a project.
func (r *Repository) Count(ctx context.Context, projectID int64) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting visits: %w", err)
	}
	return n, nil
}

// ClaimConfirmation marks the visit's confirmation email as sent. It reports
// false when it was already claimed, so each visit is confirmed at most once.
func (r *Repository) ClaimConfirmation(ctx context.Context, projectID, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE visits SET confirmation_sent_at = CURRENT_TIMESTAMP
		WHERE id = ? AND project_id = ? AND confirmation_sent_at IS NULL`, id, projectID)
	if err != nil {
		return false, fmt.Errorf("claiming confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming confirmation: %w", err)
	}
	return n == 1, nil
}

// ReleaseConfirmation undoes ClaimConfirmation after a failed delivery.
func (r *Repository) ReleaseConfirmation(ctx context.Context, projectID, id int64) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE visits SET confirmation_sent_at = NULL WHERE id = ? AND project_id = ?`, id, projectID); err != nil {
		return fmt.Errorf("releasing confirmation: %w", err)
	}
	return nil
}

// Update changes a visit's details.
func (r *Repository) Update(ctx context.Context, projectID, id int64, in Input) (*Visit, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	if err := r.checkRealtor(ctx, projectID, in.RealtorID); err != nil {
		return nil, err
	}

	result, err := r.q.ExecContext(ctx,
		`UPDATE visits SET name = ?, address = ?, visit_date = ?, realtor_id = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND project_id = ?`,
		in.Name, in.Address, in.VisitDate, in.RealtorID, in.Notes, id, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating visit: %w", err)
	}
	if err := expectOne(result, ErrNotFound); err != nil {
		return nil, err
	}

	return r.Get(ctx, projectID, id)
}

// Delete removes a visit with its assessments and photos, returning the
// photo keys so the caller can remove the stored files.
func (r *Repository) Delete(ctx context.Context, projectID, id int64) ([]string, error) {
	if _, err := r.Get(ctx, projectID, id); err != nil {
		return nil, err
	}

	photos, err := r.ListPhotos(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM visits WHERE id = ? AND project_id = ?`, id, projectID)
	if err != nil {
		return nil, fmt.Errorf("deleting visit: %w", err)
	}
	if err := expectOne(result, ErrNotFound); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(photos))
	for _, p := range photos {
		keys = append(keys, p.Key)
	}
	return keys, nil
}

func (r *Repository) checkRealtor(ctx context.Context, projectID int64, realtorID *int64) error {
	if realtorID == nil {
		return nil
	}
	var n int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM realtors WHERE id = ? AND project_id = ?`, *realtorID, projectID,
	).Scan(&n); err != nil {
		return fmt.Errorf("checking realtor: %w", err)
	}
	if n == 0 {
		return ErrRealtorNotFound
	}
	return nil
}

func expectOne(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(s scanner) (*Visit, error) {
	var v Visit
	var realtorID sql.NullInt64
	if err := s.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Address, &v.VisitDate, &realtorID,
		&v.RealtorName, &v.Notes, &v.CreatedBy, &v.CreatorEmail, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if realtorID.Valid {
		id := realtorID.Int64
		v.RealtorID = &id
	}
	return &v, nil
}
