package criteria

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evcraddock/checklist-casa/internal/db"
)

// Repository provides CRUD operations for criteria.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a criteria repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectCriteria = `SELECT id, project_id, name, type, weight, sort_order, created_at FROM criteria`

// Create adds a criterion to the end of a project's list.
func (r *Repository) Create(ctx context.Context, projectID int64, in Input) (*Criteria, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO criteria (project_id, name, type, weight, sort_order)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM criteria WHERE project_id = ?))`,
		projectID, in.Name, in.Type, in.Weight, projectID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("inserting criteria: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(ctx, id)
}

// Get returns a criterion by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Criteria, error) {
	c, err := scanCriteria(r.db.QueryRowContext(ctx, selectCriteria+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying criteria: %w", err)
	}
	return c, nil
}

// GetInProject returns a criterion only if it belongs to the project.
func (r *Repository) GetInProject(ctx context.Context, projectID, id int64) (*Criteria, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ProjectID != projectID {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListByProject returns a project's criteria in display order.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) (list []*Criteria, err error) {
	rows, err := r.db.QueryContext(ctx, selectCriteria+` WHERE project_id = ? ORDER BY sort_order, created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing criteria: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		c, err := scanCriteria(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning criteria: %w", err)
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating criteria: %w", err)
	}

	return list, nil
}

// Update changes a criterion's name, type and weight. Changing the type of a
// criterion that already has assessments fails with ErrTypeLocked.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (*Criteria, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var current Type
		if err := tx.QueryRowContext(ctx, `SELECT type FROM criteria WHERE id = ?`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("reading criteria type: %w", err)
		}

		if current != in.Type {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM visit_assessments WHERE criteria_id = ?`, id,
			).Scan(&n); err != nil {
				return fmt.Errorf("counting assessments: %w", err)
			}
			if n > 0 {
				return ErrTypeLocked
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE criteria SET name = ?, type = ?, weight = ? WHERE id = ?`,
			in.Name, in.Type, in.Weight, id,
		); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateName
			}
			return fmt.Errorf("updating criteria: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// Delete removes a criterion and, by cascade, its assessments.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM criteria WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting criteria: %w", err)
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

// Reorder assigns sort positions following ids. IDs that do not belong to the
// project are ignored.
func (r *Repository) Reorder(ctx context.Context, projectID int64, ids []int64) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE criteria SET sort_order = ? WHERE id = ? AND project_id = ?`,
				i, id, projectID,
			); err != nil {
				return fmt.Errorf("reordering criteria %d: %w", id, err)
			}
		}
		return nil
	})
}

// AddDefaults appends the starter criteria to a project, skipping names the
// project already uses. Returns the number of criteria added.
func (r *Repository) AddDefaults(ctx context.Context, projectID int64) (int, error) {
	added := 0
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM criteria WHERE project_id = ?`, projectID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading next order: %w", err)
		}

		for _, d := range Defaults {
			result, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO criteria (project_id, name, type, sort_order) VALUES (?, ?, ?, ?)`,
				projectID, d.Name, d.Type, next,
			)
			if err != nil {
				return fmt.Errorf("adding default %q: %w", d.Name, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("checking rows affected: %w", err)
			}
			if n > 0 {
				added++
				next++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCriteria(s scanner) (*Criteria, error) {
	var c Criteria
	var weight sql.NullFloat64
	if err := s.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Type, &weight, &c.SortOrder, &c.CreatedAt); err != nil {
		return nil, err
	}
	if weight.Valid {
		w := weight.Float64
		c.Weight = &w
	}
	return &c, nil
}
