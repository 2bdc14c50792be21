package assessment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/db"
)

// Repository persists assessment values.
type Repository struct {
	q db.Querier
}

// NewRepository creates an assessment repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository that runs its statements inside tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx}
}

// Set stores v for (visit, criterion). The variant must match the criterion's
// current type; an unset v removes the assessment. All four storage slots are
// rewritten on every write.
func (r *Repository) Set(ctx context.Context, visitID int64, c *criteria.Criteria, v Value) error {
	if !v.IsSet() {
		return r.Clear(ctx, visitID, c.ID)
	}
	if v.Type() != c.Type {
		return fmt.Errorf("%w: %s is %s, got %s", ErrTypeMismatch, c.Name, c.Type, v.Type())
	}

	cols := v.columns()
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO visit_assessments (visit_id, criteria_id, value_text, value_numeric, value_boolean, value_rating)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (visit_id, criteria_id) DO UPDATE SET
		     value_text = excluded.value_text,
		     value_numeric = excluded.value_numeric,
		     value_boolean = excluded.value_boolean,
		     value_rating = excluded.value_rating,
		     updated_at = CURRENT_TIMESTAMP`,
		visitID, c.ID, cols.text, cols.numeric, cols.boolean, cols.rating,
	); err != nil {
		return fmt.Errorf("saving assessment: %w", err)
	}
	return nil
}

// SetRaw parses raw for the criterion's type and stores it.
func (r *Repository) SetRaw(ctx context.Context, visitID int64, c *criteria.Criteria, raw string) error {
	v, err := Parse(c.Type, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return r.Set(ctx, visitID, c, v)
}

// Replace stores one value per criterion in list, clearing those with no
// entry in values.
func (r *Repository) Replace(ctx context.Context, visitID int64, list []*criteria.Criteria, values map[int64]Value) error {
	for _, c := range list {
		if err := r.Set(ctx, visitID, c, values[c.ID]); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes the assessment for (visit, criterion), if any.
func (r *Repository) Clear(ctx context.Context, visitID, criteriaID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM visit_assessments WHERE visit_id = ? AND criteria_id = ?`,
		visitID, criteriaID,
	); err != nil {
		return fmt.Errorf("clearing assessment: %w", err)
	}
	return nil
}

// Get returns the value for (visit, criterion) decoded by the criterion's
// current type. Missing assessments yield an unset Value.
func (r *Repository) Get(ctx context.Context, visitID, criteriaID int64) (Value, error) {
	var typ criteria.Type
	var cols columns
	err := r.q.QueryRowContext(ctx,
		`SELECT c.type, a.value_text, a.value_numeric, a.value_boolean, a.value_rating
		 FROM visit_assessments a JOIN criteria c ON c.id = a.criteria_id
		 WHERE a.visit_id = ? AND a.criteria_id = ?`,
		visitID, criteriaID,
	).Scan(&typ, &cols.text, &cols.numeric, &cols.boolean, &cols.rating)
	if err == sql.ErrNoRows {
		return Value{}, nil
	}
	if err != nil {
		return Value{}, fmt.Errorf("querying assessment: %w", err)
	}
	return decode(typ, cols), nil
}

// ListByVisit returns a visit's values keyed by criteria ID.
func (r *Repository) ListByVisit(ctx context.Context, visitID int64) (map[int64]Value, error) {
	all, err := r.list(ctx, `WHERE a.visit_id = ?`, visitID)
	if err != nil {
		return nil, err
	}
	if m, ok := all[visitID]; ok {
		return m, nil
	}
	return map[int64]Value{}, nil
}

// ListByProject returns every value in a project keyed by visit ID then
// criteria ID.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) (map[int64]map[int64]Value, error) {
	return r.list(ctx, `WHERE c.project_id = ?`, projectID)
}

// Count returns the number of assessments stored for a criterion.
func (r *Repository) Count(ctx context.Context, criteriaID int64) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visit_assessments WHERE criteria_id = ?`, criteriaID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting assessments: %w", err)
	}
	return n, nil
}

func (r *Repository) list(ctx context.Context, where string, arg any) (result map[int64]map[int64]Value, err error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT a.visit_id, a.criteria_id, c.type, a.value_text, a.value_numeric, a.value_boolean, a.value_rating
		 FROM visit_assessments a JOIN criteria c ON c.id = a.criteria_id `+where,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	result = make(map[int64]map[int64]Value)
	for rows.Next() {
		var visitID, criteriaID int64
		var typ criteria.Type
		var cols columns
		if err := rows.Scan(&visitID, &criteriaID, &typ, &cols.text, &cols.numeric, &cols.boolean, &cols.rating); err != nil {
			return nil, fmt.Errorf("scanning assessment: %w", err)
		}
		v := decode(typ, cols)
		if !v.IsSet() {
			continue
		}
		if result[visitID] == nil {
			result[visitID] = make(map[int64]Value)
		}
		result[visitID][criteriaID] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assessments: %w", err)
	}

	return result, nil
}
