// Package realtor provides the per-project directory of realtors.
package realtor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/checklist-casa/internal/db"
)

var (
	// ErrDuplicateName is returned when a project already lists a realtor with the name.
	ErrDuplicateName = errors.New("a realtor with this name already exists in the project")
	// ErrNotFound is returned when a realtor does not exist in the project.
	ErrNotFound = errors.New("realtor not found")
)

// Realtor is an agent who showed one or more properties.
type Realtor struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input holds the editable realtor fields.
type Input struct {
	Name    string
	Company string
	Phone   string
	Email   string
}

func (in Input) normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Company = strings.TrimSpace(in.Company)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return in, fmt.Errorf("name is required")
	}
	if len(in.Name) > 100 {
		return in, fmt.Errorf("name must be at most 100 characters")
	}
	return in, nil
}

// Repository provides CRUD operations for realtors.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a realtor repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectRealtor = `SELECT id, project_id, name, company, phone, email, created_by, created_at, updated_at FROM realtors`

// Create adds a realtor to a project.
func (r *Repository) Create(ctx context.Context, projectID, createdBy int64, in Input) (*Realtor, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO realtors (project_id, name, company, phone, email, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, in.Name, in.Company, in.Phone, in.Email, createdBy,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("inserting realtor: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(ctx, projectID, id)
}

// Get returns a realtor belonging to the project.
func (r *Repository) Get(ctx context.Context, projectID, id int64) (*Realtor, error) {
	var rt Realtor
	err := r.db.QueryRowContext(ctx, selectRealtor+` WHERE id = ? AND project_id = ?`, id, projectID).Scan(
		&rt.ID, &rt.ProjectID, &rt.Name, &rt.Company, &rt.Phone, &rt.Email, &rt.CreatedBy, &rt.CreatedAt, &rt.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying realtor: %w", err)
	}
	return &rt, nil
}

// ListByProject returns a project's realtors sorted by name.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) (list []*Realtor, err error) {
	rows, err := r.db.QueryContext(ctx, selectRealtor+` WHERE project_id = ? ORDER BY name COLLATE NOCASE, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing realtors: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var rt Realtor
		if err := rows.Scan(&rt.ID, &rt.ProjectID, &rt.Name, &rt.Company, &rt.Phone, &rt.Email, &rt.CreatedBy, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning realtor: %w", err)
		}
		list = append(list, &rt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating realtors: %w", err)
	}

	return list, nil
}

// Update changes a realtor's details.
func (r *Repository) Update(ctx context.Context, projectID, id int64, in Input) (*Realtor, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE realtors SET name = ?, company = ?, phone = ?, email = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND project_id = ?`,
		in.Name, in.Company, in.Phone, in.Email, id, projectID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("updating realtor: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return r.Get(ctx, projectID, id)
}

// Delete removes a realtor. Visits that referenced it keep their data with no realtor.
func (r *Repository) Delete(ctx context.Context, projectID, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM realtors WHERE id = ? AND project_id = ?`, id, projectID)
	if err != nil {
		return fmt.Errorf("deleting realtor: %w", err)
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
