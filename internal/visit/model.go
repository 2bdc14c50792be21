// Package visit provides the property visit domain model and data access.
package visit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage and display format of visit dates.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when a visit does not exist in the project.
	ErrNotFound = errors.New("visit not found")
	// ErrPhotoNotFound is returned when a photo does not belong to the visit.
	ErrPhotoNotFound = errors.New("photo not found")
	// ErrRealtorNotFound is returned when the chosen realtor is not in the project.
	ErrRealtorNotFound = errors.New("realtor not found in this project")
)

// Visit represents a recorded visit to a candidate property.
type Visit struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	VisitDate    string    `json:"visit_date"` // YYYY-MM-DD
	RealtorID    *int64    `json:"realtor_id,omitempty"`
	RealtorName  string    `json:"realtor_name,omitempty"`
	Notes        string    `json:"notes"`
	CreatedBy    int64     `json:"created_by"`
	CreatorEmail string    `json:"created_by_email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Input holds the user-editable visit fields.
type Input struct {
	Name      string
	Address   string
	VisitDate string
	RealtorID *int64
	Notes     string
}

// Normalize trims fields and validates them.
func (in Input) Normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	in.VisitDate = strings.TrimSpace(in.VisitDate)
	in.Notes = strings.TrimSpace(in.Notes)

	if in.Name == "" {
		return in, fmt.Errorf("name is required")
	}
	if len(in.Name) > 200 {
		return in, fmt.Errorf("name must be at most 200 characters")
	}
	if in.Address == "" {
		return in, fmt.Errorf("address is required")
	}
	if _, err := time.Parse(DateLayout, in.VisitDate); err != nil {
		return in, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}
	return in, nil
}

// Filter narrows a visit listing.
type Filter struct {
	RealtorID *int64
	// Query matches name or address, case-insensitively.
	Query string
	Limit int
}

// Photo is an image attached to a visit.
type Photo struct {
	ID         int64     `json:"id"`
	VisitID    int64     `json:"visit_id"`
	Key        string    `json:"key"`
	Caption    string    `json:"caption"`
	SortOrder  int       `json:"order"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// URL returns the path the photo is served from.
func (p *Photo) URL() string {
	return "/media/" + p.Key
}
