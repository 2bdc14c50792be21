// Package criteria provides the per-project evaluation criteria catalog.
package criteria

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the kind of value an assessment holds for a criterion.
type Type string

const (
	Boolean Type = "boolean"
	Numeric Type = "numeric"
	Text    Type = "text"
	Rating  Type = "rating"
)

// ValidTypes is the set of allowed criteria types in display order.
var ValidTypes = []Type{Boolean, Numeric, Text, Rating}

// IsValid checks if a criteria type is recognized.
func (t Type) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Label returns a human-readable label for the type.
func (t Type) Label() string {
	switch t {
	case Boolean:
		return "Yes/No"
	case Numeric:
		return "Number"
	case Text:
		return "Text"
	case Rating:
		return "Rating 1-5"
	default:
		return string(t)
	}
}

// Quantitative reports whether values of this type take part in min/max statistics.
func (t Type) Quantitative() bool {
	return t == Numeric || t == Rating
}

const (
	MinWeight     = 0.01
	MaxWeight     = 9.99
	maxNameLength = 100
)

var (
	// ErrDuplicateName is returned when a project already has a criterion with the name.
	ErrDuplicateName = errors.New("a criterion with this name already exists in the project")
	// ErrTypeLocked is returned when changing the type of a criterion that has assessments.
	ErrTypeLocked = errors.New("type cannot change once visits have been scored against this criterion")
	// ErrNotFound is returned when a criterion does not exist.
	ErrNotFound = errors.New("criterion not found")
)

// Criteria is one evaluation criterion of a project.
type Criteria struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Weight    *float64  `json:"weight,omitempty"`
	SortOrder int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// Input holds the user-editable fields of a criterion.
type Input struct {
	Name   string
	Type   Type
	Weight *float64
}

// Normalize trims the name, validates all fields and rounds the weight to two
// decimal places.
func (in Input) Normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("name is required")
	}
	if len(in.Name) > maxNameLength {
		return in, fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	if !in.Type.IsValid() {
		return in, fmt.Errorf("invalid criteria type: %q", in.Type)
	}
	if in.Weight != nil {
		w := math.Round(*in.Weight*100) / 100
		if w < MinWeight || w > MaxWeight {
			return in, fmt.Errorf("weight must be between %.2f and %.2f", MinWeight, MaxWeight)
		}
		in.Weight = &w
	}
	return in, nil
}

// ParseWeight parses an optional weight form value. An empty string means no weight.
func ParseWeight(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("weight must be a number")
	}
	return &w, nil
}

// Default is a starter criterion offered to new projects.
type Default struct {
	Name string
	Type Type
}

// Defaults is the starter set added by Repository.AddDefaults.
var Defaults = []Default{
	{"Price", Numeric},
	{"Bedrooms", Numeric},
	{"Bathrooms", Numeric},
	{"Square Footage", Numeric},
	{"Parking", Boolean},
	{"Natural Light", Rating},
	{"Neighborhood", Rating},
	{"Overall Impression", Rating},
}
