// Package assessment stores how a visit scored against each criterion.
package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/criteria"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ErrRatingRange is returned for ratings outside [MinRating, MaxRating].
var ErrRatingRange = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)

// Value is a typed assessment value. Exactly one variant is held at a time;
// the zero Value is unset.
type Value struct {
	kind    criteria.Type
	boolean bool
	numeric float64
	rating  int
	text    string
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	return Value{kind: criteria.Boolean, boolean: b}
}

// NumericValue returns a numeric value rounded to two decimal places.
func NumericValue(f float64) Value {
	return Value{kind: criteria.Numeric, numeric: math.Round(f*100) / 100}
}

// RatingValue returns a rating value, rejecting anything outside 1..5.
func RatingValue(r int) (Value, error) {
	if r < MinRating || r > MaxRating {
		return Value{}, ErrRatingRange
	}
	return Value{kind: criteria.Rating, rating: r}, nil
}

// TextValue returns a text value. Empty text is unset.
func TextValue(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: criteria.Text, text: s}
}

// Type returns the variant held, or "" when unset.
func (v Value) Type() criteria.Type { return v.kind }

// IsSet reports whether the value holds anything.
func (v Value) IsSet() bool { return v.kind != "" }

// Bool returns the boolean variant.
func (v Value) Bool() (bool, bool) { return v.boolean, v.kind == criteria.Boolean }

// Numeric returns the numeric variant.
func (v Value) Numeric() (float64, bool) { return v.numeric, v.kind == criteria.Numeric }

// Rating returns the rating variant.
func (v Value) Rating() (int, bool) { return v.rating, v.kind == criteria.Rating }

// Text returns the text variant.
func (v Value) Text() (string, bool) { return v.text, v.kind == criteria.Text }

// Float returns the value as a number for numeric and rating variants.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case criteria.Numeric:
		return v.numeric, true
	case criteria.Rating:
		return float64(v.rating), true
	}
	return 0, false
}

// String formats the value for display: Yes/No, "n/5", a decimal without
// trailing zeros, text as-is, or "-" when unset.
func (v Value) String() string {
	switch v.kind {
	case criteria.Boolean:
		if v.boolean {
			return "Yes"
		}
		return "No"
	case criteria.Rating:
		return fmt.Sprintf("%d/5", v.rating)
	case criteria.Numeric:
		return FormatDecimal(v.numeric)
	case criteria.Text:
		return v.text
	}
	return "-"
}

// Raw returns the value as it would be typed into a form field, "" when unset.
func (v Value) Raw() string {
	switch v.kind {
	case criteria.Boolean:
		if v.boolean {
			return "yes"
		}
		return "no"
	case criteria.Rating:
		return strconv.Itoa(v.rating)
	case criteria.Numeric:
		return FormatDecimal(v.numeric)
	case criteria.Text:
		return v.text
	}
	return ""
}

// FormatDecimal renders f with at most two decimals and no trailing zeros.
func FormatDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

var falsy = map[string]bool{
	"false": true, "f": true, "0": true, "no": true, "n": true, "off": true,
}

// Parse coerces raw form input into the variant for typ. Blank input yields
// an unset Value. Booleans are truthy unless raw is a recognised false word.
func Parse(typ criteria.Type, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, nil
	}

	switch typ {
	case criteria.Boolean:
		return BoolValue(!falsy[strings.ToLower(raw)]), nil
	case criteria.Numeric:
		cleaned := strings.NewReplacer(",", "", "$", "").Replace(raw)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%q is not a number", raw)
		}
		return NumericValue(f), nil
	case criteria.Rating:
		r, err := strconv.Atoi(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a whole number", raw)
		}
		return RatingValue(r)
	case criteria.Text:
		return TextValue(raw), nil
	}
	return Value{}, fmt.Errorf("unknown criteria type %q", typ)
}

// ErrTypeMismatch is returned when storing a value whose variant differs from
// the criterion's type.
var ErrTypeMismatch = errors.New("value does not match criteria type")

// columns is the four-slot storage form of a Value. Every write sets all four.
type columns struct {
	text    string
	numeric *float64
	boolean *bool
	rating  *int
}

func (v Value) columns() columns {
	var c columns
	switch v.kind {
	case criteria.Boolean:
		b := v.boolean
		c.boolean = &b
	case criteria.Numeric:
		n := v.numeric
		c.numeric = &n
	case criteria.Rating:
		r := v.rating
		c.rating = &r
	case criteria.Text:
		c.text = v.text
	}
	return c
}

// decode reads the slot selected by typ; other slots are ignored.
func decode(typ criteria.Type, c columns) Value {
	switch typ {
	case criteria.Boolean:
		if c.boolean != nil {
			return BoolValue(*c.boolean)
		}
	case criteria.Numeric:
		if c.numeric != nil {
			return NumericValue(*c.numeric)
		}
	case criteria.Rating:
		if c.rating != nil {
			if v, err := RatingValue(*c.rating); err == nil {
				return v
			}
		}
	case criteria.Text:
		return TextValue(c.text)
	}
	return Value{}
}

// MarshalJSON encodes the value as its native JSON type, or null when unset.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case criteria.Boolean:
		return json.Marshal(v.boolean)
	case criteria.Numeric:
		return json.Marshal(v.numeric)
	case criteria.Rating:
		return json.Marshal(v.rating)
	case criteria.Text:
		return json.Marshal(v.text)
	}
	return []byte("null"), nil
}
