// Package compare builds the side-by-side comparison of a project's visits.
package compare

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

var (
	// ErrNoVisits means there is nothing to compare yet.
	ErrNoVisits = errors.New("log a visit before comparing")
	// ErrNoCriteria means visits exist but nothing to compare them on.
	ErrNoCriteria = errors.New("add criteria before comparing visits")
)

// Check enforces the comparison preconditions on a project's totals.
func Check(visitCount, criteriaCount int) error {
	if visitCount == 0 {
		return ErrNoVisits
	}
	if criteriaCount == 0 {
		return ErrNoCriteria
	}
	return nil
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection returns Desc for "desc" and Asc otherwise.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Desc)) {
		return Desc
	}
	return Asc
}

// Toggle returns the opposite direction.
func (d Direction) Toggle() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// Highlight marks a cell as the best or worst value of its criterion.
type Highlight string

const (
	None  Highlight = ""
	Best  Highlight = "best"
	Worst Highlight = "worst"
)

// Cell is one visit's value for one criterion.
type Cell struct {
	CriteriaID int64            `json:"criteria_id"`
	Value      assessment.Value `json:"value"`
	Display    string           `json:"display"`
	Highlight  Highlight        `json:"highlight,omitempty"`
}

// Row is one visit across all criteria, in criteria display order.
type Row struct {
	Visit *visit.Visit `json:"visit"`
	Cells []Cell       `json:"cells"`
}

// Stat summarizes the numeric values of one criterion.
type Stat struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Spread reports whether the values differ, which is when highlighting applies.
func (s Stat) Spread() bool {
	return s.Count > 0 && s.Min != s.Max
}

// Options control ordering of the rows.
type Options struct {
	// SortBy is a criteria ID; zero keeps the input visit order.
	SortBy int64
	Dir    Direction
}

// Table is the comparison result.
type Table struct {
	Criteria []*criteria.Criteria `json:"criteria"`
	Rows     []Row                `json:"rows"`
	// Stats holds an entry only for numeric and rating criteria with at least
	// one value.
	Stats  map[int64]Stat `json:"stats"`
	SortBy int64          `json:"sort_by,omitempty"`
	Dir    Direction      `json:"dir,omitempty"`
}

// Build lays out visits against criteria using values keyed by visit ID then
// criteria ID. Callers check preconditions with Check first.
func Build(visits []*visit.Visit, crit []*criteria.Criteria, values map[int64]map[int64]assessment.Value, opts Options) *Table {
	t := &Table{
		Criteria: crit,
		Rows:     make([]Row, 0, len(visits)),
		Stats:    make(map[int64]Stat),
	}

	collected := make(map[int64][]float64)
	for _, v := range visits {
		row := Row{Visit: v, Cells: make([]Cell, 0, len(crit))}
		for _, c := range crit {
			val := values[v.ID][c.ID]
			if val.IsSet() && val.Type() != c.Type {
				val = assessment.Value{}
			}
			row.Cells = append(row.Cells, Cell{CriteriaID: c.ID, Value: val, Display: val.String()})
			if c.Type.Quantitative() {
				if f, ok := val.Float(); ok {
					collected[c.ID] = append(collected[c.ID], f)
				}
			}
		}
		t.Rows = append(t.Rows, row)
	}

	for id, vals := range collected {
		s := Stat{Count: len(vals), Min: vals[0], Max: vals[0]}
		for _, f := range vals[1:] {
			s.Min = math.Min(s.Min, f)
			s.Max = math.Max(s.Max, f)
		}
		t.Stats[id] = s
	}

	for i := range t.Rows {
		for j := range t.Rows[i].Cells {
			cell := &t.Rows[i].Cells[j]
			cell.Highlight = t.highlight(cell)
		}
	}

	if idx := t.criteriaIndex(opts.SortBy); idx >= 0 {
		t.SortBy = opts.SortBy
		t.Dir = opts.Dir
		if t.Dir == "" {
			t.Dir = Asc
		}
		sortRows(t.Rows, idx, t.Dir)
	}

	return t
}

func (t *Table) highlight(cell *Cell) Highlight {
	s, ok := t.Stats[cell.CriteriaID]
	if !ok || !s.Spread() {
		return None
	}
	f, ok := cell.Value.Float()
	if !ok {
		return None
	}
	switch f {
	case s.Max:
		return Best
	case s.Min:
		return Worst
	}
	return None
}

func (t *Table) criteriaIndex(id int64) int {
	if id == 0 {
		return -1
	}
	for i, c := range t.Criteria {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// sortRows orders rows by the cell at idx. Missing values go last in either
// direction; equal values keep their input order.
func sortRows(rows []Row, idx int, dir Direction) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Cells[idx].Value, rows[j].Cells[idx].Value
		switch {
		case !a.IsSet() && !b.IsSet():
			return false
		case !a.IsSet():
			return false
		case !b.IsSet():
			return true
		}
		c := compareValues(a, b)
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

// compareValues orders two values of the same variant. Numbers and ratings
// compare numerically, booleans as 0/1, text lexicographically.
func compareValues(a, b assessment.Value) int {
	if fa, ok := a.Float(); ok {
		fb, _ := b.Float()
		return cmpFloat(fa, fb)
	}
	if ba, ok := a.Bool(); ok {
		bb, _ := b.Bool()
		return cmpFloat(boolFloat(ba), boolFloat(bb))
	}
	return strings.Compare(a.String(), b.String())
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
