package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/compare"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

// comparisonQuery is the sort and filter state of a comparison request.
type comparisonQuery struct {
	SortBy    int64
	Dir       compare.Direction
	RealtorID *int64
	Query     string
}

func parseComparisonQuery(q url.Values) comparisonQuery {
	cq := comparisonQuery{
		Dir:   compare.ParseDirection(q.Get("dir")),
		Query: strings.TrimSpace(q.Get("q")),
	}
	if id, err := strconv.ParseInt(q.Get("sort"), 10, 64); err == nil {
		cq.SortBy = id
	}
	if id, err := strconv.ParseInt(q.Get("realtor"), 10, 64); err == nil {
		cq.RealtorID = &id
	}
	return cq
}

// values encodes the query, overriding the sort column and direction.
func (cq comparisonQuery) values(sortBy int64, dir compare.Direction) url.Values {
	v := url.Values{}
	if sortBy != 0 {
		v.Set("sort", strconv.FormatInt(sortBy, 10))
		v.Set("dir", string(dir))
	}
	if cq.RealtorID != nil {
		v.Set("realtor", strconv.FormatInt(*cq.RealtorID, 10))
	}
	if cq.Query != "" {
		v.Set("q", cq.Query)
	}
	return v
}

// comparison checks the project-wide preconditions and builds the table
// for the filtered visits.
func (s *Server) comparison(ctx context.Context, projectID int64, cq comparisonQuery, check bool) (*compare.Table, error) {
	crit, err := s.criteria.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing criteria: %w", err)
	}
	if check {
		total, err := s.visits.Count(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("counting visits: %w", err)
		}
		if err := compare.Check(total, len(crit)); err != nil {
			return nil, err
		}
	}

	visits, err := s.visits.ListByProject(ctx, projectID, visit.Filter{RealtorID: cq.RealtorID, Query: cq.Query})
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	values, err := s.assessments.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading assessments: %w", err)
	}
	return compare.Build(visits, crit, values, compare.Options{SortBy: cq.SortBy, Dir: cq.Dir}), nil
}

// column is a comparison table header with its statistics and sort link.
type column struct {
	Criteria *criteria.Criteria
	Stat     compare.Stat
	HasStat  bool
	SortURL  string
	Sorted   bool
	Dir      compare.Direction
}

type compareData struct {
	layout
	Project   *project.Project
	Table     *compare.Table
	Columns   []column
	Realtors  []*realtor.Realtor
	Query     comparisonQuery
	ExportURL string
	ClearURL  string
}

// handleCompare renders the side-by-side comparison. A project with no
// visits, or visits but no criteria, is redirected to where the missing
// data is entered instead of showing an empty table.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}

	cq := parseComparisonQuery(r.URL.Query())
	table, err := s.comparison(r.Context(), p.ID, cq, true)
	switch {
	case errors.Is(err, compare.ErrNoVisits):
		target := wizardURL(p.ID, "", "")
		if !p.IsActive() {
			target = projectURL(p.ID)
		}
		s.redirectWithFlash(w, r, target, "There are no visits to compare yet. Log a visit first.")
		return
	case errors.Is(err, compare.ErrNoCriteria):
		s.redirectWithFlash(w, r, criteriaURL(p.ID), "Add at least one criterion to compare your visits.")
		return
	case err != nil:
		serverError(w, "building comparison", err)
		return
	}

	realtors, err := s.realtors.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing realtors", err)
		return
	}

	base := fmt.Sprintf("/projects/%d/compare", p.ID)
	cols := make([]column, len(table.Criteria))
	for i, c := range table.Criteria {
		dir := compare.Asc
		sorted := table.SortBy == c.ID
		if sorted {
			dir = table.Dir.Toggle()
		}
		stat, has := table.Stats[c.ID]
		cols[i] = column{
			Criteria: c,
			Stat:     stat,
			HasStat:  has,
			SortURL:  base + "?" + cq.values(c.ID, dir).Encode(),
			Sorted:   sorted,
			Dir:      table.Dir,
		}
	}

	s.render(w, "compare.html", compareData{
		layout:    s.page(w, r, "Compare · "+p.Name),
		Project:   p,
		Table:     table,
		Columns:   cols,
		Realtors:  realtors,
		Query:     cq,
		ExportURL: fmt.Sprintf("/projects/%d/export.csv", p.ID),
		ClearURL:  base,
	})
}

// handleExport downloads the comparison as CSV. The export always holds every
// visit in default order; sort and filter parameters are ignored.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	s.writeExport(w, r, p)
}

func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, p *project.Project) {
	table, err := s.comparison(r.Context(), p.ID, comparisonQuery{}, false)
	if err != nil {
		serverError(w, "building export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", compare.Filename(p.Name)))
	if err := compare.WriteCSV(w, table); err != nil {
		slog.Error("writing csv export", "project_id", p.ID, "err", err)
		return
	}
	s.metrics.Record(metrics.EventExport)
}
