package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/compare"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

const maxAPIBody = 1 << 20

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	apiJSON(w, map[string]string{"error": msg}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody)).Decode(v); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// apiStatus maps a domain error to an HTTP status.
func apiStatus(err error) int {
	switch {
	case errors.Is(err, project.ErrNotFound), errors.Is(err, visit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrNotMember), errors.Is(err, project.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, project.ErrFinished), errors.Is(err, criteria.ErrDuplicateName),
		errors.Is(err, criteria.ErrTypeLocked), errors.Is(err, compare.ErrNoVisits),
		errors.Is(err, compare.ErrNoCriteria):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// apiProject authorizes the API key's user against the {id} project.
func (s *Server) apiProject(w http.ResponseWriter, r *http.Request, need project.Access) (*project.Project, *auth.User, bool) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		apiError(w, "unauthorized", http.StatusUnauthorized)
		return nil, nil, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		apiError(w, "invalid project ID", http.StatusBadRequest)
		return nil, nil, false
	}
	p, err := s.projects.Authorize(r.Context(), id, user.ID, need)
	if err != nil {
		apiError(w, err.Error(), apiStatus(err))
		return nil, nil, false
	}
	return p, user, true
}

// apiListProjects returns the projects the user belongs to.
func (s *Server) apiListProjects(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	list, err := s.projects.List(r.Context(), user.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing projects: %v", err), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*project.Project{}
	}
	apiJSON(w, list, http.StatusOK)
}

// apiCreateProject creates a project owned by the user.
func (s *Server) apiCreateProject(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.projects.Create(r.Context(), user.ID, req.Name)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	apiJSON(w, p, http.StatusCreated)
}

// projectDetail is the response of GET /api/projects/{id}.
type projectDetail struct {
	Project  *project.Project   `json:"project"`
	Members  []*project.Member  `json:"members"`
	Realtors []*realtor.Realtor `json:"realtors"`
	Visits   int                `json:"visit_count"`
	Criteria int                `json:"criteria_count"`
}

// apiGetProject returns a project with its members and totals.
func (s *Server) apiGetProject(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}
	ctx := r.Context()

	members, err := s.projects.Members(ctx, p.ID, user.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing members: %v", err), http.StatusInternalServerError)
		return
	}
	realtors, err := s.realtors.ListByProject(ctx, p.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing realtors: %v", err), http.StatusInternalServerError)
		return
	}
	visits, err := s.visits.Count(ctx, p.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("counting visits: %v", err), http.StatusInternalServerError)
		return
	}
	crit, err := s.criteria.ListByProject(ctx, p.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing criteria: %v", err), http.StatusInternalServerError)
		return
	}

	apiJSON(w, projectDetail{
		Project:  p,
		Members:  members,
		Realtors: realtors,
		Visits:   visits,
		Criteria: len(crit),
	}, http.StatusOK)
}

// apiFinishProject marks the project finished (owner only).
func (s *Server) apiFinishProject(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.apiProject(w, r, project.Manage)
	if !ok {
		return
	}
	p, err := s.projects.Finish(r.Context(), p.ID, user.ID)
	if err != nil {
		apiError(w, err.Error(), apiStatus(err))
		return
	}
	apiJSON(w, p, http.StatusOK)
}

// apiListCriteria returns the project's criteria in display order.
func (s *Server) apiListCriteria(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}
	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing criteria: %v", err), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*criteria.Criteria{}
	}
	apiJSON(w, list, http.StatusOK)
}

// apiCreateCriteria adds a criterion.
func (s *Server) apiCreateCriteria(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.Contribute)
	if !ok {
		return
	}
	var req struct {
		Name   string   `json:"name"`
		Type   string   `json:"type"`
		Weight *float64 `json:"weight"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := s.criteria.Create(r.Context(), p.ID, criteria.Input{Name: req.Name, Type: criteria.Type(req.Type), Weight: req.Weight})
	if err != nil {
		code := apiStatus(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		apiError(w, err.Error(), code)
		return
	}
	apiJSON(w, c, http.StatusCreated)
}

// apiListVisits returns the project's visits, newest first. Supports
// ?realtor=, ?q= and ?limit=.
func (s *Server) apiListVisits(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}

	cq := parseComparisonQuery(r.URL.Query())
	f := visit.Filter{RealtorID: cq.RealtorID, Query: cq.Query}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apiError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	visits, err := s.visits.ListByProject(r.Context(), p.ID, f)
	if err != nil {
		apiError(w, fmt.Sprintf("listing visits: %v", err), http.StatusInternalServerError)
		return
	}
	if visits == nil {
		visits = []*visit.Visit{}
	}
	apiJSON(w, visits, http.StatusOK)
}

// apiAssessment is one criterion's value on a visit.
type apiAssessment struct {
	CriteriaID int64            `json:"criteria_id"`
	Name       string           `json:"name"`
	Type       criteria.Type    `json:"type"`
	Value      assessment.Value `json:"value"`
	Display    string           `json:"display"`
}

// visitDetail is the response of GET /api/projects/{id}/visits/{vid}.
type visitDetail struct {
	Visit       *visit.Visit    `json:"visit"`
	Assessments []apiAssessment `json:"assessments"`
	Photos      []*visit.Photo  `json:"photos"`
}

func (s *Server) visitDetail(r *http.Request, p *project.Project, v *visit.Visit) (*visitDetail, error) {
	ctx := r.Context()
	list, err := s.criteria.ListByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("listing criteria: %w", err)
	}
	values, err := s.assessments.ListByVisit(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("loading assessments: %w", err)
	}
	photos, err := s.visits.ListPhotos(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	if photos == nil {
		photos = []*visit.Photo{}
	}

	d := &visitDetail{Visit: v, Assessments: make([]apiAssessment, len(list)), Photos: photos}
	for i, c := range list {
		val := values[c.ID]
		d.Assessments[i] = apiAssessment{CriteriaID: c.ID, Name: c.Name, Type: c.Type, Value: val, Display: val.String()}
	}
	return d, nil
}

// apiGetVisit returns a visit with its assessments and photos.
func (s *Server) apiGetVisit(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}
	vid, err := pathID(r, "vid")
	if err != nil {
		apiError(w, "invalid visit ID", http.StatusBadRequest)
		return
	}
	v, err := s.visits.Get(r.Context(), p.ID, vid)
	if err != nil {
		apiError(w, err.Error(), apiStatus(err))
		return
	}
	d, err := s.visitDetail(r, p, v)
	if err != nil {
		apiError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, d, http.StatusOK)
}

// apiCreateVisit records a visit and its assessments in one step.
// Assessments are keyed by criteria ID and hold raw values as typed in the
// web form; criteria left out are unset.
func (s *Server) apiCreateVisit(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.apiProject(w, r, project.Contribute)
	if !ok {
		return
	}
	var req struct {
		Name        string           `json:"name"`
		Address     string           `json:"address"`
		VisitDate   string           `json:"visit_date"`
		RealtorID   *int64           `json:"realtor_id"`
		Notes       string           `json:"notes"`
		Assessments map[int64]string `json:"assessments"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VisitDate == "" {
		req.VisitDate = today()
	}

	in, err := visit.Input{Name: req.Name, Address: req.Address, VisitDate: req.VisitDate, RealtorID: req.RealtorID, Notes: req.Notes}.Normalize()
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing criteria: %v", err), http.StatusInternalServerError)
		return
	}
	known := make(map[int64]*criteria.Criteria, len(list))
	for _, c := range list {
		known[c.ID] = c
	}
	values := make(map[int64]assessment.Value, len(req.Assessments))
	for id, raw := range req.Assessments {
		c, ok := known[id]
		if !ok {
			apiError(w, fmt.Sprintf("criteria %d is not in this project", id), http.StatusBadRequest)
			return
		}
		v, err := assessment.Parse(c.Type, raw)
		if err != nil {
			apiError(w, fmt.Sprintf("%s: %v", c.Name, err), http.StatusBadRequest)
			return
		}
		values[id] = v
	}

	v, err := s.saveVisit(r.Context(), p, user.ID, 0, in, list, values)
	if errors.Is(err, visit.ErrRealtorNotFound) {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		apiError(w, fmt.Sprintf("creating visit: %v", err), http.StatusInternalServerError)
		return
	}
	s.metrics.Record(metrics.EventVisitCreated)

	d, err := s.visitDetail(r, p, v)
	if err != nil {
		apiError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, d, http.StatusCreated)
}

// apiComparison returns the comparison table. Supports the same sort and
// filter parameters as the web page.
func (s *Server) apiComparison(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}
	table, err := s.comparison(r.Context(), p.ID, parseComparisonQuery(r.URL.Query()), true)
	if err != nil {
		apiError(w, err.Error(), apiStatus(err))
		return
	}
	apiJSON(w, table, http.StatusOK)
}

// apiExport returns the comparison as CSV.
func (s *Server) apiExport(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.apiProject(w, r, project.View)
	if !ok {
		return
	}
	s.writeExport(w, r, p)
}
