package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/project"
)

type criteriaForm struct {
	ID     int64
	Name   string
	Type   string
	Weight string
	Error  string
}

type criteriaData struct {
	layout
	Project *project.Project
	List    []*criteria.Criteria
	Types   []criteria.Type
	Form    criteriaForm
	// EditID is the criterion whose inline form shows Form, 0 for the add form.
	EditID int64
}

func criteriaURL(pid int64) string {
	return fmt.Sprintf("/projects/%d/criteria", pid)
}

// criteriaInput reads a criteria form, returning the raw form for redisplay.
func criteriaInput(r *http.Request) (criteria.Input, criteriaForm, error) {
	form := criteriaForm{
		Name:   r.FormValue("name"),
		Type:   r.FormValue("type"),
		Weight: r.FormValue("weight"),
	}
	weight, err := criteria.ParseWeight(form.Weight)
	if err != nil {
		return criteria.Input{}, form, err
	}
	return criteria.Input{Name: form.Name, Type: criteria.Type(form.Type), Weight: weight}, form, nil
}

// handleCriteria lists a project's criteria with add and edit forms.
func (s *Server) handleCriteria(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	s.renderCriteria(w, r, p, http.StatusOK, 0, criteriaForm{Type: string(criteria.Rating)})
}

func (s *Server) renderCriteria(w http.ResponseWriter, r *http.Request, p *project.Project, code int, editID int64, form criteriaForm) {
	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	s.renderStatus(w, code, "criteria.html", criteriaData{
		layout:  s.page(w, r, "Criteria · "+p.Name),
		Project: p,
		List:    list,
		Types:   criteria.ValidTypes,
		Form:    form,
		EditID:  editID,
	})
}

// handleCriteriaCreate adds a criterion. A duplicate name is shown as a form
// error next to the name field.
func (s *Server) handleCriteriaCreate(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}

	in, form, err := criteriaInput(r)
	if err == nil {
		_, err = s.criteria.Create(r.Context(), p.ID, in)
	}
	if err != nil {
		form.Error = err.Error()
		s.renderCriteria(w, r, p, http.StatusUnprocessableEntity, 0, form)
		return
	}
	s.redirectWithFlash(w, r, criteriaURL(p.ID), fmt.Sprintf("Added %q.", in.Name))
}

// handleCriteriaUpdate edits a criterion's name, type and weight.
func (s *Server) handleCriteriaUpdate(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	c, ok := s.criterionFor(w, r, p.ID)
	if !ok {
		return
	}

	in, form, err := criteriaInput(r)
	if err == nil {
		_, err = s.criteria.Update(r.Context(), c.ID, in)
	}
	if err != nil {
		form.ID = c.ID
		form.Error = err.Error()
		s.renderCriteria(w, r, p, http.StatusUnprocessableEntity, c.ID, form)
		return
	}
	s.redirectWithFlash(w, r, criteriaURL(p.ID), "Criterion updated.")
}

// handleCriteriaDelete removes a criterion and every assessment made against it.
func (s *Server) handleCriteriaDelete(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	c, ok := s.criterionFor(w, r, p.ID)
	if !ok {
		return
	}
	if err := s.criteria.Delete(r.Context(), c.ID); err != nil {
		serverError(w, "deleting criteria", err)
		return
	}
	s.redirectWithFlash(w, r, criteriaURL(p.ID), fmt.Sprintf("Deleted %q.", c.Name))
}

// handleCriteriaDefaults adds the starter criteria the project lacks.
func (s *Server) handleCriteriaDefaults(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	n, err := s.criteria.AddDefaults(r.Context(), p.ID)
	if err != nil {
		serverError(w, "adding default criteria", err)
		return
	}
	msg := fmt.Sprintf("Added %d default criteria.", n)
	if n == 0 {
		msg = "All default criteria are already in this project."
	}
	s.redirectWithFlash(w, r, criteriaURL(p.ID), msg)
}

// handleCriteriaReorder moves one criterion up or down in display order.
func (s *Server) handleCriteriaReorder(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.FormValue("criteria_id"), 10, 64)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	ids := make([]int64, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	if err := s.criteria.Reorder(r.Context(), p.ID, moveID(ids, id, r.FormValue("move") == "up")); err != nil {
		serverError(w, "reordering criteria", err)
		return
	}
	http.Redirect(w, r, criteriaURL(p.ID), http.StatusSeeOther)
}

// moveID swaps id with its neighbour. Moves past either end are ignored.
func moveID(ids []int64, id int64, up bool) []int64 {
	for i, v := range ids {
		if v != id {
			continue
		}
		j := i + 1
		if up {
			j = i - 1
		}
		if j >= 0 && j < len(ids) {
			ids[i], ids[j] = ids[j], ids[i]
		}
		break
	}
	return ids
}

// criterionFor loads the {cid} criterion, which must belong to projectID.
func (s *Server) criterionFor(w http.ResponseWriter, r *http.Request, projectID int64) (*criteria.Criteria, bool) {
	cid, err := pathID(r, "cid")
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	c, err := s.criteria.GetInProject(r.Context(), projectID, cid)
	if errors.Is(err, criteria.ErrNotFound) {
		s.redirectWithFlash(w, r, criteriaURL(projectID), err.Error())
		return nil, false
	}
	if err != nil {
		serverError(w, "loading criteria", err)
		return nil, false
	}
	return c, true
}
