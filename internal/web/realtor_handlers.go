package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
)

type realtorForm struct {
	realtor.Input
	Error string
}

type realtorsData struct {
	layout
	Project  *project.Project
	Realtors []*realtor.Realtor
	Form     realtorForm
	EditID   int64
}

func realtorsURL(pid int64) string {
	return fmt.Sprintf("/projects/%d/realtors", pid)
}

func realtorInput(r *http.Request) realtor.Input {
	return realtor.Input{
		Name:    r.FormValue("name"),
		Company: r.FormValue("company"),
		Phone:   r.FormValue("phone"),
		Email:   r.FormValue("email"),
	}
}

// handleRealtors lists the project's realtor directory.
func (s *Server) handleRealtors(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	s.renderRealtors(w, r, p, http.StatusOK, 0, realtorForm{})
}

func (s *Server) renderRealtors(w http.ResponseWriter, r *http.Request, p *project.Project, code int, editID int64, form realtorForm) {
	list, err := s.realtors.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing realtors", err)
		return
	}
	s.renderStatus(w, code, "realtors.html", realtorsData{
		layout:   s.page(w, r, "Realtors · "+p.Name),
		Project:  p,
		Realtors: list,
		Form:     form,
		EditID:   editID,
	})
}

// handleRealtorCreate adds a realtor to the project.
func (s *Server) handleRealtorCreate(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	in := realtorInput(r)
	if _, err := s.realtors.Create(r.Context(), p.ID, user.ID, in); err != nil {
		s.renderRealtors(w, r, p, http.StatusUnprocessableEntity, 0, realtorForm{Input: in, Error: err.Error()})
		return
	}
	s.redirectWithFlash(w, r, realtorsURL(p.ID), fmt.Sprintf("Added %s.", in.Name))
}

// handleRealtorUpdate edits a realtor's contact details.
func (s *Server) handleRealtorUpdate(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	rid, err := pathID(r, "rid")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	in := realtorInput(r)
	_, err = s.realtors.Update(r.Context(), p.ID, rid, in)
	switch {
	case errors.Is(err, realtor.ErrNotFound):
		s.redirectWithFlash(w, r, realtorsURL(p.ID), err.Error())
	case err != nil:
		s.renderRealtors(w, r, p, http.StatusUnprocessableEntity, rid, realtorForm{Input: in, Error: err.Error()})
	default:
		s.redirectWithFlash(w, r, realtorsURL(p.ID), "Realtor updated.")
	}
}

// handleRealtorDelete removes a realtor. Their visits are kept without one.
func (s *Server) handleRealtorDelete(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	rid, err := pathID(r, "rid")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	err = s.realtors.Delete(r.Context(), p.ID, rid)
	switch {
	case errors.Is(err, realtor.ErrNotFound):
		s.redirectWithFlash(w, r, realtorsURL(p.ID), err.Error())
	case err != nil:
		serverError(w, "deleting realtor", err)
	default:
		s.redirectWithFlash(w, r, realtorsURL(p.ID), "Realtor removed.")
	}
}
