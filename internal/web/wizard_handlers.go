package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/draft"
	"github.com/evcraddock/checklist-casa/internal/email"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

// The visit wizard has three steps: details, assessments, photos. State
// travels between steps in a signed draft token rather than the session.

func wizardURL(pid int64, step, token string) string {
	u := fmt.Sprintf("/projects/%d/visits/new", pid)
	if step != "" {
		u += "/" + step
	}
	if token != "" {
		u += "?draft=" + url.QueryEscape(token)
	}
	return u
}

type wizardData struct {
	layout
	Project  *project.Project
	Draft    string
	Form     visitForm
	Realtors []*realtor.Realtor
	Fields   []assessField
	Visit    *visit.Visit
	Photos   []*visit.Photo
}

// loadDraft verifies the draft token in the request. When it is missing or
// expired the user is sent back to step one with a message.
func (s *Server) loadDraft(w http.ResponseWriter, r *http.Request, p *project.Project, userID int64) (*draft.Draft, string, bool) {
	token := r.URL.Query().Get("draft")
	if token == "" && r.Method == http.MethodPost && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		token = r.PostFormValue("draft")
	}
	d, err := s.drafts.Parse(token, userID, p.ID)
	switch {
	case err == nil:
		return d, token, true
	case errors.Is(err, draft.ErrExpired):
		s.redirectWithFlash(w, r, wizardURL(p.ID, "", ""), "Your visit draft expired. Please start again.")
	default:
		slog.Debug("rejecting visit draft", "err", err)
		s.redirectWithFlash(w, r, wizardURL(p.ID, "", ""), "No visit in progress. Start by entering the visit details.")
	}
	return nil, "", false
}

// savedVisit returns the visit a saved draft refers to, or redirects to
// step one if it has since been deleted.
func (s *Server) savedVisit(w http.ResponseWriter, r *http.Request, p *project.Project, d *draft.Draft) (*visit.Visit, bool) {
	v, err := s.visits.Get(r.Context(), p.ID, d.VisitID)
	if errors.Is(err, visit.ErrNotFound) {
		s.redirectWithFlash(w, r, wizardURL(p.ID, "", ""), "That visit no longer exists. Please start again.")
		return nil, false
	}
	if err != nil {
		serverError(w, "loading visit", err)
		return nil, false
	}
	return v, true
}

func (s *Server) sign(w http.ResponseWriter, d draft.Draft) (string, bool) {
	token, err := s.drafts.Sign(d)
	if err != nil {
		serverError(w, "signing draft", err)
		return "", false
	}
	return token, true
}

// handleWizardDetails shows step one. A draft that has not been saved yet
// pre-fills the form so the user can go back.
func (s *Server) handleWizardDetails(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}

	form := visitForm{VisitDate: today()}
	if token := r.URL.Query().Get("draft"); token != "" {
		if d, err := s.drafts.Parse(token, user.ID, p.ID); err == nil && !d.Saved() {
			form = formFromInput(d.Visit)
		}
	}
	s.renderWizardDetails(w, r, http.StatusOK, p, form)
}

func (s *Server) renderWizardDetails(w http.ResponseWriter, r *http.Request, code int, p *project.Project, form visitForm) {
	realtors, err := s.realtors.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing realtors", err)
		return
	}
	s.renderStatus(w, code, "visit_form.html", wizardData{
		layout:   s.page(w, r, "Log a visit"),
		Project:  p,
		Form:     form,
		Realtors: realtors,
	})
}

// handleWizardDetailsSubmit validates step one and moves on to assessments.
func (s *Server) handleWizardDetailsSubmit(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}

	form := readVisitForm(r)
	in, err := form.input()
	if err == nil && in.RealtorID != nil {
		if _, rerr := s.realtors.Get(r.Context(), p.ID, *in.RealtorID); errors.Is(rerr, realtor.ErrNotFound) {
			err = visit.ErrRealtorNotFound
		} else if rerr != nil {
			serverError(w, "loading realtor", rerr)
			return
		}
	}
	if err != nil {
		form.Error = err.Error()
		s.renderWizardDetails(w, r, http.StatusUnprocessableEntity, p, form)
		return
	}

	token, ok := s.sign(w, draft.Draft{ProjectID: p.ID, UserID: user.ID, Visit: in})
	if !ok {
		return
	}
	http.Redirect(w, r, wizardURL(p.ID, "assess", token), http.StatusSeeOther)
}

// handleWizardAssess shows step two: one input per criterion.
func (s *Server) handleWizardAssess(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	d, token, ok := s.loadDraft(w, r, p, user.ID)
	if !ok {
		return
	}
	if d.Saved() {
		http.Redirect(w, r, wizardURL(p.ID, "photos", token), http.StatusSeeOther)
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	s.render(w, "visit_assess.html", wizardData{
		layout:  s.page(w, r, "Assess "+d.Visit.Name),
		Project: p,
		Draft:   token,
		Form:    formFromInput(d.Visit),
		Fields:  assessFields(list, nil),
	})
}

// handleWizardAssessSubmit saves the visit and its assessments together,
// then moves on to photos.
func (s *Server) handleWizardAssessSubmit(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	d, token, ok := s.loadDraft(w, r, p, user.ID)
	if !ok {
		return
	}
	if d.Saved() {
		http.Redirect(w, r, wizardURL(p.ID, "photos", token), http.StatusSeeOther)
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	values, fields, valid := parseAssessments(r, list)
	if !valid {
		s.renderStatus(w, http.StatusUnprocessableEntity, "visit_assess.html", wizardData{
			layout:  s.page(w, r, "Assess "+d.Visit.Name),
			Project: p,
			Draft:   token,
			Form:    formFromInput(d.Visit),
			Fields:  fields,
		})
		return
	}

	v, err := s.saveVisit(r.Context(), p, user.ID, 0, d.Visit, list, values)
	if errors.Is(err, visit.ErrRealtorNotFound) {
		s.redirectWithFlash(w, r, wizardURL(p.ID, "", token), err.Error())
		return
	}
	if err != nil {
		serverError(w, "creating visit", err)
		return
	}
	s.metrics.Record(metrics.EventVisitCreated)
	slog.Info("visit created", "project_id", p.ID, "visit_id", v.ID)

	d.VisitID = v.ID
	token, ok = s.sign(w, *d)
	if !ok {
		return
	}
	http.Redirect(w, r, wizardURL(p.ID, "photos", token), http.StatusSeeOther)
}

// handleWizardPhotos shows step three for a saved visit.
func (s *Server) handleWizardPhotos(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	d, token, ok := s.loadDraft(w, r, p, user.ID)
	if !ok {
		return
	}
	if !d.Saved() {
		http.Redirect(w, r, wizardURL(p.ID, "assess", token), http.StatusSeeOther)
		return
	}
	v, ok := s.savedVisit(w, r, p, d)
	if !ok {
		return
	}

	photos, err := s.visits.ListPhotos(r.Context(), v.ID)
	if err != nil {
		serverError(w, "listing photos", err)
		return
	}
	s.render(w, "visit_photos.html", wizardData{
		layout:  s.page(w, r, "Photos · "+v.Name),
		Project: p,
		Draft:   token,
		Visit:   v,
		Photos:  photos,
	})
}

// handleWizardPhotoUpload adds photos during step three.
func (s *Server) handleWizardPhotoUpload(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	// The draft rides in the query string so it is readable before the
	// multipart body is parsed with its size limit.
	d, token, ok := s.loadDraft(w, r, p, user.ID)
	if !ok {
		return
	}
	if !d.Saved() {
		http.Redirect(w, r, wizardURL(p.ID, "assess", token), http.StatusSeeOther)
		return
	}
	v, ok := s.savedVisit(w, r, p, d)
	if !ok {
		return
	}

	n, err := s.savePhotos(w, r, v.ID)
	s.redirectWithFlash(w, r, wizardURL(p.ID, "photos", token), photoMessage(n, err))
}

// handleWizardDone finishes the wizard and sends the optional confirmation
// email. A delivery failure is only logged. Submitting the same draft again
// does not send a second email.
func (s *Server) handleWizardDone(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	d, token, ok := s.loadDraft(w, r, p, user.ID)
	if !ok {
		return
	}
	if !d.Saved() {
		http.Redirect(w, r, wizardURL(p.ID, "assess", token), http.StatusSeeOther)
		return
	}
	v, ok := s.savedVisit(w, r, p, d)
	if !ok {
		return
	}

	if user.ReceiveConfirmationEmails {
		s.sendConfirmation(r.Context(), p, v, user.Email)
	}

	s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), "Visit saved.")
}

func (s *Server) sendConfirmation(ctx context.Context, p *project.Project, v *visit.Visit, to string) {
	claimed, err := s.visits.ClaimConfirmation(ctx, p.ID, v.ID)
	if err != nil {
		slog.Error("claiming visit confirmation", "visit_id", v.ID, "err", err)
		return
	}
	if !claimed {
		slog.Debug("visit confirmation already sent", "visit_id", v.ID)
		return
	}

	photos, err := s.visits.ListPhotos(ctx, v.ID)
	if err != nil {
		slog.Error("counting photos for confirmation", "visit_id", v.ID, "err", err)
	}
	msg := email.VisitConfirmation(p.Name, v.Name, v.Address, len(photos), s.cfg.BaseURL+visitURL(p.ID, v.ID))
	if err := email.Deliver(s.mailer, to, msg); err != nil {
		slog.Error("sending visit confirmation", "visit_id", v.ID, "email", to, "err", err)
		if err := s.visits.ReleaseConfirmation(ctx, p.ID, v.ID); err != nil {
			slog.Error("releasing visit confirmation", "visit_id", v.ID, "err", err)
		}
	}
}
