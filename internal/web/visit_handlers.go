package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/db"
	"github.com/evcraddock/checklist-casa/internal/media"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

// maxPhotosPerUpload bounds a single multipart upload.
const maxPhotosPerUpload = 10

// visitForm is the raw visit fields as typed, for redisplay.
type visitForm struct {
	Name      string
	Address   string
	VisitDate string
	RealtorID string
	Notes     string
	Error     string
}

func formFromInput(in visit.Input) visitForm {
	f := visitForm{Name: in.Name, Address: in.Address, VisitDate: in.VisitDate, Notes: in.Notes}
	if in.RealtorID != nil {
		f.RealtorID = strconv.FormatInt(*in.RealtorID, 10)
	}
	return f
}

func (f visitForm) input() (visit.Input, error) {
	in := visit.Input{Name: f.Name, Address: f.Address, VisitDate: f.VisitDate, Notes: f.Notes}
	if f.RealtorID != "" {
		id, err := strconv.ParseInt(f.RealtorID, 10, 64)
		if err != nil {
			return in, visit.ErrRealtorNotFound
		}
		in.RealtorID = &id
	}
	return in.Normalize()
}

func readVisitForm(r *http.Request) visitForm {
	return visitForm{
		Name:      r.FormValue("name"),
		Address:   r.FormValue("address"),
		VisitDate: r.FormValue("visit_date"),
		RealtorID: r.FormValue("realtor_id"),
		Notes:     r.FormValue("notes"),
	}
}

// assessField is one criterion's input on a visit form.
type assessField struct {
	Criteria *criteria.Criteria
	Raw      string
	Error    string
}

// assessFields pairs each criterion with its stored value.
func assessFields(list []*criteria.Criteria, values map[int64]assessment.Value) []assessField {
	fields := make([]assessField, len(list))
	for i, c := range list {
		fields[i] = assessField{Criteria: c, Raw: values[c.ID].Raw()}
	}
	return fields
}

// parseAssessments reads the c_<criteriaID> inputs. Blank inputs are unset.
// It returns the fields for redisplay and whether every input parsed.
func parseAssessments(r *http.Request, list []*criteria.Criteria) (map[int64]assessment.Value, []assessField, bool) {
	values := make(map[int64]assessment.Value, len(list))
	fields := make([]assessField, len(list))
	ok := true
	for i, c := range list {
		raw := r.FormValue(fmt.Sprintf("c_%d", c.ID))
		fields[i] = assessField{Criteria: c, Raw: raw}
		v, err := assessment.Parse(c.Type, raw)
		if err != nil {
			fields[i].Error = err.Error()
			ok = false
			continue
		}
		values[c.ID] = v
	}
	return values, fields, ok
}

// saveVisit creates (visitID == 0) or updates a visit and replaces its
// assessments in one transaction.
func (s *Server) saveVisit(ctx context.Context, p *project.Project, userID, visitID int64, in visit.Input, list []*criteria.Criteria, values map[int64]assessment.Value) (*visit.Visit, error) {
	var saved *visit.Visit
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		visits := s.visits.WithTx(tx)
		var err error
		if visitID == 0 {
			saved, err = visits.Create(ctx, p.ID, userID, in)
		} else {
			saved, err = visits.Update(ctx, p.ID, visitID, in)
		}
		if err != nil {
			return err
		}
		return s.assessments.WithTx(tx).Replace(ctx, saved.ID, list, values)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// visitFor loads the {vid} visit, which must belong to projectID.
func (s *Server) visitFor(w http.ResponseWriter, r *http.Request, projectID int64) (*visit.Visit, bool) {
	vid, err := pathID(r, "vid")
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	v, err := s.visits.Get(r.Context(), projectID, vid)
	if errors.Is(err, visit.ErrNotFound) {
		s.redirectWithFlash(w, r, projectURL(projectID), err.Error())
		return nil, false
	}
	if err != nil {
		serverError(w, "loading visit", err)
		return nil, false
	}
	return v, true
}

// savePhotos stores every file in the "photos" field and attaches it to the
// visit. It returns the number saved; user-facing problems come back as error.
func (s *Server) savePhotos(w http.ResponseWriter, r *http.Request, visitID int64) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.media.MaxBytes()*maxPhotosPerUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return 0, fmt.Errorf("upload is too large or malformed")
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		return 0, fmt.Errorf("choose at least one photo")
	}
	if len(files) > maxPhotosPerUpload {
		return 0, fmt.Errorf("upload at most %d photos at a time", maxPhotosPerUpload)
	}
	caption := strings.TrimSpace(r.FormValue("caption"))

	saved := 0
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return saved, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		key, err := s.media.Save(fh.Filename, f)
		_ = f.Close()
		if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
			return saved, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		if err != nil {
			return saved, err
		}

		if _, err := s.visits.AddPhoto(r.Context(), visitID, key, caption); err != nil {
			if rmErr := s.media.Remove(key); rmErr != nil {
				slog.Error("removing orphaned upload", "key", key, "err", rmErr)
			}
			return saved, err
		}
		saved++
		s.metrics.Record(metrics.EventPhotoUploaded)
	}
	return saved, nil
}

type visitData struct {
	layout
	Project *project.Project
	Visit   *visit.Visit
	Fields  []assessField
	Photos  []*visit.Photo
	CanEdit bool
}

// handleVisit shows a visit with its assessments and photos.
func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}
	ctx := r.Context()

	list, err := s.criteria.ListByProject(ctx, p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	values, err := s.assessments.ListByVisit(ctx, v.ID)
	if err != nil {
		serverError(w, "loading assessments", err)
		return
	}
	photos, err := s.visits.ListPhotos(ctx, v.ID)
	if err != nil {
		serverError(w, "listing photos", err)
		return
	}

	fields := make([]assessField, len(list))
	for i, c := range list {
		fields[i] = assessField{Criteria: c, Raw: values[c.ID].String()}
	}

	s.render(w, "visit.html", visitData{
		layout:  s.page(w, r, v.Name),
		Project: p,
		Visit:   v,
		Fields:  fields,
		Photos:  photos,
		CanEdit: p.IsActive(),
	})
}

type visitEditData struct {
	layout
	Project  *project.Project
	Visit    *visit.Visit
	Form     visitForm
	Realtors []*realtor.Realtor
	Fields   []assessField
}

// handleVisitEdit shows the edit form for a visit and its assessments.
func (s *Server) handleVisitEdit(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	values, err := s.assessments.ListByVisit(r.Context(), v.ID)
	if err != nil {
		serverError(w, "loading assessments", err)
		return
	}

	form := formFromInput(visit.Input{
		Name: v.Name, Address: v.Address, VisitDate: v.VisitDate, RealtorID: v.RealtorID, Notes: v.Notes,
	})
	s.renderVisitEdit(w, r, http.StatusOK, p, v, form, assessFields(list, values))
}

func (s *Server) renderVisitEdit(w http.ResponseWriter, r *http.Request, code int, p *project.Project, v *visit.Visit, form visitForm, fields []assessField) {
	realtors, err := s.realtors.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing realtors", err)
		return
	}
	s.renderStatus(w, code, "visit_edit.html", visitEditData{
		layout:   s.page(w, r, "Edit "+v.Name),
		Project:  p,
		Visit:    v,
		Form:     form,
		Realtors: realtors,
		Fields:   fields,
	})
}

// handleVisitUpdate saves edits to a visit and its assessments together.
func (s *Server) handleVisitUpdate(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}

	list, err := s.criteria.ListByProject(r.Context(), p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}

	form := readVisitForm(r)
	values, fields, valid := parseAssessments(r, list)
	in, err := form.input()
	if err != nil {
		form.Error = err.Error()
	}
	if err != nil || !valid {
		s.renderVisitEdit(w, r, http.StatusUnprocessableEntity, p, v, form, fields)
		return
	}

	if _, err := s.saveVisit(r.Context(), p, user.ID, v.ID, in, list, values); err != nil {
		if errors.Is(err, visit.ErrRealtorNotFound) {
			form.Error = err.Error()
			s.renderVisitEdit(w, r, http.StatusUnprocessableEntity, p, v, form, fields)
			return
		}
		serverError(w, "updating visit", err)
		return
	}
	s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), "Visit updated.")
}

// handleVisitDelete removes a visit along with its assessments and photo files.
func (s *Server) handleVisitDelete(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}

	keys, err := s.visits.Delete(r.Context(), p.ID, v.ID)
	if err != nil {
		serverError(w, "deleting visit", err)
		return
	}
	for _, key := range keys {
		if err := s.media.Remove(key); err != nil {
			slog.Error("removing photo file", "key", key, "err", err)
		}
	}
	s.redirectWithFlash(w, r, projectURL(p.ID), fmt.Sprintf("Deleted %q.", v.Name))
}

// handlePhotoUpload adds photos to an existing visit.
func (s *Server) handlePhotoUpload(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}

	n, err := s.savePhotos(w, r, v.ID)
	s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), photoMessage(n, err))
}

func photoMessage(n int, err error) string {
	var msg string
	switch n {
	case 0:
	case 1:
		msg = "1 photo uploaded. "
	default:
		msg = fmt.Sprintf("%d photos uploaded. ", n)
	}
	if err != nil {
		msg += "Upload failed: " + err.Error()
	}
	return strings.TrimSpace(msg)
}

// handlePhotoCaption changes a photo's caption.
func (s *Server) handlePhotoCaption(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}
	photoID, err := pathID(r, "pid")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	err = s.visits.UpdateCaption(r.Context(), v.ID, photoID, strings.TrimSpace(r.FormValue("caption")))
	switch {
	case errors.Is(err, visit.ErrPhotoNotFound):
		s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), err.Error())
	case err != nil:
		serverError(w, "updating caption", err)
	default:
		s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), "Caption saved.")
	}
}

// handlePhotoDelete removes a photo and its file.
func (s *Server) handlePhotoDelete(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.projectFor(w, r, project.Contribute)
	if !ok {
		return
	}
	v, ok := s.visitFor(w, r, p.ID)
	if !ok {
		return
	}
	photoID, err := pathID(r, "pid")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	key, err := s.visits.DeletePhoto(r.Context(), v.ID, photoID)
	switch {
	case errors.Is(err, visit.ErrPhotoNotFound):
		s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), err.Error())
		return
	case err != nil:
		serverError(w, "deleting photo", err)
		return
	}
	if err := s.media.Remove(key); err != nil {
		slog.Error("removing photo file", "key", key, "err", err)
	}
	s.redirectWithFlash(w, r, visitURL(p.ID, v.ID), "Photo deleted.")
}

func today() string {
	return time.Now().Format(visit.DateLayout)
}
