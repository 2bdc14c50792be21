package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/compare"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

const flashCookie = "casa_flash"

// layout is embedded in every page's data and feeds the header partial.
type layout struct {
	Title string
	User  *auth.User
	Flash string
}

var templateFuncs = template.FuncMap{
	"formatNumber": compare.FormatNumber,
	"formatDate":   tmplFormatDate,
	"formatWeight": tmplFormatWeight,
	"sameID":       tmplSameID,
	"seq":          tmplSeq,
}

func tmplFormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

func tmplFormatWeight(w *float64) string {
	if w == nil {
		return ""
	}
	return strconv.FormatFloat(*w, 'f', -1, 64)
}

func tmplSameID(p *int64, id int64) bool {
	return p != nil && *p == id
}

func tmplSeq(from, to int) []int {
	var s []int
	for i := from; i <= to; i++ {
		s = append(s, i)
	}
	return s
}

// render executes a page template.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("rendering template", "template", name, "err", err)
		http.Error(w, fmt.Sprintf("Error rendering template: %v", err), http.StatusInternalServerError)
	}
}

// renderStatus executes a page template with a non-200 status, typically a
// form redisplayed with errors. data must be built before the call so the
// flash cookie is cleared ahead of WriteHeader.
func (s *Server) renderStatus(w http.ResponseWriter, code int, name string, data any) {
	w.WriteHeader(code)
	s.render(w, name, data)
}

// page builds the layout for a request, consuming any pending flash message.
func (s *Server) page(w http.ResponseWriter, r *http.Request, title string) layout {
	return layout{
		Title: title,
		User:  auth.UserFromContext(r.Context()),
		Flash: s.takeFlash(w, r),
	}
}

// flash stores a one-shot message shown on the next rendered page.
func (s *Server) flash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.cfg.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}

// redirectWithFlash sets a flash message and redirects with 303.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, msg string) {
	s.flash(w, msg)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "err", err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func projectURL(id int64) string {
	return fmt.Sprintf("/projects/%d", id)
}

func visitURL(pid, vid int64) string {
	return fmt.Sprintf("/projects/%d/visits/%d", pid, vid)
}

// projectFor authorizes the session user against the {id} project. On
// failure it writes a redirect with a flash message and returns false.
func (s *Server) projectFor(w http.ResponseWriter, r *http.Request, need project.Access) (*project.Project, *auth.User, bool) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, auth.LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
		return nil, nil, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return nil, nil, false
	}

	p, err := s.projects.Authorize(r.Context(), id, user.ID, need)
	switch {
	case err == nil:
		return p, user, true
	case errors.Is(err, project.ErrNotFound), errors.Is(err, project.ErrNotMember):
		s.redirectWithFlash(w, r, "/projects", err.Error())
	case errors.Is(err, project.ErrNotOwner), errors.Is(err, project.ErrFinished):
		s.redirectWithFlash(w, r, projectURL(id), err.Error())
	default:
		serverError(w, "authorizing project", err)
	}
	return nil, nil, false
}

type homeData struct {
	layout
	Active   []*project.Project
	Finished []*project.Project
	Project  *project.Project
	Visits   []*visit.Visit
}

// handleHome shows the entry point that fits how many projects the user has.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	all, err := s.projects.List(r.Context(), user.ID)
	if err != nil {
		serverError(w, "listing projects", err)
		return
	}

	data := homeData{layout: s.page(w, r, "Home")}
	for _, p := range all {
		if p.IsActive() {
			data.Active = append(data.Active, p)
		} else {
			data.Finished = append(data.Finished, p)
		}
	}

	if len(data.Active) == 1 {
		data.Project = data.Active[0]
		data.Visits, err = s.visits.ListByProject(r.Context(), data.Project.ID, visit.Filter{Limit: 5})
		if err != nil {
			serverError(w, "listing recent visits", err)
			return
		}
	}

	s.render(w, "home.html", data)
}

type projectsData struct {
	layout
	Projects []*project.Project
	Name     string
	Error    string
}

// handleProjects lists every project the user belongs to.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	list, err := s.projects.List(r.Context(), user.ID)
	if err != nil {
		serverError(w, "listing projects", err)
		return
	}
	s.render(w, "projects.html", projectsData{layout: s.page(w, r, "Projects"), Projects: list})
}

// handleProjectCreate starts a new project owned by the user.
func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	name := r.FormValue("name")

	p, err := s.projects.Create(r.Context(), user.ID, name)
	if err != nil {
		list, lerr := s.projects.List(r.Context(), user.ID)
		if lerr != nil {
			serverError(w, "listing projects", lerr)
			return
		}
		s.renderStatus(w, http.StatusUnprocessableEntity, "projects.html", projectsData{
			layout:   s.page(w, r, "Projects"),
			Projects: list,
			Name:     name,
			Error:    err.Error(),
		})
		return
	}

	slog.Info("project created", "project_id", p.ID, "owner", user.Email)
	s.redirectWithFlash(w, r, projectURL(p.ID), "Project created. Add some criteria to score visits against.")
}

type projectData struct {
	layout
	Project     *project.Project
	IsOwner     bool
	Visits      []*visit.Visit
	PhotoCounts map[int64]int
	Criteria    int
	Members     []*project.Member
	RenameError string
}

// handleProject shows a project's overview with its visits.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	ctx := r.Context()

	visits, err := s.visits.ListByProject(ctx, p.ID, visit.Filter{})
	if err != nil {
		serverError(w, "listing visits", err)
		return
	}
	counts, err := s.visits.PhotoCounts(ctx, p.ID)
	if err != nil {
		serverError(w, "counting photos", err)
		return
	}
	crit, err := s.criteria.ListByProject(ctx, p.ID)
	if err != nil {
		serverError(w, "listing criteria", err)
		return
	}
	members, err := s.projects.Members(ctx, p.ID, user.ID)
	if err != nil {
		serverError(w, "listing members", err)
		return
	}

	s.render(w, "project.html", projectData{
		layout:      s.page(w, r, p.Name),
		Project:     p,
		IsOwner:     p.IsOwner(user.ID),
		Visits:      visits,
		PhotoCounts: counts,
		Criteria:    len(crit),
		Members:     members,
	})
}

// handleProjectRename changes a project's name (owner only).
func (s *Server) handleProjectRename(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Manage)
	if !ok {
		return
	}
	if _, err := s.projects.Rename(r.Context(), p.ID, user.ID, r.FormValue("name")); err != nil {
		s.redirectWithFlash(w, r, projectURL(p.ID), err.Error())
		return
	}
	s.redirectWithFlash(w, r, projectURL(p.ID), "Project renamed.")
}

// handleProjectFinish marks a project finished (owner only, one way).
func (s *Server) handleProjectFinish(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Manage)
	if !ok {
		return
	}
	if _, err := s.projects.Finish(r.Context(), p.ID, user.ID); err != nil {
		s.redirectWithFlash(w, r, projectURL(p.ID), err.Error())
		return
	}
	slog.Info("project finished", "project_id", p.ID)
	s.redirectWithFlash(w, r, projectURL(p.ID), "Project marked as finished. It is now read-only.")
}
