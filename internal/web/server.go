// Package web provides the HTTP server and handlers for the casa web UI and
// JSON API.
package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/draft"
	"github.com/evcraddock/checklist-casa/internal/email"
	"github.com/evcraddock/checklist-casa/internal/logging"
	"github.com/evcraddock/checklist-casa/internal/media"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/realtor"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures a Server.
type Options struct {
	Auth        auth.Config
	Mailer      email.Sender
	Media       *media.Store
	DraftSecret string
	DraftTTL    time.Duration
	// Metrics is optional; nil disables /metrics and request metrics.
	Metrics *metrics.Metrics
	// Logger receives request log lines. Nil uses the default logger.
	Logger *slog.Logger
}

// Server is the web UI HTTP server.
type Server struct {
	db          *sql.DB
	cfg         auth.Config
	projects    *project.Service
	criteria    *criteria.Repository
	visits      *visit.Repository
	assessments *assessment.Repository
	realtors    *realtor.Repository
	media       *media.Store
	drafts      *draft.Signer
	mailer      email.Sender
	metrics     *metrics.Metrics

	users      *auth.UserStore
	sessions   *auth.SessionStore
	tokens     *auth.TokenStore
	apiKeys    *auth.APIKeyStore
	passkeys   *auth.PasskeyStore
	ceremonies *auth.CeremonyStore
	wan        *webauthn.WebAuthn

	templates *template.Template
	mux       *http.ServeMux
	handler   http.Handler
}

// NewServer creates a web server with the given database.
func NewServer(d *sql.DB, opts Options) (*Server, error) {
	if opts.Media == nil {
		return nil, errors.New("media store is required")
	}
	if opts.Mailer == nil {
		opts.Mailer = email.LogSender{}
	}
	if opts.DraftSecret == "" {
		return nil, errors.New("draft secret is required")
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = 2 * time.Hour
	}

	wan, err := newWebAuthn(opts.Auth)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		db:          d,
		cfg:         opts.Auth,
		projects:    project.NewService(project.NewRepository(d)),
		criteria:    criteria.NewRepository(d),
		visits:      visit.NewRepository(d),
		assessments: assessment.NewRepository(d),
		realtors:    realtor.NewRepository(d),
		media:       opts.Media,
		drafts:      draft.NewSigner(opts.DraftSecret, opts.DraftTTL),
		mailer:      opts.Mailer,
		metrics:     opts.Metrics,
		users:       auth.NewUserStore(d),
		sessions:    auth.NewSessionStore(d, opts.Auth),
		tokens:      auth.NewTokenStore(d),
		apiKeys:     auth.NewAPIKeyStore(d),
		passkeys:    auth.NewPasskeyStore(d),
		ceremonies:  auth.NewCeremonyStore(opts.Auth),
		wan:         wan,
		templates:   tmpl,
		mux:         http.NewServeMux(),
	}

	if err := s.routes(); err != nil {
		return nil, err
	}

	var app http.Handler = s.mux
	if s.metrics != nil {
		app = s.metrics.Middleware(app)
	}
	app = auth.RequireAuth(s.sessions, s.users, auth.RequireAPIKey(s.apiKeys, s.users, app))

	top := http.NewServeMux()
	if s.metrics != nil {
		top.Handle("GET /metrics", s.metrics.Handler())
	}
	top.Handle("/", app)
	s.handler = logging.RequestLogger(opts.Logger, top)

	return s, nil
}

func (s *Server) routes() error {
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static sub-fs: %w", err)
	}
	m := s.mux

	m.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))
	m.Handle("GET /media/", http.StripPrefix("/media", s.media.Handler()))
	m.HandleFunc("GET /health", s.handleHealth)

	// auth
	m.HandleFunc("GET /login", s.handleLoginPage)
	m.HandleFunc("POST /auth/login", s.handleLoginSubmit)
	m.HandleFunc("GET /auth/verify", s.handleVerify)
	m.HandleFunc("/auth/logout", s.handleLogout)
	m.HandleFunc("POST /passkey/register/begin", s.handleBeginRegistration)
	m.HandleFunc("POST /passkey/register/finish", s.handleFinishRegistration)
	m.HandleFunc("POST /passkey/login/begin", s.handleBeginLogin)
	m.HandleFunc("POST /passkey/login/finish", s.handleFinishLogin)
	m.HandleFunc("GET /cli/auth", s.handleCLIAuthPage)
	m.HandleFunc("POST /cli/auth", s.handleCLIAuthSubmit)
	m.HandleFunc("GET /cli/auth/verify", s.handleCLIAuthVerify)
	m.HandleFunc("GET /cli/auth/complete", s.handleCLIAuthComplete)

	// settings
	m.HandleFunc("GET /settings", s.handleSettings)
	m.HandleFunc("POST /settings", s.handleSettingsUpdate)
	m.HandleFunc("POST /settings/passkeys/delete", s.handlePasskeyDelete)
	m.HandleFunc("POST /settings/api-keys", s.handleSettingsCreateKey)
	m.HandleFunc("POST /settings/api-keys/{keyID}/delete", s.handleSettingsDeleteKey)

	// projects
	m.HandleFunc("GET /{$}", s.handleHome)
	m.HandleFunc("GET /projects", s.handleProjects)
	m.HandleFunc("POST /projects", s.handleProjectCreate)
	m.HandleFunc("GET /projects/{id}", s.handleProject)
	m.HandleFunc("POST /projects/{id}/rename", s.handleProjectRename)
	m.HandleFunc("POST /projects/{id}/finish", s.handleProjectFinish)

	// criteria
	m.HandleFunc("GET /projects/{id}/criteria", s.handleCriteria)
	m.HandleFunc("POST /projects/{id}/criteria", s.handleCriteriaCreate)
	m.HandleFunc("POST /projects/{id}/criteria/defaults", s.handleCriteriaDefaults)
	m.HandleFunc("POST /projects/{id}/criteria/reorder", s.handleCriteriaReorder)
	m.HandleFunc("POST /projects/{id}/criteria/{cid}", s.handleCriteriaUpdate)
	m.HandleFunc("POST /projects/{id}/criteria/{cid}/delete", s.handleCriteriaDelete)

	// realtors
	m.HandleFunc("GET /projects/{id}/realtors", s.handleRealtors)
	m.HandleFunc("POST /projects/{id}/realtors", s.handleRealtorCreate)
	m.HandleFunc("POST /projects/{id}/realtors/{rid}", s.handleRealtorUpdate)
	m.HandleFunc("POST /projects/{id}/realtors/{rid}/delete", s.handleRealtorDelete)

	// visit wizard
	m.HandleFunc("GET /projects/{id}/visits/new", s.handleWizardDetails)
	m.HandleFunc("POST /projects/{id}/visits/new", s.handleWizardDetailsSubmit)
	m.HandleFunc("GET /projects/{id}/visits/new/assess", s.handleWizardAssess)
	m.HandleFunc("POST /projects/{id}/visits/new/assess", s.handleWizardAssessSubmit)
	m.HandleFunc("GET /projects/{id}/visits/new/photos", s.handleWizardPhotos)
	m.HandleFunc("POST /projects/{id}/visits/new/photos", s.handleWizardPhotoUpload)
	m.HandleFunc("POST /projects/{id}/visits/new/done", s.handleWizardDone)

	// visits
	m.HandleFunc("GET /projects/{id}/visits/{vid}", s.handleVisit)
	m.HandleFunc("GET /projects/{id}/visits/{vid}/edit", s.handleVisitEdit)
	m.HandleFunc("POST /projects/{id}/visits/{vid}", s.handleVisitUpdate)
	m.HandleFunc("POST /projects/{id}/visits/{vid}/delete", s.handleVisitDelete)
	m.HandleFunc("POST /projects/{id}/visits/{vid}/photos", s.handlePhotoUpload)
	m.HandleFunc("POST /projects/{id}/visits/{vid}/photos/{pid}/caption", s.handlePhotoCaption)
	m.HandleFunc("POST /projects/{id}/visits/{vid}/photos/{pid}/delete", s.handlePhotoDelete)

	// comparison
	m.HandleFunc("GET /projects/{id}/compare", s.handleCompare)
	m.HandleFunc("GET /projects/{id}/export.csv", s.handleExport)

	// membership
	m.HandleFunc("GET /projects/{id}/members", s.handleMembers)
	m.HandleFunc("POST /projects/{id}/invitations", s.handleInvite)
	m.HandleFunc("POST /projects/{id}/invitations/{iid}/cancel", s.handleInvitationCancel)
	m.HandleFunc("POST /projects/{id}/members/{uid}/remove", s.handleMemberRemove)
	m.HandleFunc("GET /invitations/{token}", s.handleInvitation)
	m.HandleFunc("POST /invitations/{token}/accept", s.handleInvitationAccept)

	// JSON API
	m.HandleFunc("GET /api/projects", s.apiListProjects)
	m.HandleFunc("POST /api/projects", s.apiCreateProject)
	m.HandleFunc("GET /api/projects/{id}", s.apiGetProject)
	m.HandleFunc("POST /api/projects/{id}/finish", s.apiFinishProject)
	m.HandleFunc("GET /api/projects/{id}/criteria", s.apiListCriteria)
	m.HandleFunc("POST /api/projects/{id}/criteria", s.apiCreateCriteria)
	m.HandleFunc("GET /api/projects/{id}/visits", s.apiListVisits)
	m.HandleFunc("POST /api/projects/{id}/visits", s.apiCreateVisit)
	m.HandleFunc("GET /api/projects/{id}/visits/{vid}", s.apiGetVisit)
	m.HandleFunc("GET /api/projects/{id}/comparison", s.apiComparison)
	m.HandleFunc("GET /api/projects/{id}/export.csv", s.apiExport)
	m.HandleFunc("GET /api/keys", s.handleListKeys)
	m.HandleFunc("POST /api/keys", s.handleCreateKey)
	m.HandleFunc("DELETE /api/keys/{keyID}", s.handleDeleteKey)

	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting web UI", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down web UI")
		return srv.Shutdown(shutdownCtx)
	}
}

// handleHealth reports whether the server can reach its database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		slog.Error("health check", "err", err)
		apiJSON(w, map[string]string{"status": "error", "db": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	apiJSON(w, map[string]string{"status": "ok", "db": "ok"}, http.StatusOK)
}
