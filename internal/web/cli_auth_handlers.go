package web

import (
	"log/slog"
	"net/http"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/project"
)

type cliAuthData struct {
	layout
	APIKey  string
	Message string
	Error   string
}

// handleCLIAuthPage serves the CLI login page.
func (s *Server) handleCLIAuthPage(w http.ResponseWriter, r *http.Request) {
	if auth.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/cli/auth/complete", http.StatusSeeOther)
		return
	}
	s.render(w, "cli_auth.html", cliAuthData{layout: s.page(w, r, "CLI login")})
}

// handleCLIAuthSubmit emails a magic link that finishes at /cli/auth/complete.
func (s *Server) handleCLIAuthSubmit(w http.ResponseWriter, r *http.Request) {
	addr, err := project.NormalizeEmail(r.FormValue("email"))
	if err != nil {
		s.renderStatus(w, http.StatusUnprocessableEntity, "cli_auth.html", cliAuthData{
			layout: s.page(w, r, "CLI login"),
			Error:  err.Error(),
		})
		return
	}

	if err := s.sendMagicLink(r, addr, s.cfg.BaseURL+"/cli/auth/verify?", "", true); err != nil {
		slog.Error("sending cli magic link", "email", addr, "err", err)
	}
	s.render(w, "cli_auth.html", cliAuthData{layout: s.page(w, r, "CLI login"), Message: loginSentMessage})
}

// handleCLIAuthVerify validates the magic link token, creates a session,
// then redirects to /cli/auth/complete.
func (s *Server) handleCLIAuthVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.verifyToken(w, r); !ok {
		s.renderStatus(w, http.StatusBadRequest, "cli_auth.html", cliAuthData{
			layout: s.page(w, r, "CLI login"),
			Error:  "Invalid or expired login link. Please try again.",
		})
		return
	}
	http.Redirect(w, r, "/cli/auth/complete", http.StatusSeeOther)
}

// handleCLIAuthComplete generates an API key for the signed-in user and
// displays it once.
func (s *Server) handleCLIAuthComplete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, "/cli/auth", http.StatusSeeOther)
		return
	}

	raw, _, err := s.apiKeys.Create(r.Context(), "CLI", user.Email)
	if err != nil {
		serverError(w, "creating api key", err)
		return
	}
	s.render(w, "cli_auth.html", cliAuthData{layout: s.page(w, r, "CLI login"), APIKey: raw})
}
