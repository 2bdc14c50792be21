package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/email"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
)

const loginSentMessage = "A login link has been sent. Check your inbox."

type loginData struct {
	layout
	Next    string
	Email   string
	Message string
	Error   string
}

// handleLoginPage renders the login form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"))
	if auth.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.render(w, "login.html", loginData{layout: s.page(w, r, "Log in"), Next: next})
}

// handleLoginSubmit emails a magic link to the submitted address.
func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.FormValue("next"))
	addr, err := project.NormalizeEmail(r.FormValue("email"))
	if err != nil {
		s.renderStatus(w, http.StatusUnprocessableEntity, "login.html", loginData{
			layout: s.page(w, r, "Log in"),
			Next:   next,
			Email:  r.FormValue("email"),
			Error:  err.Error(),
		})
		return
	}

	link := s.cfg.BaseURL + "/auth/verify?"
	if err := s.sendMagicLink(r, addr, link, next, false); err != nil {
		slog.Error("sending magic link", "email", addr, "err", err)
	}

	s.render(w, "login.html", loginData{layout: s.page(w, r, "Log in"), Next: next, Message: loginSentMessage})
}

// sendMagicLink creates a login token and mails base+query to addr.
func (s *Server) sendMagicLink(r *http.Request, addr, base, next string, cli bool) error {
	token, err := s.tokens.Create(r.Context(), addr)
	if err != nil {
		return err
	}
	q := url.Values{"token": {token}}
	if next != "" && next != "/" {
		q.Set("next", next)
	}
	return email.Deliver(s.mailer, addr, email.MagicLink(base+q.Encode(), cli))
}

// handleVerify consumes a magic link token and starts a session, creating
// the account on first sign-in.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"))
	addr, ok := s.verifyToken(w, r)
	if !ok {
		s.renderStatus(w, http.StatusBadRequest, "login.html", loginData{
			layout: s.page(w, r, "Log in"),
			Next:   next,
			Error:  "Invalid or expired login link. Please request a new one.",
		})
		return
	}
	slog.Info("login success", "email", addr, "method", "magic_link")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// verifyToken validates the token query parameter and creates a session.
func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", false
	}

	addr, err := s.tokens.Validate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenUsed) && !errors.Is(err, auth.ErrTokenExpired) {
			slog.Error("validating login token", "err", err)
		}
		return "", false
	}

	if _, err := s.users.EnsureByEmail(r.Context(), addr); err != nil {
		slog.Error("creating user", "email", addr, "err", err)
		return "", false
	}
	if err := s.sessions.Create(r.Context(), w, addr); err != nil {
		slog.Error("creating session", "email", addr, "err", err)
		return "", false
	}
	s.metrics.Record(metrics.EventLogin)
	return addr, true
}

// handleLogout destroys the session and redirects to login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.sessions.Destroy(w, r); err != nil {
		slog.Error("destroying session", "err", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
