package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/metrics"
)

func newWebAuthn(cfg auth.Config) (*webauthn.WebAuthn, error) {
	wan, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Casa",
		RPID:          cfg.Host(),
		RPOrigins:     []string{strings.TrimSuffix(cfg.BaseURL, "/")},
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}
	return wan, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "err", err)
	}
}

// handleBeginRegistration starts passkey registration from the settings page.
func (s *Server) handleBeginRegistration(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	creds, err := s.passkeys.WebAuthnCredentials(r.Context(), user.Email)
	if err != nil {
		serverError(w, "loading credentials", err)
		return
	}

	exclude := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		exclude[i] = c.Descriptor()
	}

	creation, session, err := s.wan.BeginRegistration(
		auth.NewPasskeyUser(user.Email, creds),
		webauthn.WithExclusions(exclude),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		serverError(w, "beginning registration", err)
		return
	}

	s.ceremonies.Begin(w, user.Email, session)
	writeJSON(w, creation)
}

// handleFinishRegistration completes passkey registration.
func (s *Server) handleFinishRegistration(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	owner, session, ok := s.ceremonies.Finish(w, r)
	if !ok || owner != user.Email {
		http.Error(w, "No registration in progress", http.StatusBadRequest)
		return
	}

	creds, err := s.passkeys.WebAuthnCredentials(r.Context(), user.Email)
	if err != nil {
		serverError(w, "loading credentials", err)
		return
	}

	credential, err := s.wan.FinishRegistration(auth.NewPasskeyUser(user.Email, creds), *session, r)
	if err != nil {
		slog.Warn("finishing registration", "email", user.Email, "err", err)
		http.Error(w, "Registration failed", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "Passkey"
	}
	if err := s.passkeys.Save(r.Context(), user.Email, name, credential); err != nil {
		serverError(w, "saving credential", err)
		return
	}

	slog.Info("passkey registered", "email", user.Email)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleBeginLogin starts a discoverable passkey login.
func (s *Server) handleBeginLogin(w http.ResponseWriter, r *http.Request) {
	assertion, session, err := s.wan.BeginDiscoverableLogin()
	if err != nil {
		serverError(w, "beginning passkey login", err)
		return
	}
	s.ceremonies.Begin(w, "", session)
	writeJSON(w, assertion)
}

// handleFinishLogin completes passkey login and creates a session.
func (s *Server) handleFinishLogin(w http.ResponseWriter, r *http.Request) {
	_, session, ok := s.ceremonies.Finish(w, r)
	if !ok {
		http.Error(w, "No login in progress", http.StatusBadRequest)
		return
	}

	var found *auth.PasskeyUser
	lookup := func(_, userHandle []byte) (webauthn.User, error) {
		u, err := s.passkeys.FindByUserHandle(r.Context(), userHandle)
		if err != nil {
			return nil, protocol.ErrBadRequest.WithDetails("unknown user")
		}
		found = u
		return u, nil
	}

	_, credential, err := s.wan.FinishPasskeyLogin(lookup, *session, r)
	if err != nil || found == nil {
		slog.Warn("finishing passkey login", "err", err)
		http.Error(w, "Login failed", http.StatusUnauthorized)
		return
	}

	if err := s.passkeys.Update(r.Context(), credential); err != nil {
		slog.Error("updating credential", "err", err)
	}
	if _, err := s.users.EnsureByEmail(r.Context(), found.Email()); err != nil {
		serverError(w, "loading user", err)
		return
	}
	if err := s.sessions.Create(r.Context(), w, found.Email()); err != nil {
		serverError(w, "creating session", err)
		return
	}

	s.metrics.Record(metrics.EventLogin)
	slog.Info("login success", "email", found.Email(), "method", "passkey")
	writeJSON(w, map[string]string{"status": "ok"})
}
