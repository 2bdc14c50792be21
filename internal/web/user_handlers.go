package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/evcraddock/checklist-casa/internal/auth"
)

type settingsData struct {
	layout
	Passkeys []auth.StoredCredential
	APIKeys  []auth.APIKey
	NewKey   string
	Error    string
}

// handleSettings shows the account page: name, email preferences, passkeys
// and API keys.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.renderSettings(w, r, http.StatusOK, "", "")
}

func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, code int, newKey, formErr string) {
	user := auth.UserFromContext(r.Context())
	passkeys, err := s.passkeys.ListByEmail(r.Context(), user.Email)
	if err != nil {
		serverError(w, "listing passkeys", err)
		return
	}
	keys, err := s.apiKeys.List(r.Context(), user.Email)
	if err != nil {
		serverError(w, "listing api keys", err)
		return
	}
	s.renderStatus(w, code, "settings.html", settingsData{
		layout:   s.page(w, r, "Settings"),
		Passkeys: passkeys,
		APIKeys:  keys,
		NewKey:   newKey,
		Error:    formErr,
	})
}

// handleSettingsUpdate saves the display name and the confirmation email
// preference.
func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	name := strings.TrimSpace(r.FormValue("name"))
	if len(name) > 100 {
		s.renderSettings(w, r, http.StatusUnprocessableEntity, "", "name must be at most 100 characters")
		return
	}

	if err := s.users.UpdateName(r.Context(), user.ID, name); err != nil {
		serverError(w, "updating name", err)
		return
	}
	if err := s.users.SetConfirmationEmails(r.Context(), user.ID, r.FormValue("confirmation_emails") == "on"); err != nil {
		serverError(w, "updating email preference", err)
		return
	}
	s.redirectWithFlash(w, r, "/settings", "Settings saved.")
}

// handlePasskeyDelete removes one of the user's passkeys.
func (s *Server) handlePasskeyDelete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	err := s.passkeys.Delete(r.Context(), r.FormValue("id"), user.Email)
	switch {
	case errors.Is(err, auth.ErrCredentialNotFound):
		s.redirectWithFlash(w, r, "/settings", "Passkey not found.")
	case err != nil:
		serverError(w, "deleting passkey", err)
	default:
		s.redirectWithFlash(w, r, "/settings", "Passkey removed.")
	}
}

// handleSettingsCreateKey creates an API key and shows it once.
func (s *Server) handleSettingsCreateKey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	raw, _, err := s.apiKeys.Create(r.Context(), r.FormValue("name"), user.Email)
	if err != nil {
		serverError(w, "creating api key", err)
		return
	}
	s.renderSettings(w, r, http.StatusOK, raw, "")
}

// handleSettingsDeleteKey revokes one of the user's API keys.
func (s *Server) handleSettingsDeleteKey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id, err := pathID(r, "keyID")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	err = s.apiKeys.Delete(r.Context(), id, user.Email)
	switch {
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		s.redirectWithFlash(w, r, "/settings", "API key not found.")
	case err != nil:
		serverError(w, "deleting api key", err)
	default:
		s.redirectWithFlash(w, r, "/settings", "API key revoked.")
	}
}
