package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/evcraddock/checklist-casa/internal/auth"
)

type apiKeyResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	KeyPrefix  string  `json:"key_prefix"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

type apiKeyCreateResponse struct {
	Key            string         `json:"key"` // raw key, shown once
	APIKeyResponse apiKeyResponse `json:"api_key"`
}

func toAPIKeyResponse(k auth.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.LastUsedAt != nil {
		used := k.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &used
	}
	return resp
}

// handleCreateKey generates a new API key for the session user.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	raw, key, err := s.apiKeys.Create(r.Context(), body.Name, user.Email)
	if err != nil {
		apiError(w, "creating api key failed", http.StatusInternalServerError)
		return
	}
	apiJSON(w, apiKeyCreateResponse{Key: raw, APIKeyResponse: toAPIKeyResponse(*key)}, http.StatusCreated)
}

// handleListKeys returns the session user's API keys (without raw keys).
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	keys, err := s.apiKeys.List(r.Context(), user.Email)
	if err != nil {
		apiError(w, "listing api keys failed", http.StatusInternalServerError)
		return
	}

	resp := make([]apiKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = toAPIKeyResponse(k)
	}
	apiJSON(w, resp, http.StatusOK)
}

// handleDeleteKey revokes one of the session user's API keys.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id, err := pathID(r, "keyID")
	if err != nil {
		apiError(w, "invalid key ID", http.StatusBadRequest)
		return
	}

	err = s.apiKeys.Delete(r.Context(), id, user.Email)
	switch {
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		apiError(w, "deleting api key failed", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
