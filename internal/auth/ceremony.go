package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

const (
	ceremonyCookie = "casa_webauthn"
	ceremonyTTL    = 5 * time.Minute
)

type ceremony struct {
	email   string
	data    *webauthn.SessionData
	expires time.Time
}

// CeremonyStore holds in-flight WebAuthn ceremonies, keyed by a random id
// carried in a short-lived cookie so concurrent logins do not collide.
type CeremonyStore struct {
	mu      sync.Mutex
	pending map[string]ceremony
	secure  bool
	now     func() time.Time
}

// NewCeremonyStore creates an empty store.
func NewCeremonyStore(cfg Config) *CeremonyStore {
	return &CeremonyStore{
		pending: make(map[string]ceremony),
		secure:  cfg.Secure(),
		now:     time.Now,
	}
}

// Begin stores data for email (empty for discoverable login) and sets the
// ceremony cookie.
func (c *CeremonyStore) Begin(w http.ResponseWriter, email string, data *webauthn.SessionData) {
	id := uuid.NewString()
	now := c.now()

	c.mu.Lock()
	for k, v := range c.pending {
		if now.After(v.expires) {
			delete(c.pending, k)
		}
	}
	c.pending[id] = ceremony{email: email, data: data, expires: now.Add(ceremonyTTL)}
	c.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     ceremonyCookie,
		Value:    id,
		Path:     "/passkey/",
		MaxAge:   int(ceremonyTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Finish removes and returns the ceremony referenced by the request cookie.
func (c *CeremonyStore) Finish(w http.ResponseWriter, r *http.Request) (string, *webauthn.SessionData, bool) {
	cookie, err := r.Cookie(ceremonyCookie)
	if err != nil {
		return "", nil, false
	}
	http.SetCookie(w, &http.Cookie{Name: ceremonyCookie, Value: "", Path: "/passkey/", MaxAge: -1})

	c.mu.Lock()
	cer, ok := c.pending[cookie.Value]
	delete(c.pending, cookie.Value)
	c.mu.Unlock()

	if !ok || c.now().After(cer.expires) {
		return "", nil, false
	}
	return cer.email, cer.data, true
}
