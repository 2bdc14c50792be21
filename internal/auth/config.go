// Package auth provides authentication via magic link email, passkeys,
// sessions and API keys.
package auth

import (
	"net/url"
	"time"
)

// Config holds authentication configuration.
type Config struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DevMode    bool          `env:"DEV_MODE"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// Secure reports whether cookies should carry the Secure attribute.
func (c Config) Secure() bool {
	u, err := url.Parse(c.BaseURL)
	return err == nil && u.Scheme == "https"
}

// Host returns the host portion of BaseURL, used as the WebAuthn relying party ID.
func (c Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}
