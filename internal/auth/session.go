package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CookieName is the session cookie.
const CookieName = "casa_session"

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session cookie")
	// ErrInvalidSession is returned for unknown or expired sessions.
	ErrInvalidSession = errors.New("invalid session")
)

// SessionStore manages sessions in SQLite.
type SessionStore struct {
	db     *sql.DB
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionStore creates a session store.
func NewSessionStore(db *sql.DB, cfg Config) *SessionStore {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionStore{db: db, ttl: ttl, secure: cfg.Secure(), now: time.Now}
}

// Create generates a new session for the given email and sets the cookie.
func (s *SessionStore) Create(ctx context.Context, w http.ResponseWriter, email string) error {
	id, err := generateToken()
	if err != nil {
		return fmt.Errorf("generating session ID: %w", err)
	}

	expiresAt := s.now().Add(s.ttl)

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, email, expires_at) VALUES (?, ?, ?)",
		id, email, expiresAt,
	); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Validate checks the session cookie and returns the email if valid.
func (s *SessionStore) Validate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrNoSession
	}

	var email string
	var expiresAt time.Time

	err = s.db.QueryRowContext(r.Context(),
		"SELECT email, expires_at FROM sessions WHERE id = ?",
		cookie.Value,
	).Scan(&email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}

	if s.now().After(expiresAt) {
		if _, delErr := s.db.ExecContext(r.Context(), "DELETE FROM sessions WHERE id = ?", cookie.Value); delErr != nil {
			return "", fmt.Errorf("deleting expired session: %w", delErr)
		}
		return "", ErrInvalidSession
	}

	return email, nil
}

// Destroy removes the session and clears the cookie.
func (s *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil // no session to destroy
	}

	if _, err := s.db.ExecContext(r.Context(), "DELETE FROM sessions WHERE id = ?", cookie.Value); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Cleanup removes expired sessions.
func (s *SessionStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ?",
		s.now(),
	); err != nil {
		return fmt.Errorf("cleaning up sessions: %w", err)
	}
	return nil
}
