package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// TokenTTL is how long a magic link stays valid.
const TokenTTL = 15 * time.Minute

var (
	// ErrInvalidToken is returned for unknown magic link tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenUsed is returned when a magic link is opened a second time.
	ErrTokenUsed = errors.New("token already used")
	// ErrTokenExpired is returned for magic links past TokenTTL.
	ErrTokenExpired = errors.New("token expired")
)

// TokenStore manages magic link tokens in SQLite.
type TokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenStore creates a token store.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

// Create generates a new magic link token for the given email.
// Returns the raw token string.
func (s *TokenStore) Create(ctx context.Context, email string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (token, email, expires_at) VALUES (?, ?, ?)",
		token, email, s.now().Add(TokenTTL),
	); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}

	return token, nil
}

// Validate checks a token and returns the associated email.
// The token is marked as used and cannot be reused.
func (s *TokenStore) Validate(ctx context.Context, token string) (string, error) {
	var email string
	var used bool
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx,
		"SELECT email, used, expires_at FROM auth_tokens WHERE token = ?",
		token,
	).Scan(&email, &used, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("querying token: %w", err)
	}

	if used {
		return "", ErrTokenUsed
	}
	if s.now().After(expiresAt) {
		return "", ErrTokenExpired
	}

	// A concurrent verify may have claimed it between the read and here.
	result, err := s.db.ExecContext(ctx,
		"UPDATE auth_tokens SET used = 1 WHERE token = ? AND used = 0",
		token,
	)
	if err != nil {
		return "", fmt.Errorf("marking token used: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return "", fmt.Errorf("checking affected rows: %w", err)
	} else if n == 0 {
		return "", ErrTokenUsed
	}

	return email, nil
}

// Cleanup removes expired tokens.
func (s *TokenStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE expires_at < ?",
		s.now(),
	); err != nil {
		return fmt.Errorf("cleaning up tokens: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
