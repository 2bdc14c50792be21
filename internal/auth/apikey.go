package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	apiKeyBytes  = 32 // 256-bit keys
	apiKeyPrefix = "casa_"
)

var (
	// ErrInvalidAPIKey is returned for unknown keys.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrAPIKeyNotFound is returned when deleting a key the user does not own.
	ErrAPIKeyNotFound = errors.New("key not found")
)

// APIKey is the stored representation of an API key (no raw key).
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	KeyPrefix  string     `json:"key_prefix"` // first 12 chars for identification
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore manages API keys in SQLite.
type APIKeyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Create generates a new API key owned by email.
// Returns the raw key (shown once to user) and the stored record.
func (s *APIKeyStore) Create(ctx context.Context, name, email string) (string, *APIKey, error) {
	raw, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "API Key"
	}
	key := &APIKey{
		Name:      name,
		Email:     strings.ToLower(email),
		KeyPrefix: raw[:12],
		CreatedAt: s.now(),
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (name, email, key_prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		key.Name, key.Email, key.KeyPrefix, hashAPIKey(raw), key.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	key.ID, err = result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("getting key id: %w", err)
	}

	return raw, key, nil
}

// List returns the user's API keys, newest first.
func (s *APIKeyStore) List(ctx context.Context, email string) (keys []APIKey, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, key_prefix, created_at, last_used_at FROM api_keys
		 WHERE email = ? ORDER BY created_at DESC, id DESC`,
		strings.ToLower(email),
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.Email, &k.KeyPrefix, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Delete removes one of the user's API keys.
func (s *APIKeyStore) Delete(ctx context.Context, id int64, email string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM api_keys WHERE id = ? AND email = ?", id, strings.ToLower(email),
	)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// Validate checks a raw API key, updates last_used_at and returns the
// owner's email.
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) (string, error) {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return "", ErrInvalidAPIKey
	}
	hash := hashAPIKey(rawKey)

	var email string
	err := s.db.QueryRowContext(ctx,
		"SELECT email FROM api_keys WHERE key_hash = ?", hash,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("validating key: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?", s.now(), hash,
	); err != nil {
		return "", fmt.Errorf("touching key: %w", err)
	}

	return email, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
