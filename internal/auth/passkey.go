package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ErrCredentialNotFound is returned when no passkey matches.
var ErrCredentialNotFound = errors.New("credential not found")

// UserHandle returns the stable WebAuthn user handle for an email.
func UserHandle(email string) []byte {
	h := sha256.Sum256([]byte(strings.ToLower(email)))
	return h[:]
}

// PasskeyUser implements webauthn.User.
type PasskeyUser struct {
	email       string
	credentials []webauthn.Credential
}

// NewPasskeyUser creates a PasskeyUser for the given email.
func NewPasskeyUser(email string, credentials []webauthn.Credential) *PasskeyUser {
	return &PasskeyUser{email: strings.ToLower(email), credentials: credentials}
}

// Email returns the user's email.
func (u *PasskeyUser) Email() string { return u.email }

// WebAuthnID returns the user handle.
func (u *PasskeyUser) WebAuthnID() []byte { return UserHandle(u.email) }

// WebAuthnName returns the email.
func (u *PasskeyUser) WebAuthnName() string { return u.email }

// WebAuthnDisplayName returns the email.
func (u *PasskeyUser) WebAuthnDisplayName() string { return u.email }

// WebAuthnCredentials returns the stored credentials.
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// PasskeyStore manages passkey credentials in SQLite.
type PasskeyStore struct {
	db *sql.DB
}

// NewPasskeyStore creates a passkey store.
func NewPasskeyStore(db *sql.DB) *PasskeyStore {
	return &PasskeyStore{db: db}
}

// StoredCredential is a passkey credential with metadata.
type StoredCredential struct {
	ID         string
	Email      string
	Name       string
	Credential webauthn.Credential
}

// Save stores a new passkey credential.
func (s *PasskeyStore) Save(ctx context.Context, email, name string, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	email = strings.ToLower(email)
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO passkey_credentials (id, email, user_handle, name, credential_json) VALUES (?, ?, ?, ?, ?)",
		hex.EncodeToString(cred.ID), email, hex.EncodeToString(UserHandle(email)), name, string(data),
	); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	return nil
}

// Update rewrites a credential after a login, keeping its sign count current.
func (s *PasskeyStore) Update(ctx context.Context, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE passkey_credentials SET credential_json = ? WHERE id = ?",
		string(data), hex.EncodeToString(cred.ID),
	); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return nil
}

// ListByEmail returns all credentials for the given email.
func (s *PasskeyStore) ListByEmail(ctx context.Context, email string) ([]StoredCredential, error) {
	return s.list(ctx, "SELECT id, email, name, credential_json FROM passkey_credentials WHERE email = ? ORDER BY created_at",
		strings.ToLower(email))
}

// FindByUserHandle resolves a discoverable login to the owning user.
func (s *PasskeyStore) FindByUserHandle(ctx context.Context, handle []byte) (*PasskeyUser, error) {
	stored, err := s.list(ctx, "SELECT id, email, name, credential_json FROM passkey_credentials WHERE user_handle = ?",
		hex.EncodeToString(handle))
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, ErrCredentialNotFound
	}

	creds := make([]webauthn.Credential, len(stored))
	for i, sc := range stored {
		creds[i] = sc.Credential
	}
	return NewPasskeyUser(stored[0].Email, creds), nil
}

// WebAuthnCredentials returns just the webauthn.Credential slice for the given email.
func (s *PasskeyStore) WebAuthnCredentials(ctx context.Context, email string) ([]webauthn.Credential, error) {
	stored, err := s.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	creds := make([]webauthn.Credential, len(stored))
	for i, sc := range stored {
		creds[i] = sc.Credential
	}

	return creds, nil
}

// Delete removes a credential by ID.
func (s *PasskeyStore) Delete(ctx context.Context, id, email string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM passkey_credentials WHERE id = ? AND email = ?",
		id, strings.ToLower(email),
	)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

func (s *PasskeyStore) list(ctx context.Context, query string, arg any) (result []StoredCredential, err error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var sc StoredCredential
		var data string
		if err := rows.Scan(&sc.ID, &sc.Email, &sc.Name, &data); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &sc.Credential); err != nil {
			return nil, fmt.Errorf("unmarshaling credential: %w", err)
		}
		result = append(result, sc)
	}

	return result, rows.Err()
}
