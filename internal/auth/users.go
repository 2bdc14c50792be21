package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUserNotFound is returned when no user has the given id or email.
var ErrUserNotFound = errors.New("user not found")

// User is an account. Accounts are created on first sign-in.
type User struct {
	ID                        int64     `json:"id"`
	Email                     string    `json:"email"`
	Name                      string    `json:"name"`
	ReceiveConfirmationEmails bool      `json:"receive_confirmation_emails"`
	CreatedAt                 time.Time `json:"created_at"`
}

// DisplayName returns the name, falling back to the email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserStore manages users in SQLite.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = "id, email, name, receive_confirmation_emails, created_at"

// EnsureByEmail returns the user with the given email, creating it if needed.
func (s *UserStore) EnsureByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email) VALUES (?) ON CONFLICT(email) DO NOTHING", email,
	); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return s.GetByEmail(ctx, email)
}

// GetByEmail returns a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(email),
	))
}

// GetByID returns a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id,
	))
}

// UpdateName sets the display name.
func (s *UserStore) UpdateName(ctx context.Context, id int64, name string) error {
	return s.update(ctx, "UPDATE users SET name = ? WHERE id = ?", strings.TrimSpace(name), id)
}

// SetConfirmationEmails toggles the visit confirmation email opt-in.
func (s *UserStore) SetConfirmationEmails(ctx context.Context, id int64, on bool) error {
	return s.update(ctx, "UPDATE users SET receive_confirmation_emails = ? WHERE id = ?", on, id)
}

func (s *UserStore) update(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ReceiveConfirmationEmails, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}
