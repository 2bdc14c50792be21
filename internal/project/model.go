// Package project provides house-hunt projects, their membership and
// collaboration invitations.
package project

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Status is the lifecycle state of a project.
type Status string

const (
	Active   Status = "active"
	Finished Status = "finished"
)

// Label returns a human-readable label for the status.
func (s Status) Label() string {
	switch s {
	case Active:
		return "Active"
	case Finished:
		return "Finished"
	default:
		return string(s)
	}
}

var (
	ErrNotFound            = errors.New("project not found")
	ErrNotMember           = errors.New("you do not have access to this project")
	ErrNotOwner            = errors.New("only the project owner can do that")
	ErrFinished            = errors.New("this project is finished and can no longer be changed")
	ErrAlreadyMember       = errors.New("that person is already a member of this project")
	ErrDuplicateInvitation = errors.New("an invitation has already been sent to this email")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationUsed      = errors.New("this invitation has already been accepted")
	ErrEmailMismatch       = errors.New("this invitation was sent to a different email address")
	ErrCannotRemoveOwner   = errors.New("the project owner cannot be removed")
)

const (
	minNameLength = 3
	maxNameLength = 200
)

// Project is a single house hunt shared by an owner and collaborators.
type Project struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	OwnerID    int64      `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsActive reports whether the project still accepts changes.
func (p *Project) IsActive() bool {
	return p.Status == Active
}

// IsOwner reports whether userID owns the project.
func (p *Project) IsOwner(userID int64) bool {
	return p.OwnerID == userID
}

// Member is a user with access to a project.
type Member struct {
	UserID  int64     `json:"user_id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Owner   bool      `json:"owner"`
	AddedAt time.Time `json:"added_at"`
}

// Invitation asks someone, by email, to join a project.
type Invitation struct {
	ID           int64      `json:"id"`
	ProjectID    int64      `json:"project_id"`
	Email        string     `json:"email"`
	InvitedBy    int64      `json:"invited_by"`
	InviterEmail string     `json:"inviter_email"`
	Token        string     `json:"-"`
	Accepted     bool       `json:"accepted"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
}

// NormalizeName trims and validates a project name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < minNameLength {
		return "", fmt.Errorf("project name must be at least %d characters long", minNameLength)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("project name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q is not a valid email address", email)
	}
	return email, nil
}
