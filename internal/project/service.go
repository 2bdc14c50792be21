package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Access is the level of permission an operation needs.
type Access int

const (
	// View allows reading a project; any member has it.
	View Access = iota
	// Contribute allows changing criteria, visits, photos and realtors; any
	// member of an active project has it.
	Contribute
	// Manage allows renaming, finishing and membership changes; only the owner
	// of an active project has it.
	Manage
)

// Service is the membership layer: every operation authorizes the caller
// before touching project data.
type Service struct {
	repo     *Repository
	now      func() time.Time
	newToken func() string
}

// NewService creates a project service.
func NewService(repo *Repository) *Service {
	return &Service{
		repo:     repo,
		now:      time.Now,
		newToken: func() string { return uuid.NewString() },
	}
}

// Repository returns the underlying repository for read-only queries.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Authorize loads the project and checks that userID has the requested access.
func (s *Service) Authorize(ctx context.Context, projectID, userID int64, need Access) (*Project, error) {
	p, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if !p.IsOwner(userID) {
		member, err := s.repo.IsMember(ctx, projectID, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotMember
		}
		if need == Manage {
			return nil, ErrNotOwner
		}
	}

	if need != View && !p.IsActive() {
		return nil, ErrFinished
	}

	return p, nil
}

// Create starts a new active project owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, name string) (*Project, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, ownerID, name)
}

// List returns the projects userID can see.
func (s *Service) List(ctx context.Context, userID int64) ([]*Project, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Rename changes the project name. Owner only, active projects only.
func (s *Service) Rename(ctx context.Context, projectID, userID int64, name string) (*Project, error) {
	if _, err := s.Authorize(ctx, projectID, userID, Manage); err != nil {
		return nil, err
	}
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rename(ctx, projectID, name); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID)
}

// Finish marks the project finished. The transition is one-way.
func (s *Service) Finish(ctx context.Context, projectID, userID int64) (*Project, error) {
	if _, err := s.Authorize(ctx, projectID, userID, Manage); err != nil {
		return nil, err
	}
	if err := s.repo.Finish(ctx, projectID, s.now()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, projectID)
}

// DeliverFunc sends an invitation to its recipient.
type DeliverFunc func(ctx context.Context, p *Project, inv *Invitation) error

// Invite creates an invitation and hands it to deliver. If delivery fails the
// invitation is deleted so it can be sent again.
func (s *Service) Invite(ctx context.Context, projectID, inviterID int64, email string, deliver DeliverFunc) (*Invitation, error) {
	p, err := s.Authorize(ctx, projectID, inviterID, Manage)
	if err != nil {
		return nil, err
	}

	email, err = NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	member, err := s.repo.IsMemberEmail(ctx, projectID, email)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	inv, err := s.repo.CreateInvitation(ctx, projectID, email, inviterID, s.newToken())
	if err != nil {
		return nil, err
	}

	if err := deliver(ctx, p, inv); err != nil {
		if delErr := s.repo.DeleteInvitation(ctx, projectID, inv.ID); delErr != nil {
			return nil, fmt.Errorf("sending invitation: %w (also failed to delete it: %v)", err, delErr)
		}
		return nil, fmt.Errorf("sending invitation: %w", err)
	}

	return inv, nil
}

// PendingInvitations lists unaccepted invitations. Any member may view them.
func (s *Service) PendingInvitations(ctx context.Context, projectID, userID int64) ([]*Invitation, error) {
	if _, err := s.Authorize(ctx, projectID, userID, View); err != nil {
		return nil, err
	}
	return s.repo.PendingInvitations(ctx, projectID)
}

// CancelInvitation deletes an invitation. Owner only, active projects only.
func (s *Service) CancelInvitation(ctx context.Context, projectID, userID, invitationID int64) error {
	if _, err := s.Authorize(ctx, projectID, userID, Manage); err != nil {
		return err
	}
	return s.repo.DeleteInvitation(ctx, projectID, invitationID)
}

// Members lists the owner and collaborators. Any member may view them.
func (s *Service) Members(ctx context.Context, projectID, userID int64) ([]*Member, error) {
	if _, err := s.Authorize(ctx, projectID, userID, View); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, projectID)
}

// RemoveCollaborator revokes a collaborator's access. Owner only, active
// projects only; the owner cannot be removed.
func (s *Service) RemoveCollaborator(ctx context.Context, projectID, userID, memberID int64) error {
	p, err := s.Authorize(ctx, projectID, userID, Manage)
	if err != nil {
		return err
	}
	if p.IsOwner(memberID) {
		return ErrCannotRemoveOwner
	}
	err = s.repo.RemoveCollaborator(ctx, projectID, memberID)
	if errors.Is(err, ErrNotFound) {
		return ErrNotMember
	}
	return err
}

// Invitation returns the invitation and its project for display before
// acceptance.
func (s *Service) Invitation(ctx context.Context, token string) (*Invitation, *Project, error) {
	inv, err := s.repo.InvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.Get(ctx, inv.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return inv, p, nil
}

// Accept accepts the invitation on behalf of the signed-in user.
func (s *Service) Accept(ctx context.Context, token string, userID int64, email string) (*Invitation, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrInvitationNotFound
	}
	return s.repo.AcceptInvitation(ctx, token, userID, email, s.now())
}
