package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/email"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
)

type membersData struct {
	layout
	Project     *project.Project
	IsOwner     bool
	Members     []*project.Member
	Invitations []*project.Invitation
	InviteEmail string
	InviteError string
}

func membersURL(pid int64) string {
	return fmt.Sprintf("/projects/%d/members", pid)
}

// handleMembers lists the owner, collaborators and pending invitations.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.View)
	if !ok {
		return
	}
	s.renderMembers(w, r, http.StatusOK, p, user, "", "")
}

func (s *Server) renderMembers(w http.ResponseWriter, r *http.Request, code int, p *project.Project, user *auth.User, inviteEmail, inviteErr string) {
	members, err := s.projects.Members(r.Context(), p.ID, user.ID)
	if err != nil {
		serverError(w, "listing members", err)
		return
	}
	invitations, err := s.projects.PendingInvitations(r.Context(), p.ID, user.ID)
	if err != nil {
		serverError(w, "listing invitations", err)
		return
	}
	s.renderStatus(w, code, "members.html", membersData{
		layout:      s.page(w, r, "Members · "+p.Name),
		Project:     p,
		IsOwner:     p.IsOwner(user.ID),
		Members:     members,
		Invitations: invitations,
		InviteEmail: inviteEmail,
		InviteError: inviteErr,
	})
}

// deliverInvitation emails the acceptance link for inv.
func (s *Server) deliverInvitation(inviter *auth.User) project.DeliverFunc {
	return func(_ context.Context, p *project.Project, inv *project.Invitation) error {
		link := s.cfg.BaseURL + "/invitations/" + inv.Token
		return email.Deliver(s.mailer, inv.Email, email.Invitation(p.Name, inviter.DisplayName(), link))
	}
}

// handleInvite sends an invitation (owner only). Duplicate invitations and
// existing members are reported on the form.
func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Manage)
	if !ok {
		return
	}

	addr := r.FormValue("email")
	inv, err := s.projects.Invite(r.Context(), p.ID, user.ID, addr, s.deliverInvitation(user))
	switch {
	case err == nil:
	case errors.Is(err, project.ErrDuplicateInvitation), errors.Is(err, project.ErrAlreadyMember):
		s.renderMembers(w, r, http.StatusUnprocessableEntity, p, user, addr, err.Error())
		return
	case errors.Is(err, project.ErrNotOwner), errors.Is(err, project.ErrFinished):
		s.redirectWithFlash(w, r, projectURL(p.ID), err.Error())
		return
	default:
		if _, nerr := project.NormalizeEmail(addr); nerr != nil {
			s.renderMembers(w, r, http.StatusUnprocessableEntity, p, user, addr, nerr.Error())
			return
		}
		slog.Error("sending invitation", "project_id", p.ID, "email", addr, "err", err)
		s.redirectWithFlash(w, r, membersURL(p.ID), "The invitation email could not be sent. Please try again.")
		return
	}

	s.metrics.Record(metrics.EventInvitationSent)
	slog.Info("invitation sent", "project_id", p.ID, "email", inv.Email)
	s.redirectWithFlash(w, r, membersURL(p.ID), fmt.Sprintf("Invitation sent to %s.", inv.Email))
}

// handleInvitationCancel deletes a pending invitation (owner only).
func (s *Server) handleInvitationCancel(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Manage)
	if !ok {
		return
	}
	iid, err := pathID(r, "iid")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	err = s.projects.CancelInvitation(r.Context(), p.ID, user.ID, iid)
	switch {
	case errors.Is(err, project.ErrInvitationNotFound):
		s.redirectWithFlash(w, r, membersURL(p.ID), err.Error())
	case err != nil:
		serverError(w, "cancelling invitation", err)
	default:
		s.redirectWithFlash(w, r, membersURL(p.ID), "Invitation cancelled.")
	}
}

// handleMemberRemove revokes a collaborator's access (owner only).
func (s *Server) handleMemberRemove(w http.ResponseWriter, r *http.Request) {
	p, user, ok := s.projectFor(w, r, project.Manage)
	if !ok {
		return
	}
	uid, err := pathID(r, "uid")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	err = s.projects.RemoveCollaborator(r.Context(), p.ID, user.ID, uid)
	switch {
	case errors.Is(err, project.ErrCannotRemoveOwner), errors.Is(err, project.ErrNotMember):
		s.redirectWithFlash(w, r, membersURL(p.ID), err.Error())
	case err != nil:
		serverError(w, "removing collaborator", err)
	default:
		s.redirectWithFlash(w, r, membersURL(p.ID), "Collaborator removed.")
	}
}

type invitationData struct {
	layout
	Invitation *project.Invitation
	Project    *project.Project
	Token      string
	Mismatch   bool
}

// handleInvitation shows an invitation so the signed-in user can accept it.
func (s *Server) handleInvitation(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	token := r.PathValue("token")

	inv, p, err := s.projects.Invitation(r.Context(), token)
	if errors.Is(err, project.ErrInvitationNotFound) || errors.Is(err, project.ErrNotFound) {
		s.redirectWithFlash(w, r, "/projects", project.ErrInvitationNotFound.Error())
		return
	}
	if err != nil {
		serverError(w, "loading invitation", err)
		return
	}
	if inv.Accepted {
		s.redirectWithFlash(w, r, "/projects", project.ErrInvitationUsed.Error())
		return
	}

	s.render(w, "invitation.html", invitationData{
		layout:     s.page(w, r, "Invitation to "+p.Name),
		Invitation: inv,
		Project:    p,
		Token:      token,
		Mismatch:   user != nil && !sameEmail(user.Email, inv.Email),
	})
}

// handleInvitationAccept adds the signed-in user to the project. The user's
// email must match the invited address.
func (s *Server) handleInvitationAccept(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	token := r.PathValue("token")

	inv, err := s.projects.Accept(r.Context(), token, user.ID, user.Email)
	switch {
	case err == nil:
	case errors.Is(err, project.ErrEmailMismatch):
		s.redirectWithFlash(w, r, "/projects",
			fmt.Sprintf("%s. You are signed in as %s.", err.Error(), user.Email))
		return
	case errors.Is(err, project.ErrInvitationNotFound), errors.Is(err, project.ErrInvitationUsed), errors.Is(err, project.ErrFinished):
		s.redirectWithFlash(w, r, "/projects", err.Error())
		return
	default:
		serverError(w, "accepting invitation", err)
		return
	}

	s.metrics.Record(metrics.EventInvitationAccepted)
	slog.Info("invitation accepted", "project_id", inv.ProjectID, "email", user.Email)
	s.redirectWithFlash(w, r, projectURL(inv.ProjectID), "Welcome! You now have access to this project.")
}

func sameEmail(a, b string) bool {
	na, errA := project.NormalizeEmail(a)
	nb, errB := project.NormalizeEmail(b)
	return errA == nil && errB == nil && na == nb
}
