package project

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/evcraddock/checklist-casa/internal/db"
)

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Spring Search", false},
		{"trimmed to valid", "  Abc  ", false},
		{"too short", "ab", true},
		{"blank", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.Create(ctx, f.owner, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Status != Active || p.FinishedAt != nil {
				t.Errorf("new project should be active without finished_at: %+v", p)
			}
			if p.OwnerEmail != "owner@example.com" {
				t.Errorf("owner email = %q", p.OwnerEmail)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCollaborator(t, f.collaborator)

	tests := []struct {
		name    string
		user    int64
		need    Access
		finish  bool
		wantErr error
	}{
		{"owner view", f.owner, View, false, nil},
		{"owner manage", f.owner, Manage, false, nil},
		{"collaborator view", f.collaborator, View, false, nil},
		{"collaborator contribute", f.collaborator, Contribute, false, nil},
		{"collaborator manage", f.collaborator, Manage, false, ErrNotOwner},
		{"stranger view", f.stranger, View, false, ErrNotMember},
		{"stranger manage", f.stranger, Manage, false, ErrNotMember},
		{"finished view", f.collaborator, View, true, nil},
		{"finished contribute", f.collaborator, Contribute, true, ErrFinished},
		{"finished manage", f.owner, Manage, true, ErrFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.Create(ctx, f.owner, "Search "+tt.name)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := f.db.Exec(`INSERT INTO project_collaborators (project_id, user_id) VALUES (?, ?)`, p.ID, f.collaborator); err != nil {
				t.Fatalf("add collaborator: %v", err)
			}
			if tt.finish {
				if _, err := f.svc.Finish(ctx, p.ID, f.owner); err != nil {
					t.Fatalf("finish: %v", err)
				}
			}

			_, err = f.svc.Authorize(ctx, p.ID, tt.user, tt.need)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.svc.Authorize(ctx, 9999, f.owner, View); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project err = %v, want ErrNotFound", err)
	}
}

func TestFinishIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	p, err := f.svc.Finish(ctx, f.projectID, f.owner)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if p.Status != Finished {
		t.Errorf("status = %q, want finished", p.Status)
	}
	if p.FinishedAt == nil || !p.FinishedAt.Equal(fixed) {
		t.Errorf("finished_at = %v, want %v", p.FinishedAt, fixed)
	}

	if _, err := f.svc.Finish(ctx, f.projectID, f.owner); !errors.Is(err, ErrFinished) {
		t.Errorf("second finish err = %v, want ErrFinished", err)
	}
	if _, err := f.svc.Rename(ctx, f.projectID, f.owner, "Reopened?"); !errors.Is(err, ErrFinished) {
		t.Errorf("rename finished err = %v, want ErrFinished", err)
	}
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCollaborator(t, f.collaborator)

	p, err := f.svc.Rename(ctx, f.projectID, f.owner, "Fall Search")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if p.Name != "Fall Search" {
		t.Errorf("name = %q", p.Name)
	}

	if _, err := f.svc.Rename(ctx, f.projectID, f.collaborator, "Mine Now"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("collaborator rename err = %v, want ErrNotOwner", err)
	}
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.svc.Create(ctx, f.stranger, "Stranger Search")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	owned, err := f.svc.List(ctx, f.owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(owned) != 1 || owned[0].ID != f.projectID {
		t.Errorf("owner sees %d projects, want only own", len(owned))
	}

	f.addCollaborator(t, f.stranger)
	shared, err := f.svc.List(ctx, f.stranger)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(shared) != 2 {
		t.Fatalf("stranger sees %d projects, want 2", len(shared))
	}
	ids := map[int64]bool{shared[0].ID: true, shared[1].ID: true}
	if !ids[other.ID] || !ids[f.projectID] {
		t.Errorf("unexpected projects %v", ids)
	}
}

func TestInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var delivered *Invitation
	deliver := func(ctx context.Context, p *Project, inv *Invitation) error {
		delivered = inv
		return nil
	}

	inv, err := f.svc.Invite(ctx, f.projectID, f.owner, "  Friend@Example.com ", deliver)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if inv.Email != "friend@example.com" {
		t.Errorf("email = %q, want lowercased", inv.Email)
	}
	if inv.Token == "" || delivered == nil || delivered.Token != inv.Token {
		t.Error("expected delivered invitation with token")
	}
	if inv.InviterEmail != "owner@example.com" {
		t.Errorf("inviter email = %q", inv.InviterEmail)
	}

	if _, err := f.svc.Invite(ctx, f.projectID, f.owner, "friend@example.com", deliver); !errors.Is(err, ErrDuplicateInvitation) {
		t.Errorf("duplicate err = %v, want ErrDuplicateInvitation", err)
	}

	pending, err := f.svc.PendingInvitations(ctx, f.projectID, f.owner)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestInviteRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCollaborator(t, f.collaborator)
	noop := func(context.Context, *Project, *Invitation) error { return nil }

	tests := []struct {
		name    string
		user    int64
		email   string
		wantErr error
	}{
		{"collaborator cannot invite", f.collaborator, "x@example.com", ErrNotOwner},
		{"existing collaborator", f.owner, "collab@example.com", ErrAlreadyMember},
		{"owner themselves", f.owner, "OWNER@example.com", ErrAlreadyMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Invite(ctx, f.projectID, tt.user, tt.email, noop)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.svc.Invite(ctx, f.projectID, f.owner, "not-an-email", noop); err == nil {
		t.Error("expected invalid email error")
	}
}

func TestInviteDeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	relayDown := errors.New("relay down")
	_, err := f.svc.Invite(ctx, f.projectID, f.owner, "friend@example.com", func(context.Context, *Project, *Invitation) error {
		return relayDown
	})
	if !errors.Is(err, relayDown) {
		t.Fatalf("err = %v, want relay error", err)
	}

	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM project_invitations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("invitations = %d, want 0 after failed delivery", n)
	}

	// The same email can be invited again once delivery works.
	if _, err := f.svc.Invite(ctx, f.projectID, f.owner, "friend@example.com", func(context.Context, *Project, *Invitation) error { return nil }); err != nil {
		t.Errorf("re-invite: %v", err)
	}
}

func TestAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invite(t, "collab@example.com")

	accepted, err := f.svc.Accept(ctx, inv.Token, f.collaborator, "COLLAB@example.com")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !accepted.Accepted || accepted.AcceptedAt == nil {
		t.Errorf("invitation not marked accepted: %+v", accepted)
	}

	members, err := f.svc.Members(ctx, f.projectID, f.collaborator)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || !members[0].Owner || members[1].UserID != f.collaborator {
		t.Errorf("unexpected members: %+v", members)
	}

	if _, err := f.svc.Accept(ctx, inv.Token, f.collaborator, "collab@example.com"); !errors.Is(err, ErrInvitationUsed) {
		t.Errorf("second accept err = %v, want ErrInvitationUsed", err)
	}

	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM project_collaborators WHERE project_id = ? AND user_id = ?`, f.projectID, f.collaborator).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("collaborator rows = %d, want exactly 1", n)
	}
}

func TestAcceptRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("email mismatch", func(t *testing.T) {
		inv := f.invite(t, "collab@example.com")
		_, err := f.svc.Accept(ctx, inv.Token, f.stranger, "stranger@example.com")
		if !errors.Is(err, ErrEmailMismatch) {
			t.Fatalf("err = %v, want ErrEmailMismatch", err)
		}
		member, err := f.svc.Repository().IsMember(ctx, f.projectID, f.stranger)
		if err != nil {
			t.Fatalf("is member: %v", err)
		}
		if member {
			t.Error("mismatched email must not grant membership")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		if _, err := f.svc.Accept(ctx, "not-a-token", f.stranger, "stranger@example.com"); !errors.Is(err, ErrInvitationNotFound) {
			t.Errorf("err = %v, want ErrInvitationNotFound", err)
		}
		if _, err := f.svc.Accept(ctx, "8c5b4c2e-2f7e-4c0e-9d43-2d7bb4a0f001", f.stranger, "stranger@example.com"); !errors.Is(err, ErrInvitationNotFound) {
			t.Errorf("err = %v, want ErrInvitationNotFound", err)
		}
	})

	t.Run("finished project", func(t *testing.T) {
		inv := f.invite(t, "stranger@example.com")
		if _, err := f.svc.Finish(ctx, f.projectID, f.owner); err != nil {
			t.Fatalf("finish: %v", err)
		}
		_, err := f.svc.Accept(ctx, inv.Token, f.stranger, "stranger@example.com")
		if !errors.Is(err, ErrFinished) {
			t.Errorf("err = %v, want ErrFinished", err)
		}
		got, err := f.svc.Repository().InvitationByToken(ctx, inv.Token)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got.Accepted {
			t.Error("rolled back acceptance should leave the invitation pending")
		}
	})
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invite(t, "friend@example.com")

	if err := f.svc.CancelInvitation(ctx, f.projectID, f.owner, inv.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.svc.CancelInvitation(ctx, f.projectID, f.owner, inv.ID); !errors.Is(err, ErrInvitationNotFound) {
		t.Errorf("second cancel err = %v, want ErrInvitationNotFound", err)
	}
}

func TestRemoveCollaborator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCollaborator(t, f.collaborator)

	if err := f.svc.RemoveCollaborator(ctx, f.projectID, f.collaborator, f.owner); !errors.Is(err, ErrNotOwner) {
		t.Errorf("collaborator removing owner err = %v, want ErrNotOwner", err)
	}
	if err := f.svc.RemoveCollaborator(ctx, f.projectID, f.owner, f.owner); !errors.Is(err, ErrCannotRemoveOwner) {
		t.Errorf("owner removing self err = %v, want ErrCannotRemoveOwner", err)
	}
	if err := f.svc.RemoveCollaborator(ctx, f.projectID, f.owner, f.collaborator); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.svc.Authorize(ctx, f.projectID, f.collaborator, View); !errors.Is(err, ErrNotMember) {
		t.Errorf("removed collaborator err = %v, want ErrNotMember", err)
	}
	if err := f.svc.RemoveCollaborator(ctx, f.projectID, f.owner, f.collaborator); !errors.Is(err, ErrNotMember) {
		t.Errorf("second remove err = %v, want ErrNotMember", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"A@B.com", "a@b.com", false},
		{" a@b.com ", "a@b.com", false},
		{"", "", true},
		{"nobody", "", true},
		{"Name <a@b.com>", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeEmail(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fixture struct {
	db           *sql.DB
	svc          *Service
	owner        int64
	collaborator int64
	stranger     int64
	projectID    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	f := &fixture{db: database, svc: NewService(NewRepository(database))}
	f.owner = insertUser(t, database, "owner@example.com")
	f.collaborator = insertUser(t, database, "collab@example.com")
	f.stranger = insertUser(t, database, "stranger@example.com")

	p, err := f.svc.Create(context.Background(), f.owner, "Spring Search")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	f.projectID = p.ID
	return f
}

func (f *fixture) addCollaborator(t *testing.T, userID int64) {
	t.Helper()
	if _, err := f.db.Exec(`INSERT INTO project_collaborators (project_id, user_id) VALUES (?, ?)`, f.projectID, userID); err != nil {
		t.Fatalf("add collaborator: %v", err)
	}
}

func (f *fixture) invite(t *testing.T, email string) *Invitation {
	t.Helper()
	inv, err := f.svc.Invite(context.Background(), f.projectID, f.owner, email, func(context.Context, *Project, *Invitation) error { return nil })
	if err != nil {
		t.Fatalf("invite %s: %v", email, err)
	}
	return inv
}

func insertUser(t *testing.T, database *sql.DB, email string) int64 {
	t.Helper()
	res, err := database.Exec(`INSERT INTO users (email) VALUES (?)`, email)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}
