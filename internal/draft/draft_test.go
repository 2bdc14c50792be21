package draft

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/checklist-casa/internal/visit"
)

func TestSignParseRoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	rid := int64(7)
	in := Draft{
		ProjectID: 3,
		UserID:    9,
		Visit: visit.Input{
			Name:      "Maple House",
			Address:   "1 Maple St",
			VisitDate: "2024-05-01",
			RealtorID: &rid,
			Notes:     "corner lot",
		},
	}

	token, err := s.Sign(in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := s.Parse(token, 9, 3)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Saved() {
		t.Error("draft without visit id should not be saved")
	}
	if got.Visit.Name != "Maple House" || got.Visit.Address != "1 Maple St" || got.Visit.VisitDate != "2024-05-01" {
		t.Errorf("visit = %+v", got.Visit)
	}
	if got.Visit.RealtorID == nil || *got.Visit.RealtorID != 7 {
		t.Errorf("realtor = %v, want 7", got.Visit.RealtorID)
	}
	if got.Visit.Notes != "corner lot" {
		t.Errorf("notes = %q", got.Visit.Notes)
	}
}

func TestSavedDraft(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	token, err := s.Sign(Draft{ProjectID: 1, UserID: 2, VisitID: 44})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := s.Parse(token, 2, 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Saved() || got.VisitID != 44 {
		t.Errorf("draft = %+v, want saved visit 44", got)
	}
}

func TestParseExpired(t *testing.T) {
	s := NewSigner("secret", time.Minute)
	issued := time.Now()
	s.now = func() time.Time { return issued }
	token, err := s.Sign(Draft{ProjectID: 1, UserID: 2})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := s.Parse(token, 2, 1); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestParseRejects(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	token, err := s.Sign(Draft{ProjectID: 1, UserID: 2})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	other, err := NewSigner("other", time.Hour).Sign(Draft{ProjectID: 1, UserID: 2})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	moved, err := s.Sign(Draft{ProjectID: 5, UserID: 2})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parts, movedParts := strings.Split(token, "."), strings.Split(moved, ".")
	tampered := movedParts[0] + "." + movedParts[1] + "." + parts[2]

	tests := []struct {
		name    string
		token   string
		user    int64
		project int64
	}{
		{"empty", "", 2, 1},
		{"garbage", "not.a.token", 2, 1},
		{"wrong user", token, 3, 1},
		{"wrong project", token, 2, 5},
		{"wrong key", other, 2, 1},
		{"tampered", tampered, 2, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Parse(tt.token, tt.user, tt.project); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
