// Package draft carries the state of the multi-step visit flow between
// requests as a signed, expiring token.
package draft

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evcraddock/checklist-casa/internal/visit"
)

const issuer = "casa-visit-draft"

var (
	// ErrExpired is returned for drafts past their TTL.
	ErrExpired = errors.New("visit draft expired")
	// ErrInvalid is returned for missing, tampered or foreign drafts.
	ErrInvalid = errors.New("visit draft is invalid")
)

// Draft is an in-progress visit. VisitID is zero until the visit has been
// saved with its assessments; after that only photos remain.
type Draft struct {
	ProjectID int64
	UserID    int64
	VisitID   int64
	Visit     visit.Input
}

// Saved reports whether the visit has been written to the database.
func (d *Draft) Saved() bool {
	return d.VisitID != 0
}

type claims struct {
	jwt.RegisteredClaims
	ProjectID int64  `json:"pid"`
	VisitID   int64  `json:"vid,omitempty"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"addr,omitempty"`
	VisitDate string `json:"date,omitempty"`
	RealtorID *int64 `json:"rid,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Signer issues and verifies draft tokens with HMAC-SHA256.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner creates a signer. Drafts expire ttl after they are issued.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign encodes d as a token. Each step re-signs, so the TTL restarts.
func (s *Signer) Sign(d Draft) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(d.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		ProjectID: d.ProjectID,
		VisitID:   d.VisitID,
		Name:      d.Visit.Name,
		Address:   d.Visit.Address,
		VisitDate: d.Visit.VisitDate,
		RealtorID: d.Visit.RealtorID,
		Notes:     d.Visit.Notes,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing draft: %w", err)
	}
	return token, nil
}

// Parse verifies token and checks it belongs to the user and project.
func (s *Signer) Parse(token string, userID, projectID int64) (*Draft, error) {
	if token == "" {
		return nil, ErrInvalid
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(strconv.FormatInt(userID, 10)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ProjectID != projectID {
		return nil, ErrInvalid
	}

	return &Draft{
		ProjectID: c.ProjectID,
		UserID:    userID,
		VisitID:   c.VisitID,
		Visit: visit.Input{
			Name:      c.Name,
			Address:   c.Address,
			VisitDate: c.VisitDate,
			RealtorID: c.RealtorID,
			Notes:     c.Notes,
		},
	}, nil
}
