// Package token implements the short-lived QR check-in token scheme: a
// deterministic keyed hash of (student, time slot) registered in a
// consume-once store. Re-issuing within a slot yields the same token, so a
// second kiosk scan never multiplies live tokens.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const kindStudent = "student"

var (
	// ErrTokenNotFound means the token was never issued, already redeemed,
	// or its TTL lapsed.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired means the token's slot is outside the tolerance window.
	ErrTokenExpired = errors.New("token expired")
)

// Issued is the result of issuing a token.
type Issued struct {
	Token      string
	ExpiresIn  int
	ValidUntil time.Time
}

// Service issues and validates check-in tokens.
type Service struct {
	store     Store
	secret    []byte
	slotWidth time.Duration
	ttlBuffer time.Duration
	now       func() time.Time
}

// NewService creates a token service. slotWidth is the validity bucket
// (30s in production); ttlBuffer pads the store TTL past the slot width.
func NewService(store Store, secret string, slotWidth, ttlBuffer time.Duration) *Service {
	if slotWidth <= 0 {
		slotWidth = 30 * time.Second
	}
	if ttlBuffer < 0 {
		ttlBuffer = 0
	}
	return &Service{
		store:     store,
		secret:    []byte(secret),
		slotWidth: slotWidth,
		ttlBuffer: ttlBuffer,
		now:       time.Now,
	}
}

// Issue derives the token for id in the current slot and registers it.
func (s *Service) Issue(ctx context.Context, id Identity) (Issued, error) {
	now := s.now()
	slot := s.slotAt(now)
	tok := s.derive(id.StudentID, slot)

	rec := Record{Identity: id, Slot: slot, Kind: kindStudent}
	if err := s.store.Put(ctx, tok, rec, s.slotWidth+s.ttlBuffer); err != nil {
		return Issued{}, fmt.Errorf("register token: %w", err)
	}

	width := int64(s.slotWidth / time.Second)
	expiresIn := int(width - now.Unix()%width)
	return Issued{
		Token:      tok,
		ExpiresIn:  expiresIn,
		ValidUntil: now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// Validate redeems a presented token. The record is consumed before the slot
// check, so a stale token is gone regardless of outcome and no token value is
// ever accepted twice.
func (s *Service) Validate(ctx context.Context, tok string) (Identity, error) {
	rec, ok, err := s.store.Take(ctx, tok)
	if err != nil {
		return Identity{}, fmt.Errorf("token lookup: %w", err)
	}
	if !ok {
		return Identity{}, ErrTokenNotFound
	}

	// Accept the current slot or the one just before it; anything wider
	// widens the replay window.
	cur := s.slotAt(s.now())
	if rec.Slot != cur && rec.Slot != cur-1 {
		return Identity{}, ErrTokenExpired
	}
	return rec.Identity, nil
}

func (s *Service) slotAt(t time.Time) int64 {
	return t.Unix() / int64(s.slotWidth/time.Second)
}

// derive computes the first 32 chars of the url-safe base64 HMAC of
// "student:<id>:<slot>".
func (s *Service) derive(studentID, slot int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d:%d", kindStudent, studentID, slot)
	tok := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if len(tok) > 32 {
		tok = tok[:32]
	}
	return tok
}
