package student

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"academy/internal/token"
)

var (
	// ErrNotFound means no active student matched the given credentials.
	ErrNotFound = errors.New("student not found")
	// ErrSessionExpired means the session token is missing or lapsed.
	ErrSessionExpired = errors.New("session expired")
)

// TokenIssuer mints a QR check-in token for a verified identity.
type TokenIssuer interface {
	Issue(ctx context.Context, id token.Identity) (token.Issued, error)
}

// Verified is the result of a successful name+phone verification.
type Verified struct {
	SessionToken string
	ExpiresAt    time.Time
	Student      Student
}

// Service verifies students and manages their kiosk sessions.
type Service struct {
	repo       Repository
	sessions   SessionStore
	issuer     TokenIssuer
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewService creates a student verification service.
func NewService(repo Repository, sessions SessionStore, issuer TokenIssuer, sessionTTL time.Duration, logger *zap.Logger) *Service {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Service{
		repo:       repo,
		sessions:   sessions,
		issuer:     issuer,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Verify matches an active student by name and phone and opens a session.
func (s *Service) Verify(ctx context.Context, name, phone string) (Verified, error) {
	st, err := s.repo.FindActiveByNamePhone(ctx, strings.TrimSpace(name), NormalizePhone(phone))
	if err != nil {
		return Verified{}, fmt.Errorf("student lookup: %w", err)
	}
	if st == nil {
		return Verified{}, ErrNotFound
	}

	tok, err := randomToken()
	if err != nil {
		return Verified{}, err
	}
	sess := Session{StudentID: st.ID, Name: st.Name, BranchID: st.BranchID}
	if err := s.sessions.Put(ctx, tok, sess, s.sessionTTL); err != nil {
		return Verified{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.Info("student verified",
		zap.Int64("student_id", st.ID),
		zap.Int64("branch_id", st.BranchID),
	)
	return Verified{
		SessionToken: tok,
		ExpiresAt:    time.Now().Add(s.sessionTTL),
		Student:      *st,
	}, nil
}

// Me resolves a session token back to the student. A session whose student
// has since been deactivated is forgotten.
func (s *Service) Me(ctx context.Context, sessionToken string) (Student, error) {
	sess, ok, err := s.sessions.Get(ctx, sessionToken)
	if err != nil {
		return Student{}, fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return Student{}, ErrSessionExpired
	}
	st, err := s.repo.FindByID(ctx, sess.StudentID)
	if err != nil {
		return Student{}, fmt.Errorf("student lookup: %w", err)
	}
	if st == nil || !st.Active() {
		_ = s.sessions.Delete(ctx, sessionToken)
		return Student{}, ErrNotFound
	}
	return *st, nil
}

// IssueQR mints a check-in token for the session's student.
func (s *Service) IssueQR(ctx context.Context, sessionToken string) (token.Issued, error) {
	st, err := s.Me(ctx, sessionToken)
	if err != nil {
		return token.Issued{}, err
	}
	return s.issuer.Issue(ctx, token.Identity{
		StudentID: st.ID,
		Name:      st.Name,
		BranchID:  st.BranchID,
	})
}

// Logout forgets the session; always succeeds.
func (s *Service) Logout(ctx context.Context, sessionToken string) {
	if sessionToken != "" {
		_ = s.sessions.Delete(ctx, sessionToken)
	}
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// randomToken returns a 64-char hex session token.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
