package student

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"academy/internal/token"
)

type mockStudentRepo struct {
	students map[int64]Student
}

func newMockStudentRepo(students ...Student) *mockStudentRepo {
	m := &mockStudentRepo{students: make(map[int64]Student)}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

func (m *mockStudentRepo) FindActiveByNamePhone(_ context.Context, name, phone string) (*Student, error) {
	for _, s := range m.students {
		if s.Name == name && s.Phone == phone && s.Status == "active" {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id int64) (*Student, error) {
	if s, ok := m.students[id]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func newTestStudentService(repo Repository) (*Service, *token.Service) {
	issuer := token.NewService(token.NewMemoryStore(), "test-secret", 30*time.Second, 5*time.Second)
	return NewService(repo, NewMemorySessionStore(), issuer, time.Hour, zap.NewNop()), issuer
}

func minjun() Student {
	return Student{ID: 7, BranchID: 2, Name: "김민준", Phone: "01012345678", Status: "active"}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"010-1234-5678":  "01012345678",
		"010 1234 5678":  "01012345678",
		"01012345678":    "01012345678",
		"+82 10-1234-56": "8210123456",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerifyOpensSession(t *testing.T) {
	svc, _ := newTestStudentService(newMockStudentRepo(minjun()))

	res, err := svc.Verify(context.Background(), "김민준", "010-1234-5678")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(res.SessionToken) != 64 {
		t.Errorf("session token length = %d, want 64", len(res.SessionToken))
	}

	st, err := svc.Me(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if st.ID != 7 {
		t.Errorf("student id = %d, want 7", st.ID)
	}
}

func TestVerifyUnknownStudent(t *testing.T) {
	svc, _ := newTestStudentService(newMockStudentRepo(minjun()))

	if _, err := svc.Verify(context.Background(), "김민준", "010-9999-9999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMeRejectsUnknownSession(t *testing.T) {
	svc, _ := newTestStudentService(newMockStudentRepo(minjun()))

	if _, err := svc.Me(context.Background(), "bogus"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestMeForgetsDeactivatedStudent(t *testing.T) {
	repo := newMockStudentRepo(minjun())
	svc, _ := newTestStudentService(repo)

	res, err := svc.Verify(context.Background(), "김민준", "01012345678")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	st := repo.students[7]
	st.Status = "inactive"
	repo.students[7] = st

	if _, err := svc.Me(context.Background(), res.SessionToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	// The stale session must be gone too.
	if _, err := svc.Me(context.Background(), res.SessionToken); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err after forget = %v, want ErrSessionExpired", err)
	}
}

func TestIssueQRRedeemsThroughValidator(t *testing.T) {
	svc, issuer := newTestStudentService(newMockStudentRepo(minjun()))

	res, err := svc.Verify(context.Background(), "김민준", "01012345678")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	issued, err := svc.IssueQR(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("issue qr: %v", err)
	}

	id, err := issuer.Validate(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.StudentID != 7 || id.BranchID != 2 || id.Name != "김민준" {
		t.Errorf("identity = %+v", id)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	svc, _ := newTestStudentService(newMockStudentRepo(minjun()))

	res, err := svc.Verify(context.Background(), "김민준", "01012345678")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	svc.Logout(context.Background(), res.SessionToken)

	if _, err := svc.Me(context.Background(), res.SessionToken); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}
