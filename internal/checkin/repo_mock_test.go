package checkin

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// mockRepo is an in-memory Repository. Attendance inserts enforce the
// (enrollment, date) uniqueness the real schema provides.
type mockRepo struct {
	mu          sync.Mutex
	sessions    []Session
	attendances map[string]Attendance
	insertCalls int
	failLookups bool
}

func newMockRepo(sessions ...Session) *mockRepo {
	return &mockRepo{
		sessions:    sessions,
		attendances: make(map[string]Attendance),
	}
}

func attKey(enrollmentID int64, date string) string {
	return fmt.Sprintf("%d|%s", enrollmentID, date)
}

func (m *mockRepo) ActiveEnrollments(_ context.Context, studentID int64, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookups {
		return nil, fmt.Errorf("storage unavailable")
	}
	var out []Session
	for _, s := range m.sessions {
		if s.Enrollment.StudentID != studentID {
			continue
		}
		if s.Enrollment.Status != StatusApproved || s.Enrollment.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockRepo) AttendanceByDate(_ context.Context, enrollmentID int64, date string) (*Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookups {
		return nil, fmt.Errorf("storage unavailable")
	}
	if att, ok := m.attendances[attKey(enrollmentID, date)]; ok {
		cp := att
		return &cp, nil
	}
	return nil, nil
}

func (m *mockRepo) InsertAttendance(_ context.Context, att Attendance) (Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	key := attKey(att.EnrollmentID, att.LessonDate)
	if _, ok := m.attendances[key]; ok {
		return Attendance{}, ErrAlreadyRecorded
	}
	m.attendances[key] = att
	return att, nil
}
