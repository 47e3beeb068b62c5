// Package checkin maps a validated identity to the one lesson occurrence it
// may attend right now and records the attendance fact idempotently.
package checkin

import (
	"errors"
	"fmt"
	"time"
)

// Enrollment statuses. Only approved enrollments are eligible for check-in.
const (
	StatusApproved   = "approved"
	StatusPending    = "pending"
	StatusRejected   = "rejected"
	StatusWaitlisted = "waitlisted"
	StatusCancelled  = "cancelled"
	StatusCompleted  = "completed"
)

// Attendance statuses written by the recorder. Absent/excused/early_leave/
// makeup are set by the administrative correction path, never here.
const (
	AttendancePresent = "present"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

var (
	// ErrNoMatchingSession means no enrollment survived every filter.
	ErrNoMatchingSession = errors.New("no matching session")
	// ErrScheduleConflict means two lessons tie for the same start time;
	// an ambiguous schedule is surfaced, never guessed at.
	ErrScheduleConflict = errors.New("schedule conflict")
	// ErrAlreadyRecorded is returned by the repository when the
	// (enrollment, lesson_date) unique constraint rejects an insert.
	ErrAlreadyRecorded = errors.New("attendance already recorded")
)

// Enrollment is the engine's read-only view of an enrollment row.
type Enrollment struct {
	ID        int64
	BranchID  int64
	StudentID int64
	LessonID  int64
	Status    string
	ExpiresAt time.Time
}

// Lesson is the engine's read-only view of lesson schedule metadata.
type Lesson struct {
	ID            int64
	BranchID      int64
	Title         string
	Days          []string
	Start         DayMinute
	End           DayMinute
	TotalSessions int
	IsActive      bool
}

// Session pairs an enrollment with its lesson; the unit the matcher selects.
type Session struct {
	Enrollment Enrollment
	Lesson     Lesson
}

// Attendance is one check-in fact. At most one exists per
// (enrollment, lesson date).
type Attendance struct {
	ID           string
	BranchID     int64
	EnrollmentID int64
	StudentID    int64
	LessonID     int64
	LessonDate   string
	CheckedAt    time.Time
	Status       string
	LateMinutes  int
}

// DayMinute is a minute-of-day clock value. Lessons never span midnight.
type DayMinute int

// ParseDayMinute parses "15:04" or "15:04:05".
func ParseDayMinute(s string) (DayMinute, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("parse clock value %q: %w", s, err)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return DayMinute(h*60 + m), nil
}

func (m DayMinute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// minuteOf projects a wall-clock instant onto its minute of day.
func minuteOf(t time.Time) DayMinute {
	return DayMinute(t.Hour()*60 + t.Minute())
}
