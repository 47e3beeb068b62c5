package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of recording a check-in. Already marks the
// idempotence hit: the fact returned is the one written earlier today.
type Outcome struct {
	Attendance Attendance
	Already    bool
}

// Recorder writes attendance facts, one per (enrollment, calendar date).
type Recorder struct {
	repo          Repository
	loc           *time.Location
	lateThreshold time.Duration
	newID         func() string
}

// NewRecorder creates a recorder. lateThreshold is the grace period after a
// lesson's start within which a check-in still counts as present.
func NewRecorder(repo Repository, loc *time.Location, lateThreshold time.Duration) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		repo:          repo,
		loc:           loc,
		lateThreshold: lateThreshold,
		newID:         uuid.NewString,
	}
}

// Record persists the attendance fact for sess at now. A duplicate for the
// same enrollment and date returns the existing fact with Already set; the
// unique constraint backs the pre-check, so a concurrent double write cannot
// produce two rows.
func (r *Recorder) Record(ctx context.Context, sess Session, now time.Time) (Outcome, error) {
	local := now.In(r.loc)
	date := local.Format("2006-01-02")

	existing, err := r.repo.AttendanceByDate(ctx, sess.Enrollment.ID, date)
	if err != nil {
		return Outcome{}, fmt.Errorf("attendance lookup: %w", err)
	}
	if existing != nil {
		return Outcome{Attendance: *existing, Already: true}, nil
	}

	status, lateMinutes := classify(sess.Lesson, local, r.lateThreshold)
	att := Attendance{
		ID:           r.newID(),
		BranchID:     sess.Lesson.BranchID,
		EnrollmentID: sess.Enrollment.ID,
		StudentID:    sess.Enrollment.StudentID,
		LessonID:     sess.Lesson.ID,
		LessonDate:   date,
		CheckedAt:    now,
		Status:       status,
		LateMinutes:  lateMinutes,
	}

	created, err := r.repo.InsertAttendance(ctx, att)
	if errors.Is(err, ErrAlreadyRecorded) {
		// Lost the race to a concurrent check-in; answer with its fact.
		winner, ferr := r.repo.AttendanceByDate(ctx, sess.Enrollment.ID, date)
		if ferr != nil || winner == nil {
			return Outcome{}, fmt.Errorf("attendance re-read after conflict: %w", ferr)
		}
		return Outcome{Attendance: *winner, Already: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("attendance insert: %w", err)
	}
	return Outcome{Attendance: created}, nil
}

// classify applies the late rule: only minutes after the lesson's start count,
// and up to the threshold they are forgiven entirely.
func classify(lesson Lesson, local time.Time, threshold time.Duration) (string, int) {
	minutesLate := int(minuteOf(local) - lesson.Start)
	if minutesLate <= int(threshold/time.Minute) {
		// Early arrivals land here too; they are never penalized.
		return AttendancePresent, 0
	}
	return AttendanceLate, minutesLate
}
