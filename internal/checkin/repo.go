package checkin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the storage collaborator for enrollments, lessons and
// attendance facts.
type Repository interface {
	// ActiveEnrollments returns approved, unexpired enrollments for the
	// student together with their lesson schedule metadata.
	ActiveEnrollments(ctx context.Context, studentID int64, now time.Time) ([]Session, error)
	// AttendanceByDate returns the fact for (enrollment, date), or nil.
	AttendanceByDate(ctx context.Context, enrollmentID int64, date string) (*Attendance, error)
	// InsertAttendance writes a fact. A duplicate (enrollment, date) must
	// fail with ErrAlreadyRecorded, never overwrite.
	InsertAttendance(ctx context.Context, att Attendance) (Attendance, error)
}

const uniqueViolation = "23505"

// PostgresRepository persists check-in data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ActiveEnrollments loads the student's approved, unexpired enrollments with
// lesson days and times. Day-of-week and window filtering stay in the matcher.
func (r *PostgresRepository) ActiveEnrollments(ctx context.Context, studentID int64, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.branch_id, e.student_id, e.lesson_id, e.status, e.expires_at,
		       l.id, l.branch_id, l.title, l.days,
		       to_char(l.start_time, 'HH24:MI'), to_char(l.end_time, 'HH24:MI'),
		       l.total_sessions, l.is_active
		FROM enrollments e
		JOIN lessons l ON l.id = e.lesson_id
		WHERE e.student_id = $1
		  AND e.status = 'approved'
		  AND e.expires_at >= $2
	`, studentID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s          Session
			daysRaw    []byte
			start, end string
		)
		if err := rows.Scan(
			&s.Enrollment.ID, &s.Enrollment.BranchID, &s.Enrollment.StudentID,
			&s.Enrollment.LessonID, &s.Enrollment.Status, &s.Enrollment.ExpiresAt,
			&s.Lesson.ID, &s.Lesson.BranchID, &s.Lesson.Title, &daysRaw,
			&start, &end, &s.Lesson.TotalSessions, &s.Lesson.IsActive,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(daysRaw, &s.Lesson.Days); err != nil {
			return nil, fmt.Errorf("decode lesson %d days: %w", s.Lesson.ID, err)
		}
		if s.Lesson.Start, err = ParseDayMinute(start); err != nil {
			return nil, err
		}
		if s.Lesson.End, err = ParseDayMinute(end); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AttendanceByDate returns the fact for (enrollment, date), or nil.
func (r *PostgresRepository) AttendanceByDate(ctx context.Context, enrollmentID int64, date string) (*Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, branch_id, enrollment_id, student_id, lesson_id,
		       to_char(lesson_date, 'YYYY-MM-DD'), checked_at, status, late_minutes
		FROM attendances
		WHERE enrollment_id = $1 AND lesson_date = $2
	`, enrollmentID, date)
	var att Attendance
	if err := row.Scan(
		&att.ID, &att.BranchID, &att.EnrollmentID, &att.StudentID, &att.LessonID,
		&att.LessonDate, &att.CheckedAt, &att.Status, &att.LateMinutes,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

// InsertAttendance writes a new fact. The (enrollment_id, lesson_date) unique
// constraint turns a concurrent duplicate into ErrAlreadyRecorded.
func (r *PostgresRepository) InsertAttendance(ctx context.Context, att Attendance) (Attendance, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendances
			(id, branch_id, enrollment_id, student_id, lesson_id, lesson_date, checked_at, status, late_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, att.ID, att.BranchID, att.EnrollmentID, att.StudentID, att.LessonID,
		att.LessonDate, att.CheckedAt, att.Status, att.LateMinutes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Attendance{}, ErrAlreadyRecorded
		}
		return Attendance{}, err
	}
	return att, nil
}
