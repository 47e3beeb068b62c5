package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"academy/internal/metrics"
	"academy/internal/notify"
	"academy/internal/token"
)

// TokenValidator redeems a presented token for the identity it was minted for.
type TokenValidator interface {
	Validate(ctx context.Context, tok string) (token.Identity, error)
}

// Result is the user-facing outcome of a check-in attempt.
type Result struct {
	StudentName string
	LessonTitle string
	Status      string
	LateMinutes int
	CheckedAt   time.Time
	Already     bool
}

// Service runs the full check-in pipeline: token redemption, session
// matching, attendance recording, then a fire-and-forget notification.
type Service struct {
	tokens   TokenValidator
	repo     Repository
	matcher  *Matcher
	recorder *Recorder
	queue    notify.Queue
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the check-in pipeline.
func NewService(tokens TokenValidator, repo Repository, matcher *Matcher, recorder *Recorder, queue notify.Queue, logger *zap.Logger) *Service {
	return &Service{
		tokens:   tokens,
		repo:     repo,
		matcher:  matcher,
		recorder: recorder,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckIn redeems tok and records attendance for the matched session.
// lessonHint (0 for none) narrows ambiguous schedules. Token and matching
// failures are terminal and reported to the caller as-is; on a matching
// failure the student's name is still returned so the kiosk can address them.
func (s *Service) CheckIn(ctx context.Context, tok string, lessonHint int64) (Result, error) {
	id, err := s.tokens.Validate(ctx, tok)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenNotFound):
			metrics.TokenFailures.WithLabelValues("not_found").Inc()
		case errors.Is(err, token.ErrTokenExpired):
			metrics.TokenFailures.WithLabelValues("expired").Inc()
		default:
			metrics.TokenFailures.WithLabelValues("storage").Inc()
		}
		return Result{}, err
	}

	now := s.now()
	sessions, err := s.repo.ActiveEnrollments(ctx, id.StudentID, now)
	if err != nil {
		return Result{StudentName: id.Name}, fmt.Errorf("load enrollments: %w", err)
	}

	sess, err := s.matcher.Match(sessions, lessonHint, now)
	if err != nil {
		return Result{StudentName: id.Name}, err
	}

	outcome, err := s.recorder.Record(ctx, sess, now)
	if err != nil {
		return Result{StudentName: id.Name}, err
	}

	res := Result{
		StudentName: id.Name,
		LessonTitle: sess.Lesson.Title,
		Status:      outcome.Attendance.Status,
		LateMinutes: outcome.Attendance.LateMinutes,
		CheckedAt:   outcome.Attendance.CheckedAt,
		Already:     outcome.Already,
	}
	if outcome.Already {
		metrics.CheckinsTotal.WithLabelValues("already").Inc()
		return res, nil
	}
	metrics.CheckinsTotal.WithLabelValues(outcome.Attendance.Status).Inc()

	s.logger.Info("attendance recorded",
		zap.Int64("student_id", id.StudentID),
		zap.Int64("lesson_id", sess.Lesson.ID),
		zap.Int64("branch_id", sess.Lesson.BranchID),
		zap.String("status", outcome.Attendance.Status),
		zap.Int("late_minutes", outcome.Attendance.LateMinutes),
	)

	s.publish(ctx, id, sess, outcome.Attendance)
	return res, nil
}

// publish sends the notification event; failures are logged and dropped,
// the attendance write stands regardless.
func (s *Service) publish(ctx context.Context, id token.Identity, sess Session, att Attendance) {
	msg, err := notify.NewAttendanceMessage(notify.AttendanceEvent{
		StudentID:   id.StudentID,
		StudentName: id.Name,
		LessonID:    sess.Lesson.ID,
		LessonTitle: sess.Lesson.Title,
		Status:      att.Status,
		LateMinutes: att.LateMinutes,
		CheckedAt:   att.CheckedAt,
	})
	if err != nil {
		s.logger.Warn("encode notification", zap.Error(err))
		return
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.logger.Warn("publish notification", zap.Error(err))
	}
}
