package checkin

import (
	"context"
	"testing"
	"time"
)

func tenAMLesson() Session {
	return approvedSession(1, 10, []string{"monday"}, 10*60, 11*60)
}

func TestRecordClassification(t *testing.T) {
	cases := []struct {
		name        string
		at          time.Time
		wantStatus  string
		wantMinutes int
	}{
		{"fifteen early", mondayAt(9, 45), AttendancePresent, 0},
		{"one minute early", mondayAt(9, 59), AttendancePresent, 0},
		{"on time", mondayAt(10, 0), AttendancePresent, 0},
		{"within grace", mondayAt(10, 15), AttendancePresent, 0},
		{"just past grace", mondayAt(10, 16), AttendanceLate, 16},
		{"twenty late", mondayAt(10, 20), AttendanceLate, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepo()
			rec := NewRecorder(repo, kst, 15*time.Minute)

			out, err := rec.Record(context.Background(), tenAMLesson(), tc.at)
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if out.Already {
				t.Fatal("fresh record flagged as already recorded")
			}
			if out.Attendance.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", out.Attendance.Status, tc.wantStatus)
			}
			if out.Attendance.LateMinutes != tc.wantMinutes {
				t.Errorf("late_minutes = %d, want %d", out.Attendance.LateMinutes, tc.wantMinutes)
			}
		})
	}
}

func TestRecordIsIdempotentPerDay(t *testing.T) {
	repo := newMockRepo()
	rec := NewRecorder(repo, kst, 15*time.Minute)
	sess := tenAMLesson()

	first, err := rec.Record(context.Background(), sess, mondayAt(10, 5))
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := rec.Record(context.Background(), sess, mondayAt(10, 40))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !second.Already {
		t.Error("second record not flagged as already recorded")
	}
	if second.Attendance.ID != first.Attendance.ID {
		t.Errorf("second record returned a different fact: %s vs %s", second.Attendance.ID, first.Attendance.ID)
	}
	if repo.insertCalls != 1 {
		t.Errorf("insert calls = %d, want 1", repo.insertCalls)
	}
}

func TestRecordSurvivesInsertRace(t *testing.T) {
	repo := newMockRepo()
	rec := NewRecorder(repo, kst, 15*time.Minute)
	sess := tenAMLesson()

	// Seed the row between the recorder's pre-check and its insert by
	// intercepting id generation, simulating a concurrent winner.
	rec.newID = func() string {
		repo.mu.Lock()
		repo.attendances[attKey(sess.Enrollment.ID, "2026-01-05")] = Attendance{
			ID:           "winner",
			EnrollmentID: sess.Enrollment.ID,
			LessonDate:   "2026-01-05",
			Status:       AttendancePresent,
		}
		repo.mu.Unlock()
		return "loser"
	}

	out, err := rec.Record(context.Background(), sess, mondayAt(10, 5))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !out.Already {
		t.Error("racing record not flagged as already recorded")
	}
	if out.Attendance.ID != "winner" {
		t.Errorf("fact id = %q, want the concurrent winner's", out.Attendance.ID)
	}
}

func TestRecordNewDayNewFact(t *testing.T) {
	repo := newMockRepo()
	rec := NewRecorder(repo, kst, 15*time.Minute)
	sess := tenAMLesson()

	if _, err := rec.Record(context.Background(), sess, mondayAt(10, 5)); err != nil {
		t.Fatalf("monday record: %v", err)
	}
	nextMonday := mondayAt(10, 5).AddDate(0, 0, 7)
	out, err := rec.Record(context.Background(), sess, nextMonday)
	if err != nil {
		t.Fatalf("next monday record: %v", err)
	}
	if out.Already {
		t.Error("different calendar date treated as duplicate")
	}
	if repo.insertCalls != 2 {
		t.Errorf("insert calls = %d, want 2", repo.insertCalls)
	}
}
