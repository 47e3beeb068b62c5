package checkin

import (
	"sort"
	"strings"
	"time"
)

// Matcher selects the single lesson occurrence an identity may check into at
// a given instant.
type Matcher struct {
	loc         *time.Location
	earlyWindow time.Duration
}

// NewMatcher creates a matcher. loc is the academy's timezone; earlyWindow is
// how long before a lesson's start a check-in is accepted (1h in production).
func NewMatcher(loc *time.Location, earlyWindow time.Duration) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{loc: loc, earlyWindow: earlyWindow}
}

// Match filters sessions down to the one occurrence valid at now. A non-zero
// lessonHint restricts the search to that lesson. Among several survivors the
// earliest start wins; two survivors sharing a start time are a configuration
// error and reported as ErrScheduleConflict.
func (m *Matcher) Match(sessions []Session, lessonHint int64, now time.Time) (Session, error) {
	local := now.In(m.loc)
	dayKey := strings.ToLower(local.Weekday().String())
	minute := minuteOf(local)
	earlyMin := DayMinute(m.earlyWindow / time.Minute)

	var survivors []Session
	for _, s := range sessions {
		if s.Enrollment.Status != StatusApproved {
			continue
		}
		if s.Enrollment.ExpiresAt.Before(now) {
			continue
		}
		if !s.Lesson.IsActive {
			continue
		}
		if lessonHint != 0 && s.Lesson.ID != lessonHint {
			continue
		}
		if !hasDay(s.Lesson.Days, dayKey) {
			continue
		}
		// Check-in window: [start - earlyWindow, end], inclusive.
		if minute < s.Lesson.Start-earlyMin || minute > s.Lesson.End {
			continue
		}
		survivors = append(survivors, s)
	}

	if len(survivors) == 0 {
		return Session{}, ErrNoMatchingSession
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Lesson.Start < survivors[j].Lesson.Start
	})
	if len(survivors) > 1 && survivors[0].Lesson.Start == survivors[1].Lesson.Start {
		return Session{}, ErrScheduleConflict
	}
	return survivors[0], nil
}

func hasDay(days []string, key string) bool {
	for _, d := range days {
		if strings.EqualFold(d, key) {
			return true
		}
	}
	return false
}
