package checkin

import "testing"

func TestParseDayMinute(t *testing.T) {
	cases := []struct {
		in      string
		want    DayMinute
		wantErr bool
	}{
		{"18:00", 18 * 60, false},
		{"18:00:00", 18 * 60, false},
		{"09:45", 9*60 + 45, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDayMinute(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDayMinute(%q) accepted", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDayMinute(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDayMinute(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDayMinuteString(t *testing.T) {
	if s := DayMinute(18*60 + 5).String(); s != "18:05" {
		t.Errorf("String() = %q, want 18:05", s)
	}
}
