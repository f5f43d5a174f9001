package app

import (
	"testing"
	"time"
)

func TestWeekStart(t *testing.T) {
	cases := []struct {
		name string
		date time.Time
		want string
	}{
		{"Monday", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), "2026-03-02"},
		{"MidWeek", time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC), "2026-03-02"},
		{"Sunday", time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC), "2026-03-02"},
		{"NextMonday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), "2026-03-09"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeekStart(tc.date); got != tc.want {
				t.Errorf("Expected week start %s for %s, got %s", tc.want, tc.date, got)
			}
		})
	}
}
