package lifecycle

import (
	"testing"
	"time"
)

func TestAlertSeverityBoundaries(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		offsetDays int
		want       AlertSeverity
		wantDays   int
	}{
		{0, SeverityCritical, 0},
		{7, SeverityCritical, 7},
		{8, SeverityWarning, 8},
		{30, SeverityWarning, 30},
		{31, SeverityInfo, 31},
		{-1, SeverityCritical, -1},
	}
	for _, tc := range cases {
		next := now.Add(time.Duration(tc.offsetDays) * day)
		got, days := AlertSeverityFor(&next, now)
		if got != tc.want || days != tc.wantDays {
			t.Fatalf("offset %dd: got (%s, %d), want (%s, %d)", tc.offsetDays, got, days, tc.want, tc.wantDays)
		}
	}
}

func TestAlertSeverityNoDate(t *testing.T) {
	got, days := AlertSeverityFor(nil, time.Now())
	if got != SeverityNotApplicable || days != 0 {
		t.Fatalf("expected not_applicable, got (%s, %d)", got, days)
	}
}

func TestAlertSeverityPartialDayFloors(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	// 7 days and 12 hours out still floors to 7 -> critical.
	next := now.Add(7*24*time.Hour + 12*time.Hour)
	got, days := AlertSeverityFor(&next, now)
	if got != SeverityCritical || days != 7 {
		t.Fatalf("expected (critical, 7), got (%s, %d)", got, days)
	}
	// 12 hours overdue floors to -1 -> critical.
	next = now.Add(-12 * time.Hour)
	got, days = AlertSeverityFor(&next, now)
	if got != SeverityCritical || days != -1 {
		t.Fatalf("expected (critical, -1), got (%s, %d)", got, days)
	}
}
