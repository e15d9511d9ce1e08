package cronexpr

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Expression {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	return e
}

func TestParseRejectsInvalidExpressions(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 8",
		"not a cron expr at all really",
	}
	for _, expr := range cases {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", expr)
		}
	}
}

func TestMatchesHourly(t *testing.T) {
	e := mustParse(t, "0 * * * *")
	tests := []struct {
		t     time.Time
		match bool
	}{
		{time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2021, 1, 1, 1, 0, 0, 0, time.UTC), true},
		{time.Date(2021, 1, 1, 1, 5, 0, 0, time.UTC), false},
	}
	for _, tc := range tests {
		if got := e.Matches(tc.t); got != tc.match {
			t.Errorf("Matches(%v) = %v, want %v", tc.t, got, tc.match)
		}
	}
}

func TestNextFiringAtOrAfter(t *testing.T) {
	e := mustParse(t, "0 * * * *")
	next, err := e.NextFiringAtOrAfter(time.Date(2021, 1, 1, 0, 5, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2021, 1, 1, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextFiringAtOrAfter = %v, want %v", next, want)
	}

	// at-or-after should return t itself when t is already a match.
	next, err = e.NextFiringAtOrAfter(want)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(want) {
		t.Errorf("NextFiringAtOrAfter(match) = %v, want %v", next, want)
	}
}

func TestMinimumIntervalEveryMinute(t *testing.T) {
	e := mustParse(t, "* * * * *")
	if got := e.MinimumInterval(); got != time.Minute {
		t.Errorf("MinimumInterval() = %v, want %v", got, time.Minute)
	}
}

func TestMinimumIntervalEvery5Minutes(t *testing.T) {
	e := mustParse(t, "*/5 * * * *")
	if got := e.MinimumInterval(); got != 5*time.Minute {
		t.Errorf("MinimumInterval() = %v, want %v", got, 5*time.Minute)
	}
}

func TestMinimumIntervalHourly(t *testing.T) {
	e := mustParse(t, "0 * * * *")
	if got := e.MinimumInterval(); got != time.Hour {
		t.Errorf("MinimumInterval() = %v, want %v", got, time.Hour)
	}
}

// TestDayOfMonthDayOfWeekUnion verifies POSIX union semantics: when both
// day-of-month and day-of-week are restricted, an instant matches if
// EITHER is satisfied, not both.
func TestDayOfMonthDayOfWeekUnion(t *testing.T) {
	// Fires at midnight on the 1st of the month OR on any Monday.
	e := mustParse(t, "0 0 1 * 1")

	// 2024-03-01 is a Friday: matches via day-of-month.
	if !e.Matches(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected match on the 1st (day-of-month branch)")
	}
	// 2024-03-04 is a Monday, not the 1st: matches via day-of-week.
	if !e.Matches(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected match on a Monday (day-of-week branch)")
	}
	// 2024-03-05 is neither the 1st nor a Monday.
	if e.Matches(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected no match when neither restriction is satisfied")
	}
}

// TestDayOfWeekSundayAliases verifies that both 0 and 7 mean Sunday.
func TestDayOfWeekSundayAliases(t *testing.T) {
	sunday := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	for _, expr := range []string{"0 0 * * 0", "0 0 * * 7"} {
		e := mustParse(t, expr)
		if !e.Matches(sunday) {
			t.Errorf("Matches(%v) for %q = false, want true", sunday, expr)
		}
	}
}

// TestDayOfWeekRangeEndingInSeven verifies that a range whose upper bound
// is 7 spans into Sunday.
func TestDayOfWeekRangeEndingInSeven(t *testing.T) {
	e := mustParse(t, "0 0 * * 5-7")

	days := map[time.Time]bool{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC): true,  // Friday
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC): true,  // Saturday
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC): true,  // Sunday
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC): false, // Monday
	}
	for at, want := range days {
		if got := e.Matches(at); got != want {
			t.Errorf("Matches(%v) = %v, want %v", at.Weekday(), got, want)
		}
	}
}
