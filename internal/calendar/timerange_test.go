package calendar

import (
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestNewTimeRange(t *testing.T) {
	start := mustTime(t, 2025, 1, 6, 10, 0)

	tr, err := NewTimeRange(start, 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.End.Equal(mustTime(t, 2025, 1, 6, 10, 30)) {
		t.Fatalf("expected end 10:30, got %v", tr.End)
	}

	if _, err := NewTimeRange(start, 0); err != ErrInvalidTimeRange {
		t.Fatalf("expected ErrInvalidTimeRange for zero duration, got %v", err)
	}
	if _, err := NewTimeRange(time.Time{}, time.Hour); err != ErrInvalidTimeRange {
		t.Fatalf("expected ErrInvalidTimeRange for zero start, got %v", err)
	}
}

func TestHasOverlap_NoOverlap(t *testing.T) {
	newRange := TimeRange{
		Start: mustTime(t, 2025, 1, 1, 10, 0),
		End:   mustTime(t, 2025, 1, 1, 11, 0),
	}
	existing := []TimeRange{
		{Start: mustTime(t, 2025, 1, 1, 11, 0), End: mustTime(t, 2025, 1, 1, 12, 0)},
	}

	has, conflicts := HasOverlap(newRange, existing, false)
	if has {
		t.Fatalf("expected no overlap, got conflicts: %+v", conflicts)
	}
}

func TestHasOverlap_TouchInclusive(t *testing.T) {
	newRange := TimeRange{
		Start: mustTime(t, 2025, 1, 1, 10, 0),
		End:   mustTime(t, 2025, 1, 1, 11, 0),
	}
	existing := []TimeRange{
		{Start: mustTime(t, 2025, 1, 1, 11, 0), End: mustTime(t, 2025, 1, 1, 12, 0)},
	}

	has, _ := HasOverlap(newRange, existing, true)
	if !has {
		t.Fatalf("expected overlap in inclusive mode")
	}
}

func TestHasOverlap_OverlapFound(t *testing.T) {
	newRange := TimeRange{
		Start: mustTime(t, 2025, 1, 1, 10, 30),
		End:   mustTime(t, 2025, 1, 1, 11, 30),
	}
	existing := []TimeRange{
		{Start: mustTime(t, 2025, 1, 1, 9, 0), End: mustTime(t, 2025, 1, 1, 10, 0)},
		{Start: mustTime(t, 2025, 1, 1, 11, 0), End: mustTime(t, 2025, 1, 1, 12, 0)},
	}

	has, conflicts := HasOverlap(newRange, existing, false)
	if !has {
		t.Fatalf("expected overlap, got none")
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
}

func TestDayWindow_DSTDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// 30.03.2025 — переход на летнее время, в сутках 23 часа.
	date := time.Date(2025, 3, 30, 15, 0, 0, 0, loc)

	w := DayWindow(date)
	if got := w.Duration(); got != 23*time.Hour {
		t.Fatalf("expected 23h window, got %v", got)
	}
	if w.Start.Hour() != 0 || w.End.Day() != 31 {
		t.Fatalf("unexpected window %v – %v", w.Start, w.End)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-06", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %v", d.Weekday())
	}

	if _, err := ParseDate("06.01.2025", time.UTC); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}

func TestFormatRangeForUser(t *testing.T) {
	tr := TimeRange{
		Start: mustTime(t, 2025, 1, 1, 10, 0),
		End:   mustTime(t, 2025, 1, 1, 11, 0),
	}

	str := FormatRangeForUser(tr, time.UTC)
	if str != "Wednesday, 01.01.2025, 10:00–11:00" {
		t.Fatalf("unexpected format: %q", str)
	}
}

func TestClock_ParseAndFormat(t *testing.T) {
	cases := map[string]string{
		"09:00":    "09:00",
		"16:30":    "16:30",
		"08:15:30": "08:15:30",
		"24:00":    "24:00",
	}
	for in, want := range cases {
		c, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", in, err)
		}
		if c.String() != want {
			t.Fatalf("ParseClock(%q).String() = %q, want %q", in, c.String(), want)
		}
	}

	if _, err := ParseClock("9am"); err == nil || !strings.Contains(err.Error(), "HH:MM") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestClock_OnUsesWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	date := time.Date(2025, 3, 30, 0, 0, 0, 0, loc)

	got := NewClock(9, 0).On(date)
	if got.Hour() != 9 || got.Minute() != 0 {
		t.Fatalf("expected 09:00 local, got %v", got)
	}
	if ClockOf(got) != NewClock(9, 0) {
		t.Fatalf("ClockOf round trip failed: %v", ClockOf(got))
	}
}
