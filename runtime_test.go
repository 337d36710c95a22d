package ehsgw

import (
	"testing"
	"time"
)

func TestNextHourBoundaryRoundsUp(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 15, 30, 0, time.UTC)
	want := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	if got := nextHourBoundary(now); !got.Equal(want) {
		t.Fatalf("nextHourBoundary(%v) = %v, want %v", now, got, want)
	}
}

func TestNextHourBoundaryAtExactHour(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	if got := nextHourBoundary(now); !got.Equal(want) {
		t.Fatalf("nextHourBoundary(%v) = %v, want %v", now, got, want)
	}
}

func TestNextDayBoundaryIsMidnight(t *testing.T) {
	now := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if got := nextDayBoundary(now); !got.Equal(want) {
		t.Fatalf("nextDayBoundary(%v) = %v, want %v", now, got, want)
	}
}

func TestNextWeekBoundaryIsNextMondayMidnight(t *testing.T) {
	// 2026-07-31 is a Friday.
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	got := nextWeekBoundary(now)
	if !got.Equal(want) {
		t.Fatalf("nextWeekBoundary(%v) = %v, want %v", now, got, want)
	}
	if got.Weekday() != time.Monday {
		t.Fatalf("nextWeekBoundary weekday = %v, want Monday", got.Weekday())
	}
}

func TestNextWeekBoundaryOnMondayMidnightRollsToNextWeek(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC) // already a Monday midnight
	want := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	if got := nextWeekBoundary(now); !got.Equal(want) {
		t.Fatalf("nextWeekBoundary(%v) = %v, want %v", now, got, want)
	}
}
