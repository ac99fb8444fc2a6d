package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestNextOccurrenceSkipsToday(t *testing.T) {
	// Monday 2025-01-06 09:00, plan runs Mon+Wed at 08:00. Today matches
	// the day set but evaluation happens post-dispatch, so the answer is
	// Wednesday 08:00.
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(now, "08:00", []int{1, 3})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2025, 1, 8, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s got %s", want, next)
	}
}

func TestNextOccurrenceSameWeekday(t *testing.T) {
	// Only Mondays: from a Monday the next occurrence is a full week out.
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(now, "20:30", []int{1})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2025, 1, 13, 20, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s got %s", want, next)
	}
}

func TestNextOccurrenceCrossesMonth(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC) // Friday
	next, err := NextOccurrence(now, "07:15", []int{0})  // Sundays
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2025, 2, 2, 7, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s got %s", want, next)
	}
}

func TestNextOccurrenceEmptyDays(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	if _, err := NextOccurrence(now, "08:00", nil); !errors.Is(err, ErrNoNextOccurrence) {
		t.Fatalf("expected ErrNoNextOccurrence, got %v", err)
	}
}

func TestNextOccurrenceBadTimeOfDay(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	if _, err := NextOccurrence(now, "8am", []int{1}); err == nil {
		t.Fatalf("expected parse error")
	}
}
