package scheduler

import (
	"errors"
	"time"
)

// ErrNoNextOccurrence is returned when a recurring plan has no computable
// next occurrence, typically because its day set is empty.
var ErrNoNextOccurrence = errors.New("no valid next occurrence")

// NextOccurrence returns the next scheduled time for a recurring plan:
// the first calendar day strictly after now whose weekday is in days,
// combined with timeOfDay ("HH:MM") in now's location. Today is always
// skipped; evaluation happens right after a dispatch, so the day just
// served can never be picked again.
func NextOccurrence(now time.Time, timeOfDay string, days []int) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	if len(days) == 0 {
		return time.Time{}, ErrNoNextOccurrence
	}
	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[time.Weekday(d)] = true
	}
	base := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	for i := 1; i <= 7; i++ {
		cand := base.AddDate(0, 0, i)
		if allowed[cand.Weekday()] {
			return cand, nil
		}
	}
	return time.Time{}, ErrNoNextOccurrence
}
