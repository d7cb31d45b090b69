package recurring

import (
	"time"

	"github.com/dukerupert/pocketkid/internal/model"
)

// NextRun computes the occurrence after current. Monthly cadences land on
// the anchor's day-of-month, clamped to the target month's length, so a
// config anchored on the 31st runs on Feb 28 and again on Mar 31.
func NextRun(current, anchor time.Time, frequency string) time.Time {
	switch frequency {
	case model.FreqDaily:
		return current.AddDate(0, 0, 1)
	case model.FreqWeekly:
		return current.AddDate(0, 0, 7)
	case model.FreqBiweekly:
		return current.AddDate(0, 0, 14)
	case model.FreqMonthly:
		return nextMonthly(current, anchor)
	default:
		// Unknown frequency: advance a week so a bad row cannot spin the
		// scheduler.
		return current.AddDate(0, 0, 7)
	}
}

func nextMonthly(current, anchor time.Time) time.Time {
	year, month, _ := current.Date()
	hour, min, sec := anchor.Clock()

	month++
	if month > time.December {
		month = time.January
		year++
	}

	day := anchor.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, min, sec, 0, current.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
