package recurrence

import (
	"time"

	"chorecal/internal/model"
)

// NextDueDate returns the occurrence that follows from under rule.
//
// Arithmetic is calendar based and happens in from's location, so the wall
// clock time survives DST changes. Monthly and yearly steps keep the
// day-of-month and clamp it to the last day of a shorter target month
// (Jan 31 -> Feb 29 in 2024, Feb 29 -> Feb 28 in a non-leap year). Each step
// starts from the previous date, so a clamped day carries forward.
//
// The second result is false for RepeatNever (and unknown rules).
func NextDueDate(from time.Time, rule model.RepeatOption) (time.Time, bool) {
	switch rule {
	case model.RepeatDaily:
		return from.AddDate(0, 0, 1), true
	case model.RepeatWeekly:
		return from.AddDate(0, 0, 7), true
	case model.RepeatMonthly:
		return addMonthsClamped(from, 1), true
	case model.RepeatYearly:
		return addMonthsClamped(from, 12), true
	default:
		return time.Time{}, false
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	// Normalize to the first of the target month before clamping so that
	// time.Date does not roll an overflowing day into the following month.
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	ty, tm, _ := first.Date()
	if last := daysIn(ty, tm, t.Location()); d > last {
		d = last
	}
	return time.Date(ty, tm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DayKey identifies the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
