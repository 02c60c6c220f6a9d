package model

import (
	"fmt"
	"strings"
	"time"
)

// Interval is the calendar unit used by recurring budgets and periodic transactions.
type Interval string

const (
	// IntervalDays advances by whole days.
	IntervalDays Interval = "days"
	// IntervalWeeks advances by seven-day weeks.
	IntervalWeeks Interval = "weeks"
	// IntervalMonths advances by calendar months.
	IntervalMonths Interval = "months"
	// IntervalYears advances by calendar years.
	IntervalYears Interval = "years"
)

// ParseInterval accepts singular or plural unit names, case-insensitively.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "days", "d":
		return IntervalDays, nil
	case "week", "weeks", "w":
		return IntervalWeeks, nil
	case "month", "months", "m":
		return IntervalMonths, nil
	case "year", "years", "y":
		return IntervalYears, nil
	default:
		return "", &ValidationError{Field: "interval", Message: fmt.Sprintf("unknown interval %q", s)}
	}
}

// Valid reports whether i is one of the supported intervals.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDays, IntervalWeeks, IntervalMonths, IntervalYears:
		return true
	default:
		return false
	}
}

// Advance moves t forward by count units of interval.
// Month and year arithmetic keeps the day of month where possible and
// clamps to the last day of the target month otherwise, so Jan 31 plus
// one month is the last day of February.
func Advance(t time.Time, interval Interval, count int) time.Time {
	if count == 0 {
		return t
	}

	switch interval {
	case IntervalDays:
		return t.AddDate(0, 0, count)
	case IntervalWeeks:
		return t.AddDate(0, 0, 7*count)
	case IntervalMonths:
		return addMonthsClamped(t, count)
	case IntervalYears:
		return addMonthsClamped(t, 12*count)
	default:
		return t
	}
}

// AddDays returns t plus n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Normalise through the first of the month so time.Date never rolls over.
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := daysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}

	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
