package recurrence

import "time"

// NextTrigger returns the occurrence following current under policy p.
// The boolean is false when there is no next occurrence (Once, or an
// invalid policy).
//
// Daily and Weekly advance by calendar days, so the wall-clock time is kept
// across DST changes. Monthly keeps the day of month, clamped to the last
// day of the next month (Jan 31 -> Feb 28/29). Yearly keeps month and day;
// Feb 29 clamps to Feb 28 when the next year is not a leap year.
func NextTrigger(current time.Time, p Policy) (time.Time, bool) {
	switch p {
	case Once:
		return time.Time{}, false
	case Daily:
		return current.AddDate(0, 0, 1), true
	case Weekly:
		return current.AddDate(0, 0, 7), true
	case Monthly:
		return addMonthClamped(current), true
	case Yearly:
		return addYearClamped(current), true
	default:
		return time.Time{}, false
	}
}

func addMonthClamped(t time.Time) time.Time {
	year, month := t.Year(), t.Month()+1
	if month > time.December {
		month = time.January
		year++
	}
	return withDate(t, year, month, min(t.Day(), DaysIn(year, month)))
}

func addYearClamped(t time.Time) time.Time {
	year := t.Year() + 1
	return withDate(t, year, t.Month(), min(t.Day(), DaysIn(year, t.Month())))
}

func withDate(t time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month normalises to the last day of month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLeap reports whether year is a Gregorian leap year.
func IsLeap(year int) bool { return DaysIn(year, time.February) == 29 }
