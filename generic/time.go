package generic

import (
	"time"
)

// =============================================================================
// ELAPSED TIME - Whole days, the only granularity interest cares about
// =============================================================================

// Day is the fixed-length day used for elapsed-time arithmetic. Accrual counts
// 24-hour spans, not calendar dates, so DST shifts never produce a double day.
const Day = 24 * time.Hour

// WholeDaysBetween returns floor((to - from) / 24h), clamped at zero.
// A clock that runs backwards (to before from) yields 0, never a negative count.
func WholeDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / Day)
}

// DateKey truncates t to its UTC calendar date, used to group history by day.
func DateKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func StartOfDay(t time.Time) time.Time { return DateKey(t) }

func EndOfDay(t time.Time) time.Time { return DateKey(t).Add(Day - time.Nanosecond) }

// ParseDate accepts "2006-01-02" or RFC 3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
