package common

import "time"

// DayBounds returns the first instant of t's calendar day and the first instant of the next one,
// both in t's location.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1)
	return start, end
}

// WithinDay reports whether t falls on the same calendar day as now, judged in now's location.
func WithinDay(t, now time.Time) bool {
	start, end := DayBounds(now)
	return !t.Before(start) && t.Before(end)
}
