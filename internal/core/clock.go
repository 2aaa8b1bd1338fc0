package core

import "time"

// DateLayout is the calendar-date format used in menu plans, ranges and slot keys.
const DateLayout = "2006-01-02"

// Clock abstracts wall time so lifecycle and retry timing can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// CalendarDate truncates t to midnight UTC of its calendar date in t's location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: "expected YYYY-MM-DD, got " + s}
	}
	return t, nil
}
