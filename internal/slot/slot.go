// Package slot holds the calendar value types the scheduling engine books
// against: a civil date and a fixed-granularity time-of-day. A slot carries
// no implicit duration; two bookings collide only on an exact
// (doctor, date, time) match.
package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")
)

// Time is a time-of-day expressed as minutes since midnight.
type Time int

// ParseTime parses an "HH:MM" string.
func ParseTime(s string) (Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return Time(t.Hour()*60 + t.Minute()), nil
}

func (t Time) Hour() int   { return int(t) / 60 }
func (t Time) Minute() int { return int(t) % 60 }

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Valid reports whether t falls within a single day.
func (t Time) Valid() bool {
	return t >= 0 && t < 24*60
}

// ParseDate parses a "YYYY-MM-DD" string into a civil date, midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOf truncates an instant to its civil date, midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date as "YYYY-MM-DD".
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// Combine joins a civil date with a time-of-day into one instant. The
// engine runs on a single wall clock, so the result is always UTC.
func Combine(date time.Time, t Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}
