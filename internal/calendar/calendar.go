// Package calendar holds the calendar-day and wall-clock helpers shared by
// scheduling and billing. Dates are midnight UTC values carrying only a
// year/month/day; clock times are minutes since midnight.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for calendar days.
	DateLayout = time.DateOnly
	// ClockLayout is the wire format for 24-hour wall-clock times.
	ClockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// ErrInvalidClock is returned for malformed "HH:MM" values.
var ErrInvalidClock = errors.New("calendar: invalid clock time")

// Day truncates t to its calendar day as observed in t's own location and
// returns it as midnight UTC, so two instants on the same local day compare equal.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// ParseDate parses a "2006-01-02" calendar day.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: parse date %q: %w", v, err)
	}
	return t, nil
}

// FormatDate renders a calendar day as "2006-01-02".
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(v string) (int, error) {
	if v == "" {
		return 0, ErrInvalidClock
	}
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock re-renders a clock value so "9:05" and "09:05" compare equal.
func NormalizeClock(v string) (string, error) {
	m, err := ParseClock(v)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// ClockOf returns the wall-clock minutes of t in loc.
func ClockOf(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// MonthStart returns the first day of day's month.
func MonthStart(day time.Time) time.Time {
	y, m, _ := day.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar day by n days.
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}
