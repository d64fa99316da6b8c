package schedule

import (
	"time"

	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
)

// Generate returns the ascending "HH:MM" slot starts for date. A disabled day,
// or a day whose hours cannot be parsed, yields an empty slice.
//
// Slots are laid out from the start time in steps of duration+buffer and a
// slot is only emitted while start+duration fits before the end time. The
// arithmetic is plain wall-clock minutes; no DST adjustment happens.
func Generate(cfg WeeklyConfig, date time.Time) []string {
	norm := cfg.Normalize()
	day := norm.Days[WeekdayOf(date.Weekday())]
	if !day.Enabled {
		return []string{}
	}
	start, err := calendar.ParseClock(day.StartTime)
	if err != nil {
		return []string{}
	}
	end, err := calendar.ParseClock(day.EndTime)
	if err != nil || start >= end {
		return []string{}
	}

	step := norm.SlotDurationMinutes + norm.BufferMinutes
	slots := make([]string, 0, (end-start)/step+1)
	for at := start; at+norm.SlotDurationMinutes <= end; at += step {
		slots = append(slots, calendar.FormatClock(at))
	}
	return slots
}
