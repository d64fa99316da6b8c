// Package schedule models a doctor's weekly working hours and turns them into
// bookable slots.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
)

// Weekday is the lower-case English day name used as the storage key.
type Weekday string

const (
	Sunday    Weekday = "sunday"
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
)

// Weekdays lists every day in time.Weekday order.
var Weekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

const (
	DefaultStartTime           = "09:00"
	DefaultEndTime             = "17:00"
	DefaultSlotDurationMinutes = 30
)

var (
	ErrInvalidDuration = errors.New("schedule: slot duration must be positive")
	ErrInvalidBuffer   = errors.New("schedule: buffer must not be negative")
	ErrInvalidHours    = errors.New("schedule: start time must be before end time")
)

// WeekdayOf maps a time.Weekday onto its storage key.
func WeekdayOf(d time.Weekday) Weekday {
	return Weekdays[int(d)%len(Weekdays)]
}

// DaySchedule holds the working window for one weekday.
type DaySchedule struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// WeeklyConfig is the doctor-owned weekly schedule.
type WeeklyConfig struct {
	SlotDurationMinutes int                     `json:"slot_duration_minutes"`
	BufferMinutes       int                     `json:"buffer_minutes"`
	Days                map[Weekday]DaySchedule `json:"days"`
}

// Normalize returns a copy with all seven weekdays present. Missing days are
// disabled with default hours; blank hours on a present day get the defaults.
func (c WeeklyConfig) Normalize() WeeklyConfig {
	out := WeeklyConfig{
		SlotDurationMinutes: c.SlotDurationMinutes,
		BufferMinutes:       c.BufferMinutes,
		Days:                make(map[Weekday]DaySchedule, len(Weekdays)),
	}
	if out.SlotDurationMinutes <= 0 {
		out.SlotDurationMinutes = DefaultSlotDurationMinutes
	}
	if out.BufferMinutes < 0 {
		out.BufferMinutes = 0
	}
	for _, wd := range Weekdays {
		day, ok := c.Days[wd]
		if !ok {
			for key, v := range c.Days {
				if Weekday(strings.ToLower(string(key))) == wd {
					day, ok = v, true
					break
				}
			}
		}
		if !ok {
			day = DaySchedule{Enabled: false}
		}
		if strings.TrimSpace(day.StartTime) == "" {
			day.StartTime = DefaultStartTime
		}
		if strings.TrimSpace(day.EndTime) == "" {
			day.EndTime = DefaultEndTime
		}
		out.Days[wd] = day
	}
	return out
}

// Validate reports the first problem that would stop a doctor saving this schedule.
func (c WeeklyConfig) Validate() error {
	if c.SlotDurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if c.BufferMinutes < 0 {
		return ErrInvalidBuffer
	}
	for wd, day := range c.Days {
		if !day.Enabled {
			continue
		}
		start, err := calendar.ParseClock(day.StartTime)
		if err != nil {
			return fmt.Errorf("schedule: %s start: %w", wd, err)
		}
		end, err := calendar.ParseClock(day.EndTime)
		if err != nil {
			return fmt.Errorf("schedule: %s end: %w", wd, err)
		}
		if start >= end {
			return fmt.Errorf("%w (%s)", ErrInvalidHours, wd)
		}
	}
	return nil
}

// ForDate returns the normalized day schedule that applies on date.
func (c WeeklyConfig) ForDate(date time.Time) DaySchedule {
	return c.Normalize().Days[WeekdayOf(date.Weekday())]
}

// HasEnabledDay reports whether any weekday accepts bookings.
func (c WeeklyConfig) HasEnabledDay() bool {
	for _, day := range c.Normalize().Days {
		if day.Enabled {
			return true
		}
	}
	return false
}
