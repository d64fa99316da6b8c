// Package availability reconciles generated slots with booked appointments.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
	"github.com/wolfman30/doctor-booking-engine/internal/schedule"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// BookedSlot is a (day, time) pair held by a live appointment.
type BookedSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Slot is a generated slot annotated with its booking state.
type Slot struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Booked bool   `json:"booked"`
}

// BookedSet answers membership by calendar day and clock time.
type BookedSet map[BookedSlot]struct{}

// Contains reports whether date/clock is booked. date is compared by calendar day.
func (s BookedSet) Contains(date time.Time, clock string) bool {
	_, ok := s[BookedSlot{Date: calendar.FormatDate(date), Time: clock}]
	return ok
}

// Cache stores a doctor's upcoming booked slots.
type Cache interface {
	Get(ctx context.Context, doctorID string) ([]BookedSlot, bool, error)
	Set(ctx context.Context, doctorID string, slots []BookedSlot) error
	Invalidate(ctx context.Context, doctorID string) error
}

// Index answers "is this slot taken" for doctors. Only appointments dated
// today or later count; past days are never reported as booked.
type Index struct {
	store  appointments.Store
	cache  Cache
	loc    *time.Location
	now    func() time.Time
	logger *logging.Logger
	// loads collapses concurrent cache misses for one doctor into one query.
	loads singleflight.Group
}

// NewIndex builds an index over store. cache may be nil. loc decides which
// calendar day "today" is.
func NewIndex(store appointments.Store, cache Cache, loc *time.Location, logger *logging.Logger) *Index {
	if store == nil {
		panic("availability: appointment store required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Index{
		store:  store,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
		logger: logger.Component("availability"),
	}
}

// WithClock overrides the time source.
func (i *Index) WithClock(now func() time.Time) *Index {
	if now != nil {
		i.now = now
	}
	return i
}

// Location returns the zone used for calendar days.
func (i *Index) Location() *time.Location {
	return i.loc
}

// Today returns the current calendar day.
func (i *Index) Today() time.Time {
	return calendar.Today(i.now(), i.loc)
}

// IsBooked reports whether a live appointment holds doctorID's slot at
// date/clock. The lookup always goes to the store, never the cache.
func (i *Index) IsBooked(ctx context.Context, doctorID string, date time.Time, clock string) (bool, error) {
	day := calendar.Day(date)
	if day.Before(i.Today()) {
		return false, nil
	}
	if normalized, err := calendar.NormalizeClock(clock); err == nil {
		clock = normalized
	}
	booked, err := i.store.Exists(ctx, doctorID, day, clock)
	if err != nil {
		return false, fmt.Errorf("availability: check slot: %w", err)
	}
	return booked, nil
}

// BookedSlots returns the upcoming booked slots for a doctor in date/time
// order, served from the cache when possible.
func (i *Index) BookedSlots(ctx context.Context, doctorID string) ([]BookedSlot, error) {
	if i.cache != nil {
		slots, ok, err := i.cache.Get(ctx, doctorID)
		if err != nil {
			i.logger.Warn("booked slot cache read failed", "doctor_id", doctorID, "error", err)
		} else if ok {
			return i.dropPast(slots), nil
		}
	}

	v, err, _ := i.loads.Do(doctorID, func() (any, error) {
		return i.loadBooked(ctx, doctorID)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]BookedSlot)
	out := make([]BookedSlot, len(shared))
	copy(out, shared)
	return out, nil
}

func (i *Index) loadBooked(ctx context.Context, doctorID string) ([]BookedSlot, error) {
	appts, err := i.store.Find(ctx, appointments.Filter{
		DoctorID:         doctorID,
		ExcludeCancelled: true,
		DateFrom:         i.Today(),
	})
	if err != nil {
		return nil, fmt.Errorf("availability: load booked slots: %w", err)
	}
	slots := make([]BookedSlot, 0, len(appts))
	for _, appt := range appts {
		slots = append(slots, BookedSlot{Date: calendar.FormatDate(appt.Date), Time: appt.Time})
	}
	sortSlots(slots)

	if i.cache != nil {
		if err := i.cache.Set(ctx, doctorID, slots); err != nil {
			i.logger.Warn("booked slot cache write failed", "doctor_id", doctorID, "error", err)
		}
	}
	return slots, nil
}

// BookedSetFor is BookedSlots as a lookup set.
func (i *Index) BookedSetFor(ctx context.Context, doctorID string) (BookedSet, error) {
	slots, err := i.BookedSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	set := make(BookedSet, len(slots))
	for _, s := range slots {
		set[s] = struct{}{}
	}
	return set, nil
}

// DaySlots lists every generated slot for date with its booked flag. Slots
// earlier than now on today's date are still listed.
func (i *Index) DaySlots(ctx context.Context, doctorID string, cfg schedule.WeeklyConfig, date time.Time) ([]Slot, error) {
	day := calendar.Day(date)
	times := schedule.Generate(cfg, day)
	out := make([]Slot, 0, len(times))
	if len(times) == 0 {
		return out, nil
	}
	booked, err := i.BookedSetFor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	dateStr := calendar.FormatDate(day)
	for _, t := range times {
		out = append(out, Slot{Date: dateStr, Time: t, Booked: booked.Contains(day, t)})
	}
	return out, nil
}

// FirstAvailable scans forward from today for the earliest free slot within
// horizonDays days. Slots on today's date that start before the current time
// are skipped. The second return is false when nothing is free.
func (i *Index) FirstAvailable(ctx context.Context, doctorID string, cfg schedule.WeeklyConfig, horizonDays int) (Slot, bool, error) {
	if horizonDays <= 0 || !cfg.HasEnabledDay() {
		return Slot{}, false, nil
	}
	booked, err := i.BookedSetFor(ctx, doctorID)
	if err != nil {
		return Slot{}, false, err
	}

	now := i.now()
	today := calendar.Today(now, i.loc)
	nowMinutes := calendar.ClockOf(now, i.loc)
	for d := 0; d < horizonDays; d++ {
		day := calendar.AddDays(today, d)
		for _, t := range schedule.Generate(cfg, day) {
			if d == 0 {
				start, err := calendar.ParseClock(t)
				if err != nil || start < nowMinutes {
					continue
				}
			}
			if booked.Contains(day, t) {
				continue
			}
			return Slot{Date: calendar.FormatDate(day), Time: t}, true, nil
		}
	}
	return Slot{}, false, nil
}

// Invalidate drops the cached booked slots for doctorID.
func (i *Index) Invalidate(ctx context.Context, doctorID string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Invalidate(ctx, doctorID); err != nil {
		i.logger.Warn("booked slot cache invalidate failed", "doctor_id", doctorID, "error", err)
	}
}

// dropPast filters cached entries that fell behind "today" since caching.
func (i *Index) dropPast(slots []BookedSlot) []BookedSlot {
	today := calendar.FormatDate(i.Today())
	out := make([]BookedSlot, 0, len(slots))
	for _, s := range slots {
		if s.Date >= today {
			out = append(out, s)
		}
	}
	return out
}

func sortSlots(slots []BookedSlot) {
	sort.Slice(slots, func(a, b int) bool {
		if slots[a].Date != slots[b].Date {
			return slots[a].Date < slots[b].Date
		}
		return slots[a].Time < slots[b].Time
	})
}
