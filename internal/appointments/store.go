package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
)

// Store persists appointments.
type Store interface {
	Find(ctx context.Context, filter Filter) ([]Appointment, error)
	Exists(ctx context.Context, doctorID string, date time.Time, clock string) (bool, error)
	Insert(ctx context.Context, appt *Appointment) error
	UpdateStatus(ctx context.Context, doctorID, id string, status Status) (*Appointment, error)
	SettleUnpaidCommissions(ctx context.Context, doctorID string) (int64, error)
}

type slotKey struct {
	doctorID string
	date     string
	clock    string
}

// MemoryStore keeps appointments in process. Insert checks and claims the
// slot under one lock, mirroring the partial unique index in Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Appointment
	taken map[slotKey]string
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Appointment),
		taken: make(map[slotKey]string),
		now:   time.Now,
	}
}

func keyFor(doctorID string, date time.Time, clock string) slotKey {
	return slotKey{doctorID: doctorID, date: calendar.FormatDate(date), clock: clock}
}

func (s *MemoryStore) Find(ctx context.Context, filter Filter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Appointment, 0)
	for _, appt := range s.byID {
		if filter.matches(*appt) {
			out = append(out, appt.Clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, doctorID string, date time.Time, clock string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.taken[keyFor(doctorID, date, clock)]
	return ok, nil
}

func (s *MemoryStore) Insert(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	appt.Date = calendar.Day(appt.Date)
	key := keyFor(appt.DoctorID, appt.Date, appt.Time)
	if appt.Status != StatusCancelled {
		if _, ok := s.taken[key]; ok {
			return ErrSlotTaken
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	now := s.now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	stored := appt.Clone()
	s.byID[stored.ID] = &stored
	if stored.Status != StatusCancelled {
		s.taken[key] = stored.ID
	}
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, doctorID, id string, status Status) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byID[id]
	if !ok || appt.DoctorID != doctorID {
		return nil, ErrNotFound
	}
	if !CanTransition(appt.Status, status) {
		return nil, ErrInvalidStatus
	}
	appt.Status = status
	appt.UpdatedAt = s.now().UTC()
	if status == StatusCancelled {
		delete(s.taken, keyFor(appt.DoctorID, appt.Date, appt.Time))
	}
	out := appt.Clone()
	return &out, nil
}

// SettleUnpaidCommissions marks every unpaid website/attended commission of
// the doctor as paid and returns how many changed.
func (s *MemoryStore) SettleUnpaidCommissions(ctx context.Context, doctorID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now().UTC()
	for _, appt := range s.byID {
		if appt.DoctorID != doctorID || !appt.CommissionBearing() || appt.Commission.Paid {
			continue
		}
		appt.Commission.Paid = true
		appt.UpdatedAt = now
		n++
	}
	return n, nil
}

func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].Date.Equal(appts[j].Date) {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].Time < appts[j].Time
	})
}
