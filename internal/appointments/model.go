// Package appointments stores doctor appointments and enforces that no two
// live appointments share a doctor, day and clock time.
package appointments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusAttended  Status = "attended"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAttended, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Source is the channel the booking came through.
type Source string

const (
	// SourceWebsite bookings are made online and carry commission.
	SourceWebsite Source = "website"
	// SourceDirect bookings are walk-ins entered by the doctor.
	SourceDirect Source = "direct"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceWebsite || s == SourceDirect
}

// Guest is a patient booked without an account.
type Guest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// PatientRef points at exactly one of a registered user or an embedded guest.
type PatientRef struct {
	UserID string `json:"user_id,omitempty"`
	Guest  *Guest `json:"guest,omitempty"`
}

// IsGuest reports whether the appointment belongs to an embedded guest.
func (p PatientRef) IsGuest() bool {
	return p.UserID == "" && p.Guest != nil
}

// Commission is the platform's cut of a website booking.
type Commission struct {
	Amount decimal.Decimal `json:"amount"`
	Paid   bool            `json:"paid"`
}

// Appointment is a persisted booking. Date is a calendar day at midnight UTC
// and Time is an "HH:MM" wall-clock string.
type Appointment struct {
	ID         string     `json:"id"`
	DoctorID   string     `json:"doctor_id"`
	Date       time.Time  `json:"date"`
	Time       string     `json:"time"`
	Status     Status     `json:"status"`
	Source     Source     `json:"source"`
	Patient    PatientRef `json:"patient"`
	Commission Commission `json:"commission"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	if a.Patient.Guest != nil {
		g := *a.Patient.Guest
		a.Patient.Guest = &g
	}
	return a
}

// CommissionBearing reports whether the appointment is a website visit that
// was attended, the only kind that owes commission.
func (a Appointment) CommissionBearing() bool {
	return a.Source == SourceWebsite && a.Status == StatusAttended
}

// Filter narrows Find results. Zero fields do not filter. DateFrom is
// inclusive and DateTo exclusive.
type Filter struct {
	DoctorID         string
	Statuses         []Status
	ExcludeCancelled bool
	Source           Source
	DateFrom         time.Time
	DateTo           time.Time
	CommissionPaid   *bool
}

func (f Filter) matches(a Appointment) bool {
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == a.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ExcludeCancelled && a.Status == StatusCancelled {
		return false
	}
	if f.Source != "" && a.Source != f.Source {
		return false
	}
	if !f.DateFrom.IsZero() && a.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && !a.Date.Before(f.DateTo) {
		return false
	}
	if f.CommissionPaid != nil && a.Commission.Paid != *f.CommissionPaid {
		return false
	}
	return true
}

// CanTransition reports whether an appointment may move from one status to
// another. Cancelled appointments are final since their slot may already be
// taken again.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	return from != StatusCancelled
}
