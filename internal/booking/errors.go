package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotConflict means the slot is already held. Callers should refresh
	// availability and pick another slot.
	ErrSlotConflict = errors.New("booking: slot already booked")

	ErrDoctorNotFound  = errors.New("booking: doctor not found")
	ErrPatientNotFound = errors.New("booking: patient not found")

	// ErrInvalidGuestDetails is matched by every *GuestDetailsError.
	ErrInvalidGuestDetails = errors.New("booking: invalid guest details")

	// ErrUnauthenticated means neither guest details nor a caller identity
	// were supplied.
	ErrUnauthenticated = errors.New("booking: caller identity required")

	// ErrInvalidRequest covers malformed dates, times and sources.
	ErrInvalidRequest = errors.New("booking: invalid request")

	// ErrSlotNotOffered means a website booking asked for a time the doctor's
	// schedule does not generate on that day.
	ErrSlotNotOffered = errors.New("booking: slot not offered by schedule")

	// ErrBusy means the per-doctor booking lock could not be taken in time.
	ErrBusy = errors.New("booking: doctor calendar busy, retry")
)

// GuestDetailsError names the guest field that failed validation.
type GuestDetailsError struct {
	Field string
}

func (e *GuestDetailsError) Error() string {
	return fmt.Sprintf("booking: guest %s is required", e.Field)
}

func (e *GuestDetailsError) Is(target error) bool {
	return target == ErrInvalidGuestDetails
}

var (
	// ErrAppointmentNotFound means the appointment does not exist or belongs
	// to another doctor.
	ErrAppointmentNotFound = errors.New("booking: appointment not found")

	// ErrInvalidTransition covers unknown statuses and changes to a cancelled
	// appointment.
	ErrInvalidTransition = errors.New("booking: invalid status change")
)
