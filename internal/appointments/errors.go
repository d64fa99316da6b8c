package appointments

import "errors"

var (
	// ErrSlotTaken is returned when a live appointment already holds the
	// doctor/day/time being inserted.
	ErrSlotTaken = errors.New("appointments: slot already taken")

	// ErrNotFound is returned when an appointment does not exist for the doctor.
	ErrNotFound = errors.New("appointments: not found")

	// ErrInvalidStatus is returned for unknown statuses and forbidden transitions.
	ErrInvalidStatus = errors.New("appointments: invalid status transition")
)
