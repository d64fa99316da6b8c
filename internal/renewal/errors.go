package renewal

import "errors"

var (
	// ErrRequestNotFound means the doctor has no pending request of the kind
	// being approved. Nothing is written.
	ErrRequestNotFound = errors.New("renewal: no pending request")

	// ErrDoctorNotFound is returned when the doctor account does not exist.
	ErrDoctorNotFound = errors.New("renewal: doctor not found")

	// ErrInvalidSubmission covers missing phone or receipt and bad amounts.
	ErrInvalidSubmission = errors.New("renewal: invalid submission")
)
