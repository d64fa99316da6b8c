package events

import "time"

// AppointmentBookedV1 is emitted once an appointment row is committed.
type AppointmentBookedV1 struct {
	AppointmentID    string    `json:"appointment_id"`
	DoctorID         string    `json:"doctor_id"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	Source           string    `json:"source"`
	PatientKind      string    `json:"patient_kind"`
	PatientUserID    string    `json:"patient_user_id,omitempty"`
	CommissionAmount string    `json:"commission_amount"`
	BookedAt         time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string {
	return "scheduling.appointment.booked.v1"
}

// AppointmentStatusChangedV1 is emitted when a doctor moves an appointment
// through its lifecycle.
type AppointmentStatusChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	Status        string    `json:"status"`
	ChangedAt     time.Time `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string {
	return "scheduling.appointment.status_changed.v1"
}

// RenewalApprovedV1 records an approved subscription renewal.
type RenewalApprovedV1 struct {
	DoctorID     string    `json:"doctor_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	PaymentPhone string    `json:"payment_phone"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	ApprovedAt   time.Time `json:"approved_at"`
}

func (RenewalApprovedV1) EventType() string {
	return "billing.renewal.approved.v1"
}

// CommissionSettledV1 records an approved commission payment.
type CommissionSettledV1 struct {
	DoctorID        string    `json:"doctor_id"`
	SettledCount    int64     `json:"settled_count"`
	SubmittedAmount string    `json:"submitted_amount"`
	ApprovedBy      string    `json:"approved_by,omitempty"`
	ApprovedAt      time.Time `json:"approved_at"`
}

func (CommissionSettledV1) EventType() string {
	return "billing.commission.settled.v1"
}

// AccessStateChangedV1 is emitted by the access sweeper when a doctor's
// derived state differs from the previous sweep.
type AccessStateChangedV1 struct {
	DoctorID   string    `json:"doctor_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	HasAccess  bool      `json:"has_access"`
	ObservedAt time.Time `json:"observed_at"`
}

func (AccessStateChangedV1) EventType() string {
	return "billing.access.state_changed.v1"
}

// DoctorAggregate names the aggregate for doctor-scoped events.
func DoctorAggregate(doctorID string) string {
	return "doctor:" + doctorID
}
