// Package doctors holds the doctor account state that drives booking access:
// trial and subscription expiry, admin toggles, fee, schedule and the pending
// renewal or commission payment requests.
package doctors

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/doctor-booking-engine/internal/schedule"
)

var (
	// ErrNotFound is returned when a doctor account does not exist.
	ErrNotFound = errors.New("doctors: not found")

	// ErrInvalidFee is returned for negative consultation fees.
	ErrInvalidFee = errors.New("doctors: consultation fee must not be negative")
)

// RequestStatus tracks a doctor-submitted payment request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
)

// RenewalRequest is a doctor's claim to have paid the subscription fee.
type RenewalRequest struct {
	Status      RequestStatus `json:"status"`
	Phone       string        `json:"phone"`
	ReceiptRef  string        `json:"receipt_ref"`
	SubmittedAt time.Time     `json:"submitted_at"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
}

// Pending reports whether r awaits admin review.
func (r *RenewalRequest) Pending() bool {
	return r != nil && r.Status == RequestPending
}

// CommissionPaymentRequest is a doctor's claim to have paid owed commission.
// Amount is what the doctor says they paid and is informational only.
type CommissionPaymentRequest struct {
	Status      RequestStatus   `json:"status"`
	Phone       string          `json:"phone"`
	ReceiptRef  string          `json:"receipt_ref"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
}

// Pending reports whether r awaits admin review.
func (r *CommissionPaymentRequest) Pending() bool {
	return r != nil && r.Status == RequestPending
}

// Account is the persisted doctor account.
type Account struct {
	ID                       string                    `json:"id"`
	UserID                   string                    `json:"user_id"`
	Name                     string                    `json:"name"`
	ConsultationFee          decimal.Decimal           `json:"consultation_fee"`
	TrialExpiresAt           *time.Time                `json:"trial_expires_at,omitempty"`
	SubscriptionExpiresAt    *time.Time                `json:"subscription_expires_at,omitempty"`
	IsPaused                 bool                      `json:"is_paused"`
	IsManuallyDeactivated    bool                      `json:"is_manually_deactivated"`
	ProfileComplete          bool                      `json:"profile_complete"`
	Schedule                 schedule.WeeklyConfig     `json:"schedule"`
	RenewalRequest           *RenewalRequest           `json:"renewal_request,omitempty"`
	CommissionPaymentRequest *CommissionPaymentRequest `json:"commission_payment_request,omitempty"`
	CreatedAt                time.Time                 `json:"created_at"`
	UpdatedAt                time.Time                 `json:"updated_at"`
}

// Validate checks the fields a doctor controls. An account that has never
// set a schedule is valid.
func (a *Account) Validate() error {
	if a.ConsultationFee.IsNegative() {
		return ErrInvalidFee
	}
	if a.Schedule.SlotDurationMinutes == 0 && len(a.Schedule.Days) == 0 {
		return nil
	}
	return a.Schedule.Validate()
}

// Clone returns a deep copy so callers can mutate without sharing pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.TrialExpiresAt = cloneTime(a.TrialExpiresAt)
	out.SubscriptionExpiresAt = cloneTime(a.SubscriptionExpiresAt)
	if a.Schedule.Days != nil {
		out.Schedule.Days = make(map[schedule.Weekday]schedule.DaySchedule, len(a.Schedule.Days))
		for k, v := range a.Schedule.Days {
			out.Schedule.Days[k] = v
		}
	}
	if a.RenewalRequest != nil {
		r := *a.RenewalRequest
		r.ReviewedAt = cloneTime(a.RenewalRequest.ReviewedAt)
		out.RenewalRequest = &r
	}
	if a.CommissionPaymentRequest != nil {
		r := *a.CommissionPaymentRequest
		r.ReviewedAt = cloneTime(a.CommissionPaymentRequest.ReviewedAt)
		out.CommissionPaymentRequest = &r
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
