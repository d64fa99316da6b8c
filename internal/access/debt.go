// Package access decides whether a doctor account may take bookings and show
// up in search, from its expiry dates, admin toggles and unpaid commission.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
	"github.com/wolfman30/doctor-booking-engine/internal/commission"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/money"
)

// Policy holds the billing constants.
type Policy struct {
	// SubscriptionFee is the flat amount owed once trial and subscription
	// have both lapsed.
	SubscriptionFee decimal.Decimal
	// GraceDays is how many days into a month overdue commission alone does
	// not block.
	GraceDays int
	// Location decides calendar days and day-of-month.
	Location *time.Location
}

// DefaultPolicy is a 150 fee with a five day grace period in UTC.
func DefaultPolicy() Policy {
	return Policy{SubscriptionFee: decimal.NewFromInt(150), GraceDays: 5, Location: time.UTC}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DebtBreakdown is what a doctor owes right now.
type DebtBreakdown struct {
	SubscriptionDebt       decimal.Decimal `json:"subscription_debt"`
	CommissionDebt         decimal.Decimal `json:"commission_debt"`
	Total                  decimal.Decimal `json:"total"`
	ShouldBlock            bool            `json:"should_block"`
	UnpaidAppointmentCount int             `json:"unpaid_appointment_count"`
}

// expired treats a missing expiry as already lapsed.
func expired(at *time.Time, now time.Time) bool {
	return at == nil || !at.After(now)
}

// SubscriptionLapsed reports whether both trial and subscription are over.
func SubscriptionLapsed(acct *doctors.Account, now time.Time) bool {
	return expired(acct.TrialExpiresAt, now) && expired(acct.SubscriptionExpiresAt, now)
}

// ComputeDebt combines account state with the overdue commission summary.
// overdue must cover appointments through the end of the previous month.
func ComputeDebt(acct *doctors.Account, overdue commission.Summary, now time.Time, policy Policy) DebtBreakdown {
	debt := DebtBreakdown{
		SubscriptionDebt: decimal.Zero,
		CommissionDebt:   money.Whole(overdue.TotalUnpaid),
	}
	if SubscriptionLapsed(acct, now) || acct.IsManuallyDeactivated {
		debt.SubscriptionDebt = policy.SubscriptionFee
	}
	debt.UnpaidAppointmentCount = overdue.UnpaidCount
	debt.Total = debt.SubscriptionDebt.Add(debt.CommissionDebt)

	dayOfMonth := now.In(policy.location()).Day()
	debt.ShouldBlock = debt.SubscriptionDebt.IsPositive() ||
		(dayOfMonth > policy.GraceDays && debt.CommissionDebt.IsPositive())
	return debt
}

// Calculator reads overdue commission and applies ComputeDebt.
type Calculator struct {
	ledger *commission.Ledger
	policy Policy
	now    func() time.Time
}

func NewCalculator(ledger *commission.Ledger, policy Policy) *Calculator {
	if ledger == nil {
		panic("access: commission ledger required")
	}
	return &Calculator{ledger: ledger, policy: policy, now: time.Now}
}

// WithClock overrides the time source.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	if now != nil {
		c.now = now
	}
	return c
}

// Policy returns the billing constants in use.
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Now returns the calculator's current time.
func (c *Calculator) Now() time.Time {
	return c.now()
}

// Today is the current calendar day in the policy location.
func (c *Calculator) Today() time.Time {
	return calendar.Today(c.now(), c.policy.location())
}

// DebtFor evaluates acct against the current time.
func (c *Calculator) DebtFor(ctx context.Context, acct *doctors.Account) (DebtBreakdown, error) {
	return c.DebtAt(ctx, acct, c.now())
}

// DebtAt evaluates acct as of now.
func (c *Calculator) DebtAt(ctx context.Context, acct *doctors.Account, now time.Time) (DebtBreakdown, error) {
	today := calendar.Today(now, c.policy.location())
	overdue, err := c.ledger.CommissionFor(ctx, acct.ID, acct.ConsultationFee, commission.ThroughEndOfPreviousMonth(today))
	if err != nil {
		return DebtBreakdown{}, fmt.Errorf("access: overdue commission: %w", err)
	}
	return ComputeDebt(acct, overdue, now, c.policy), nil
}
