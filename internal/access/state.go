package access

import (
	"context"
	"time"

	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
)

// State is the derived account state. It is never stored.
type State string

const (
	StateTrial       State = "trial"
	StateSubscribed  State = "subscribed"
	StateBlocked     State = "blocked"
	StatePaused      State = "paused"
	StateDeactivated State = "deactivated"
)

// States lists every state, for gauges.
var States = []State{StateTrial, StateSubscribed, StateBlocked, StatePaused, StateDeactivated}

// Decision is the full access evaluation for one doctor.
type Decision struct {
	DoctorID       string        `json:"doctor_id"`
	State          State         `json:"state"`
	Debt           DebtBreakdown `json:"debt"`
	HasValidAccess bool          `json:"has_valid_access"`
	SearchVisible  bool          `json:"search_visible"`
	EvaluatedAt    time.Time     `json:"evaluated_at"`
}

// Decide applies the access rules. Admin pause and deactivation win over any
// financial state.
func Decide(acct *doctors.Account, debt DebtBreakdown, now time.Time) Decision {
	d := Decision{
		DoctorID:    acct.ID,
		Debt:        debt,
		EvaluatedAt: now,
	}
	d.HasValidAccess = !acct.IsPaused && !acct.IsManuallyDeactivated && !debt.ShouldBlock
	d.SearchVisible = acct.ProfileComplete && d.HasValidAccess

	switch {
	case acct.IsManuallyDeactivated:
		d.State = StateDeactivated
	case acct.IsPaused:
		d.State = StatePaused
	case debt.ShouldBlock:
		d.State = StateBlocked
	case !expired(acct.SubscriptionExpiresAt, now):
		d.State = StateSubscribed
	default:
		d.State = StateTrial
	}
	return d
}

// Machine evaluates access for accounts.
type Machine struct {
	calc *Calculator
}

func NewMachine(calc *Calculator) *Machine {
	if calc == nil {
		panic("access: calculator required")
	}
	return &Machine{calc: calc}
}

// Evaluate computes the decision for acct at the current time.
func (m *Machine) Evaluate(ctx context.Context, acct *doctors.Account) (Decision, error) {
	now := m.calc.Now()
	debt, err := m.calc.DebtAt(ctx, acct, now)
	if err != nil {
		return Decision{}, err
	}
	return Decide(acct, debt, now), nil
}

// HasValidAccess reports whether acct may take bookings right now.
func (m *Machine) HasValidAccess(ctx context.Context, acct *doctors.Account) (bool, error) {
	d, err := m.Evaluate(ctx, acct)
	if err != nil {
		return false, err
	}
	return d.HasValidAccess, nil
}
