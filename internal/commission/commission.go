// Package commission computes the platform's cut of website bookings and
// what a doctor still owes for it.
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
)

// Rate is the fixed platform commission on website bookings.
var Rate = decimal.RequireFromString("0.15")

// ForBooking returns the commission recorded on a new appointment: the rate
// applied to the fee for website bookings, zero otherwise.
func ForBooking(fee decimal.Decimal, source appointments.Source) decimal.Decimal {
	if source != appointments.SourceWebsite {
		return decimal.Zero
	}
	return fee.Mul(Rate)
}

// Period is a half-open calendar-day range [From, To). A zero bound is open.
type Period struct {
	Name string
	From time.Time
	To   time.Time
}

// ThisMonth covers the current calendar month.
func ThisMonth(today time.Time) Period {
	start := calendar.MonthStart(today)
	return Period{Name: "this_month", From: start, To: start.AddDate(0, 1, 0)}
}

// PreviousMonth covers the calendar month before today's.
func PreviousMonth(today time.Time) Period {
	start := calendar.MonthStart(today)
	return Period{Name: "previous_month", From: start.AddDate(0, -1, 0), To: start}
}

// Lifetime covers every appointment.
func Lifetime() Period {
	return Period{Name: "lifetime"}
}

// ThroughEndOfPreviousMonth covers everything before the current month. This
// is the only period that counts toward blocking debt.
func ThroughEndOfPreviousMonth(today time.Time) Period {
	return Period{Name: "overdue", To: calendar.MonthStart(today)}
}

// ChargePolicy prices one commission-bearing appointment.
type ChargePolicy func(appt appointments.Appointment, currentFee decimal.Decimal) decimal.Decimal

// CurrentFeePolicy charges the rate on the doctor's current fee, regardless
// of what the fee was at visit time.
func CurrentFeePolicy(_ appointments.Appointment, currentFee decimal.Decimal) decimal.Decimal {
	return currentFee.Mul(Rate)
}

// BookedAmountPolicy charges the amount recorded on the appointment when it
// was booked.
func BookedAmountPolicy(appt appointments.Appointment, _ decimal.Decimal) decimal.Decimal {
	return appt.Commission.Amount
}

// Summary is the commission position for one period.
type Summary struct {
	Period      string          `json:"period"`
	Count       int             `json:"count"`
	UnpaidCount int             `json:"unpaid_count"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	TotalUnpaid decimal.Decimal `json:"total_unpaid"`
}

// Ledger reads appointment history to compute commission.
type Ledger struct {
	store  appointments.Store
	policy ChargePolicy
}

// NewLedger builds a ledger. A nil policy means CurrentFeePolicy.
func NewLedger(store appointments.Store, policy ChargePolicy) *Ledger {
	if store == nil {
		panic("commission: appointment store required")
	}
	if policy == nil {
		policy = CurrentFeePolicy
	}
	return &Ledger{store: store, policy: policy}
}

// CommissionFor sums commission for doctorID's website/attended appointments
// in period. fee is the doctor's current consultation fee.
func (l *Ledger) CommissionFor(ctx context.Context, doctorID string, fee decimal.Decimal, period Period) (Summary, error) {
	appts, err := l.store.Find(ctx, appointments.Filter{
		DoctorID: doctorID,
		Source:   appointments.SourceWebsite,
		Statuses: []appointments.Status{appointments.StatusAttended},
		DateFrom: period.From,
		DateTo:   period.To,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("commission: load appointments: %w", err)
	}
	return Summarize(period.Name, appts, fee, l.policy), nil
}

// Summarize folds appointments into a Summary. Appointments that do not bear
// commission are ignored.
func Summarize(name string, appts []appointments.Appointment, fee decimal.Decimal, policy ChargePolicy) Summary {
	if policy == nil {
		policy = CurrentFeePolicy
	}
	sum := Summary{Period: name, TotalOwed: decimal.Zero, TotalUnpaid: decimal.Zero}
	for _, appt := range appts {
		if !appt.CommissionBearing() {
			continue
		}
		charge := policy(appt, fee)
		sum.Count++
		sum.TotalOwed = sum.TotalOwed.Add(charge)
		if !appt.Commission.Paid {
			sum.UnpaidCount++
			sum.TotalUnpaid = sum.TotalUnpaid.Add(charge)
		}
	}
	return sum
}

// Dashboard is the per-period view shown to a doctor.
type Dashboard struct {
	ThisMonth     Summary `json:"this_month"`
	PreviousMonth Summary `json:"previous_month"`
	Lifetime      Summary `json:"lifetime"`
	Overdue       Summary `json:"overdue"`
}

// Dashboard computes all periods from a single read of the history.
func (l *Ledger) Dashboard(ctx context.Context, doctorID string, fee decimal.Decimal, today time.Time) (Dashboard, error) {
	appts, err := l.store.Find(ctx, appointments.Filter{
		DoctorID: doctorID,
		Source:   appointments.SourceWebsite,
		Statuses: []appointments.Status{appointments.StatusAttended},
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("commission: load appointments: %w", err)
	}
	within := func(p Period) []appointments.Appointment {
		out := make([]appointments.Appointment, 0, len(appts))
		for _, a := range appts {
			if !p.From.IsZero() && a.Date.Before(p.From) {
				continue
			}
			if !p.To.IsZero() && !a.Date.Before(p.To) {
				continue
			}
			out = append(out, a)
		}
		return out
	}
	periods := []Period{ThisMonth(today), PreviousMonth(today), Lifetime(), ThroughEndOfPreviousMonth(today)}
	sums := make([]Summary, len(periods))
	for i, p := range periods {
		sums[i] = Summarize(p.Name, within(p), fee, l.policy)
	}
	return Dashboard{ThisMonth: sums[0], PreviousMonth: sums[1], Lifetime: sums[2], Overdue: sums[3]}, nil
}
