package commission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
)

var today = time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store appointments.Store, date time.Time, at string, source appointments.Source, status appointments.Status, booked decimal.Decimal, paid bool) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &appointments.Appointment{
		DoctorID:   "doc-1",
		Date:       date,
		Time:       at,
		Status:     status,
		Source:     source,
		Patient:    appointments.PatientRef{UserID: "u-1"},
		Commission: appointments.Commission{Amount: booked, Paid: paid},
	}))
}

func TestForBooking(t *testing.T) {
	fee := decimal.NewFromInt(200)
	assert.True(t, ForBooking(fee, appointments.SourceWebsite).Equal(decimal.NewFromInt(30)))
	assert.True(t, ForBooking(fee, appointments.SourceDirect).IsZero())
}

func TestPeriods(t *testing.T) {
	this := ThisMonth(today)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), this.From)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), this.To)

	prev := PreviousMonth(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), prev.From)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), prev.To)

	overdue := ThroughEndOfPreviousMonth(today)
	assert.True(t, overdue.From.IsZero())
	assert.Equal(t, this.From, overdue.To)
}

func TestCommissionForOnlyCountsWebsiteAttended(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	lastMonth := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	thirty := decimal.NewFromInt(30)

	seed(t, store, lastMonth, "09:00", appointments.SourceWebsite, appointments.StatusAttended, thirty, false)
	seed(t, store, lastMonth, "09:30", appointments.SourceWebsite, appointments.StatusAttended, thirty, true)
	seed(t, store, lastMonth, "10:00", appointments.SourceDirect, appointments.StatusAttended, decimal.Zero, false)
	seed(t, store, lastMonth, "10:30", appointments.SourceWebsite, appointments.StatusNoShow, thirty, false)
	seed(t, store, today, "09:00", appointments.SourceWebsite, appointments.StatusAttended, thirty, false)

	ledger := NewLedger(store, nil)
	// Current fee differs from the fee at booking time.
	fee := decimal.NewFromInt(300)

	overdue, err := ledger.CommissionFor(ctx, "doc-1", fee, ThroughEndOfPreviousMonth(today))
	require.NoError(t, err)
	assert.Equal(t, 2, overdue.Count)
	assert.Equal(t, 1, overdue.UnpaidCount)
	assert.Equal(t, "90", overdue.TotalOwed.String())
	assert.Equal(t, "45", overdue.TotalUnpaid.String())

	lifetime, err := ledger.CommissionFor(ctx, "doc-1", fee, Lifetime())
	require.NoError(t, err)
	assert.Equal(t, 3, lifetime.Count)
	assert.Equal(t, 2, lifetime.UnpaidCount)
}

func TestBookedAmountPolicyUsesStoredCommission(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	seed(t, store, today, "09:00", appointments.SourceWebsite, appointments.StatusAttended, decimal.NewFromInt(30), false)

	ledger := NewLedger(store, BookedAmountPolicy)
	sum, err := ledger.CommissionFor(ctx, "doc-1", decimal.NewFromInt(1000), ThisMonth(today))
	require.NoError(t, err)
	assert.Equal(t, "30", sum.TotalUnpaid.String())
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	thirty := decimal.NewFromInt(30)
	seed(t, store, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), "09:00", appointments.SourceWebsite, appointments.StatusAttended, thirty, true)
	seed(t, store, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), "09:00", appointments.SourceWebsite, appointments.StatusAttended, thirty, false)
	seed(t, store, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), "09:00", appointments.SourceWebsite, appointments.StatusAttended, thirty, false)

	dash, err := NewLedger(store, nil).Dashboard(ctx, "doc-1", decimal.NewFromInt(200), today)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.ThisMonth.Count)
	assert.Equal(t, 1, dash.PreviousMonth.UnpaidCount)
	assert.Equal(t, 3, dash.Lifetime.Count)
	assert.Equal(t, "90", dash.Lifetime.TotalOwed.String())
	assert.Equal(t, 2, dash.Overdue.Count)
	assert.Equal(t, "30", dash.Overdue.TotalUnpaid.String())
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize("lifetime", nil, decimal.NewFromInt(100), nil)
	assert.Zero(t, sum.Count)
	assert.True(t, sum.TotalOwed.IsZero())
}
