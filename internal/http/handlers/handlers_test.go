package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/doctor-booking-engine/internal/access"
	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/booking"
	"github.com/wolfman30/doctor-booking-engine/internal/commission"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/http/middleware"
	"github.com/wolfman30/doctor-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/doctor-booking-engine/internal/renewal"
	"github.com/wolfman30/doctor-booking-engine/internal/subscriptions"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

func TestWriteBookingErrorStatuses(t *testing.T) {
	h := NewBookingHandler(BookingHandlerConfig{Logger: logging.New("error")})

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrapped: %w", booking.ErrSlotConflict), http.StatusConflict},
		{booking.ErrDoctorNotFound, http.StatusNotFound},
		{booking.ErrPatientNotFound, http.StatusNotFound},
		{&booking.GuestDetailsError{Field: "name"}, http.StatusBadRequest},
		{booking.ErrUnauthenticated, http.StatusUnauthorized},
		{booking.ErrSlotNotOffered, http.StatusBadRequest},
		{booking.ErrInvalidRequest, http.StatusBadRequest},
		{booking.ErrAppointmentNotFound, http.StatusNotFound},
		{booking.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{booking.ErrBusy, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeBookingError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := httptest.NewRecorder()
	h.writeBookingError(rec, &booking.GuestDetailsError{Field: "phone"})
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "guest.phone", resp.Field)

	rec = httptest.NewRecorder()
	h.writeBookingError(rec, booking.ErrBusy)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := decodeJSON(httptest.NewRecorder(), req, &dst)
	assert.EqualError(t, err, "request body required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "a", dst.Name)
}

func TestQueryDate(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := queryDate(req, "date", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	req = httptest.NewRequest(http.MethodGet, "/?date=2026-02-28", nil)
	got, err = queryDate(req, "date", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), got)

	req = httptest.NewRequest(http.MethodGet, "/?date=28-02-2026", nil)
	_, err = queryDate(req, "date", fallback)
	assert.Error(t, err)
}

type billingFixture struct {
	handler *BillingHandler
	doctors *doctors.MemoryStore
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	now := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	docs := doctors.NewMemoryStore()
	appts := appointments.NewMemoryStore()
	history := subscriptions.NewMemoryStore()
	outbox := events.NewMemoryOutbox()
	trial := now.AddDate(0, 0, 7)
	require.NoError(t, docs.Save(context.Background(), &doctors.Account{
		ID:              "doc-1",
		UserID:          "doctor-user",
		ConsultationFee: decimal.NewFromInt(100),
		TrialExpiresAt:  &trial,
	}))

	ledger := commission.NewLedger(appts, nil)
	calc := access.NewCalculator(ledger, access.DefaultPolicy()).WithClock(clock)
	wf := renewal.NewWorkflow(
		renewal.NewMemoryRepository(docs, appts, history, outbox),
		metrics.NewSchedulingMetrics(prometheus.NewRegistry()),
		nil,
	).WithClock(clock)

	return &billingFixture{
		doctors: docs,
		handler: NewBillingHandler(BillingHandlerConfig{
			Doctors:    docs,
			Calculator: calc,
			Ledger:     ledger,
			Workflow:   wf,
			History:    history,
			Logger:     logging.New("error"),
		}),
	}
}

func doctorRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	return req.WithContext(middleware.WithCallerID(req.Context(), "doctor-user"))
}

func TestUpdateSchedule(t *testing.T) {
	f := newBillingFixture(t)

	rec := httptest.NewRecorder()
	f.handler.UpdateSchedule(rec, doctorRequest(http.MethodPut,
		`{"slot_duration_minutes":20,"days":{"tuesday":{"enabled":true,"start_time":"10:00","end_time":"12:00"}}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	acct, err := f.doctors.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 20, acct.Schedule.SlotDurationMinutes)
	assert.Len(t, acct.Schedule.Days, 7)
	assert.True(t, acct.Schedule.Days["tuesday"].Enabled)

	rejected := map[string]string{
		"hours reversed":    `{"slot_duration_minutes":20,"days":{"monday":{"enabled":true,"start_time":"12:00","end_time":"10:00"}}}`,
		"negative duration": `{"slot_duration_minutes":-15,"days":{"monday":{"enabled":true,"start_time":"09:00","end_time":"10:00"}}}`,
		"missing duration":  `{"days":{"monday":{"enabled":true,"start_time":"09:00","end_time":"10:00"}}}`,
		"negative buffer":   `{"slot_duration_minutes":20,"buffer_minutes":-10,"days":{"monday":{"enabled":true,"start_time":"09:00","end_time":"10:00"}}}`,
	}
	for name, body := range rejected {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.handler.UpdateSchedule(rec, doctorRequest(http.MethodPut, body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "schedule", resp.Field)
		})
	}

	acct, err = f.doctors.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 20, acct.Schedule.SlotDurationMinutes, "rejected edits leave the saved schedule alone")
	assert.Equal(t, 0, acct.Schedule.BufferMinutes)
}

func TestCurrentDoctorRequiresProfile(t *testing.T) {
	f := newBillingFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Access(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithCallerID(req.Context(), "someone-else"))
	rec = httptest.NewRecorder()
	f.handler.Access(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitCommissionPaymentValidation(t *testing.T) {
	f := newBillingFixture(t)

	rec := httptest.NewRecorder()
	f.handler.SubmitCommissionPayment(rec, doctorRequest(http.MethodPost, `{"phone":"+20100","receipt_ref":"R-1","amount":"0"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.SubmitCommissionPayment(rec, doctorRequest(http.MethodPost, `{"phone":"+20100","receipt_ref":"R-1","amount":"45.50"}`))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	acct, err := f.doctors.FindByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, acct.CommissionPaymentRequest.Pending())
	assert.True(t, acct.CommissionPaymentRequest.Amount.Equal(decimal.RequireFromString("45.5")))
}
