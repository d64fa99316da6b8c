// Package booking turns booking requests into committed appointments without
// ever double-booking a doctor's slot.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/availability"
	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
	"github.com/wolfman30/doctor-booking-engine/internal/commission"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/doctor-booking-engine/internal/schedule"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

var bookingTracer = otel.Tracer("booking.internal.booking")

// Request is one attempt to book a slot.
type Request struct {
	DoctorID string
	Date     time.Time
	Time     string
	Source   appointments.Source
	// CallerID is the authenticated user id, empty for anonymous callers.
	CallerID string
	Guest    *GuestDetails
	// Phone is saved on the caller's profile if it has none.
	Phone string
}

// Resolver validates and commits bookings. Check and insert run under a
// per-doctor lock, and the store's uniqueness guarantee backs it up.
type Resolver struct {
	index     *availability.Index
	appts     appointments.Store
	doctors   doctors.Store
	identity  *IdentityResolver
	locker    Locker
	publisher events.Publisher
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// Deps groups the resolver's collaborators. Locker, Publisher and Metrics
// are optional.
type Deps struct {
	Index     *availability.Index
	Store     appointments.Store
	Doctors   doctors.Store
	Identity  *IdentityResolver
	Locker    Locker
	Publisher events.Publisher
	Metrics   *metrics.SchedulingMetrics
	Logger    *logging.Logger
}

func NewResolver(deps Deps) *Resolver {
	if deps.Index == nil || deps.Store == nil || deps.Doctors == nil || deps.Identity == nil {
		panic("booking: index, appointment store, doctor store and identity resolver are required")
	}
	if deps.Locker == nil {
		deps.Locker = NewKeyedMutex()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Resolver{
		index:     deps.Index,
		appts:     deps.Store,
		doctors:   deps.Doctors,
		identity:  deps.Identity,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Component("booking"),
		now:       time.Now,
	}
}

// WithClock overrides the time source used for event timestamps.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	if now != nil {
		r.now = now
	}
	return r
}

// Book commits req as a pending appointment or returns one of the package
// errors. Nothing is written when an error is returned.
func (r *Resolver) Book(ctx context.Context, req Request) (*appointments.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID),
		attribute.String("booking.source", string(req.Source)),
	)

	started := time.Now()
	appt, err := r.book(ctx, req)
	outcome := outcomeOf(err)
	r.metrics.ObserveBooking(string(req.Source), outcome, time.Since(started).Seconds())
	span.SetAttributes(attribute.String("booking.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return appt, nil
}

func (r *Resolver) book(ctx context.Context, req Request) (*appointments.Appointment, error) {
	if req.Source == "" {
		req.Source = appointments.SourceWebsite
	}
	if req.DoctorID == "" || req.Date.IsZero() || !req.Source.Valid() {
		return nil, ErrInvalidRequest
	}
	clock, err := calendar.NormalizeClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	day := calendar.Day(req.Date)

	release, err := r.locker.Lock(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	defer release()

	booked, err := r.index.IsBooked(ctx, req.DoctorID, day, clock)
	if err != nil {
		return nil, err
	}
	if booked {
		return nil, ErrSlotConflict
	}

	doctor, err := r.doctors.FindByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, doctors.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("booking: load doctor: %w", err)
	}
	if req.Source == appointments.SourceWebsite && !offered(doctor.Schedule, day, clock) {
		return nil, ErrSlotNotOffered
	}

	identity, err := r.identity.Resolve(ctx, req.CallerID, req.Guest, req.Phone)
	if err != nil {
		return nil, err
	}

	appt := &appointments.Appointment{
		DoctorID: req.DoctorID,
		Date:     day,
		Time:     clock,
		Status:   appointments.StatusPending,
		Source:   req.Source,
		Patient:  identity.PatientRef(),
		Commission: appointments.Commission{
			Amount: commission.ForBooking(doctor.ConsultationFee, req.Source),
		},
	}
	if err := r.appts.Insert(ctx, appt); err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("booking: insert appointment: %w", err)
	}

	r.afterCommit(ctx, appt, identity)
	return appt, nil
}

// afterCommit runs follow-ups that must not undo a committed booking.
func (r *Resolver) afterCommit(ctx context.Context, appt *appointments.Appointment, identity Identity) {
	r.index.Invalidate(ctx, appt.DoctorID)

	if err := r.identity.ApplyProfileUpdates(ctx, identity); err != nil {
		r.logger.Warn("caller phone not saved", "user_id", identity.UserID, "error", err)
	}

	if r.publisher != nil {
		evt := events.AppointmentBookedV1{
			AppointmentID:    appt.ID,
			DoctorID:         appt.DoctorID,
			Date:             calendar.FormatDate(appt.Date),
			Time:             appt.Time,
			Source:           string(appt.Source),
			PatientKind:      string(identity.Kind),
			PatientUserID:    identity.UserID,
			CommissionAmount: appt.Commission.Amount.StringFixed(2),
			BookedAt:         r.now().UTC(),
		}
		if err := r.publisher.Publish(ctx, events.DoctorAggregate(appt.DoctorID), evt); err != nil {
			r.logger.Warn("publish booking event failed", "appointment_id", appt.ID, "error", err)
		}
	}

	r.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", calendar.FormatDate(appt.Date),
		"time", appt.Time,
		"source", appt.Source,
		"patient_kind", identity.Kind,
	)
}

// offered reports whether the schedule generates clock on day.
func offered(cfg schedule.WeeklyConfig, day time.Time, clock string) bool {
	for _, slot := range schedule.Generate(cfg, day) {
		if slot == clock {
			return true
		}
	}
	return false
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, ErrInvalidGuestDetails):
		return "invalid_guest_details"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrSlotNotOffered):
		return "invalid_request"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
