package booking

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
)

// ChangeStatus moves one of doctorID's appointments to status. Cancelled
// appointments are final, and cancelling frees the slot for a new booking.
func (r *Resolver) ChangeStatus(ctx context.Context, doctorID, appointmentID string, status appointments.Status) (*appointments.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.change_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.doctor_id", doctorID),
		attribute.String("booking.status", string(status)),
	)

	if !status.Valid() {
		return nil, ErrInvalidTransition
	}
	appt, err := r.appts.UpdateStatus(ctx, doctorID, appointmentID, status)
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		return nil, ErrAppointmentNotFound
	case errors.Is(err, appointments.ErrInvalidStatus):
		return nil, ErrInvalidTransition
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("booking: update status: %w", err)
	}

	r.index.Invalidate(ctx, doctorID)
	if r.publisher != nil {
		evt := events.AppointmentStatusChangedV1{
			AppointmentID: appt.ID,
			DoctorID:      appt.DoctorID,
			Status:        string(appt.Status),
			ChangedAt:     r.now().UTC(),
		}
		if err := r.publisher.Publish(ctx, events.DoctorAggregate(doctorID), evt); err != nil {
			r.logger.Warn("publish status event failed", "appointment_id", appt.ID, "error", err)
		}
	}
	r.logger.Info("appointment status changed", "appointment_id", appt.ID, "doctor_id", doctorID, "status", appt.Status)
	return appt, nil
}
