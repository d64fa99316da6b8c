package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/availability"
	"github.com/wolfman30/doctor-booking-engine/internal/booking"
	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/http/middleware"
	"github.com/wolfman30/doctor-booking-engine/internal/users"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// BookingHandler serves slot browsing, booking and the doctor's appointment
// list.
type BookingHandler struct {
	resolver    *booking.Resolver
	index       *availability.Index
	doctors     doctors.Store
	appts       appointments.Store
	users       users.Store
	horizonDays int
	logger      *logging.Logger
}

// BookingHandlerConfig wires a BookingHandler.
type BookingHandlerConfig struct {
	Resolver     *booking.Resolver
	Index        *availability.Index
	Doctors      doctors.Store
	Appointments appointments.Store
	Users        users.Store
	// HorizonDays bounds the first-available scan. Defaults to 30.
	HorizonDays int
	Logger      *logging.Logger
}

func NewBookingHandler(cfg BookingHandlerConfig) *BookingHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	return &BookingHandler{
		resolver:    cfg.Resolver,
		index:       cfg.Index,
		doctors:     cfg.Doctors,
		appts:       cfg.Appointments,
		users:       cfg.Users,
		horizonDays: cfg.HorizonDays,
		logger:      cfg.Logger,
	}
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	DoctorID string                `json:"doctor_id"`
	Date     string                `json:"date"`
	Time     string                `json:"time"`
	Source   string                `json:"source,omitempty"`
	Guest    *booking.GuestDetails `json:"guest,omitempty"`
	Phone    string                `json:"phone,omitempty"`
}

// PatientResponse describes who an appointment is for.
type PatientResponse struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Guest  bool   `json:"guest"`
}

// CommissionResponse is the platform's cut recorded at booking time.
type CommissionResponse struct {
	Amount string `json:"amount"`
	Paid   bool   `json:"paid"`
}

// AppointmentResponse represents an appointment in API responses.
type AppointmentResponse struct {
	ID         string             `json:"id"`
	DoctorID   string             `json:"doctor_id"`
	Date       string             `json:"date"`
	Time       string             `json:"time"`
	Status     string             `json:"status"`
	Source     string             `json:"source"`
	Patient    PatientResponse    `json:"patient"`
	Commission CommissionResponse `json:"commission"`
	CreatedAt  string             `json:"created_at"`
}

func toAppointmentResponse(a *appointments.Appointment, names map[string]users.User) AppointmentResponse {
	patient := PatientResponse{UserID: a.Patient.UserID, Guest: a.Patient.IsGuest()}
	if a.Patient.Guest != nil {
		patient.Name = a.Patient.Guest.Name
		patient.Phone = a.Patient.Guest.Phone
	} else if u, ok := names[a.Patient.UserID]; ok {
		patient.Name = u.Name
		patient.Phone = u.Phone
	}
	return AppointmentResponse{
		ID:       a.ID,
		DoctorID: a.DoctorID,
		Date:     calendar.FormatDate(a.Date),
		Time:     a.Time,
		Status:   string(a.Status),
		Source:   string(a.Source),
		Patient:  patient,
		Commission: CommissionResponse{
			Amount: a.Commission.Amount.StringFixed(2),
			Paid:   a.Commission.Paid,
		},
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Book creates a pending appointment for the caller or a guest.
// POST /appointments
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var body BookRequest
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(strings.TrimSpace(body.Date))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "date must be YYYY-MM-DD", Field: "date"})
		return
	}

	doctorID := strings.TrimSpace(body.DoctorID)
	callerID := middleware.CallerIDFromContext(r.Context())
	source := appointments.Source(strings.TrimSpace(body.Source))
	if source == appointments.SourceDirect {
		owns, err := h.ownsDoctor(r.Context(), callerID, doctorID)
		if err != nil {
			h.logger.Error("direct booking owner check failed", "doctor_id", doctorID, "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !owns {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "only the doctor can record direct bookings", Field: "source"})
			return
		}
	}

	appt, err := h.resolver.Book(r.Context(), booking.Request{
		DoctorID: doctorID,
		Date:     date,
		Time:     strings.TrimSpace(body.Time),
		Source:   source,
		CallerID: callerID,
		Guest:    body.Guest,
		Phone:    body.Phone,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, nil))
}

// ownsDoctor reports whether callerID is the user behind doctorID.
func (h *BookingHandler) ownsDoctor(ctx context.Context, callerID, doctorID string) (bool, error) {
	if strings.TrimSpace(callerID) == "" || doctorID == "" {
		return false, nil
	}
	acct, err := h.doctors.FindByUser(ctx, callerID)
	if errors.Is(err, doctors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.ID == doctorID, nil
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var guestErr *booking.GuestDetailsError
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		jsonError(w, "slot already booked, pick another time", http.StatusConflict)
	case errors.Is(err, booking.ErrDoctorNotFound):
		jsonError(w, "doctor not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrPatientNotFound):
		jsonError(w, "patient not found", http.StatusNotFound)
	case errors.As(err, &guestErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "guest " + guestErr.Field + " is required", Field: "guest." + guestErr.Field})
	case errors.Is(err, booking.ErrUnauthenticated):
		jsonError(w, "sign in or provide guest details", http.StatusUnauthorized)
	case errors.Is(err, booking.ErrSlotNotOffered):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "time is not offered on that day", Field: "time"})
	case errors.Is(err, booking.ErrInvalidRequest):
		jsonError(w, "invalid booking request", http.StatusBadRequest)
	case errors.Is(err, booking.ErrAppointmentNotFound):
		jsonError(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidTransition):
		jsonError(w, "status change not allowed", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrBusy):
		w.Header().Set("Retry-After", "1")
		jsonError(w, "calendar busy, retry", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// DaySlotsResponse lists one day's generated slots.
type DaySlotsResponse struct {
	DoctorID string              `json:"doctor_id"`
	Date     string              `json:"date"`
	Slots    []availability.Slot `json:"slots"`
}

// DaySlots lists every slot the doctor's schedule generates for a day.
// GET /doctors/{doctorID}/slots?date=YYYY-MM-DD
func (h *BookingHandler) DaySlots(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.loadDoctor(w, r)
	if !ok {
		return
	}
	date, err := queryDate(r, "date", h.index.Today())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "date must be YYYY-MM-DD", Field: "date"})
		return
	}
	slots, err := h.index.DaySlots(r.Context(), doctor.ID, doctor.Schedule.Normalize(), date)
	if err != nil {
		h.logger.Error("list day slots failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, DaySlotsResponse{DoctorID: doctor.ID, Date: calendar.FormatDate(date), Slots: slots})
}

// FirstAvailableResponse is the earliest free slot, if any.
type FirstAvailableResponse struct {
	DoctorID  string             `json:"doctor_id"`
	Available bool               `json:"available"`
	Slot      *availability.Slot `json:"slot,omitempty"`
}

// FirstAvailable finds the earliest free slot from now.
// GET /doctors/{doctorID}/slots/first-available
func (h *BookingHandler) FirstAvailable(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.loadDoctor(w, r)
	if !ok {
		return
	}
	slot, found, err := h.index.FirstAvailable(r.Context(), doctor.ID, doctor.Schedule.Normalize(), h.horizonDays)
	if err != nil {
		h.logger.Error("first available failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := FirstAvailableResponse{DoctorID: doctor.ID, Available: found}
	if found {
		resp.Slot = &slot
	}
	writeJSON(w, http.StatusOK, resp)
}

// BookedSlots returns the doctor's upcoming booked slots for calendar
// rendering.
// GET /doctors/{doctorID}/booked-slots
func (h *BookingHandler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.loadDoctor(w, r)
	if !ok {
		return
	}
	slots, err := h.index.BookedSlots(r.Context(), doctor.ID)
	if err != nil {
		h.logger.Error("booked slots failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctor.ID, "booked": slots})
}

// ListMine lists the signed-in doctor's appointments.
// GET /doctors/me/appointments?from=&to=&status=
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	filter := appointments.Filter{DoctorID: doctor.ID}
	var err error
	if filter.DateFrom, err = queryDate(r, "from", time.Time{}); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "from must be YYYY-MM-DD", Field: "from"})
		return
	}
	if filter.DateTo, err = queryDate(r, "to", time.Time{}); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "to must be YYYY-MM-DD", Field: "to"})
		return
	}
	for _, s := range r.URL.Query()["status"] {
		status := appointments.Status(s)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown status " + s, Field: "status"})
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	list, err := h.appts.Find(r.Context(), filter)
	if err != nil {
		h.logger.Error("list appointments failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	names := h.patientNames(r.Context(), list)
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i], names))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func (h *BookingHandler) patientNames(ctx context.Context, list []appointments.Appointment) map[string]users.User {
	if h.users == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(list))
	for _, a := range list {
		if a.Patient.UserID == "" {
			continue
		}
		if _, ok := seen[a.Patient.UserID]; ok {
			continue
		}
		seen[a.Patient.UserID] = struct{}{}
		ids = append(ids, a.Patient.UserID)
	}
	if len(ids) == 0 {
		return nil
	}
	names, err := h.users.FindByIDs(ctx, ids)
	if err != nil {
		h.logger.Warn("patient lookup failed", "error", err)
		return nil
	}
	return names
}

// StatusUpdateRequest is the body of PATCH /doctors/me/appointments/{id}.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves one of the signed-in doctor's appointments through its
// lifecycle.
// PATCH /doctors/me/appointments/{appointmentID}
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	var body StatusUpdateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	appt, err := h.resolver.ChangeStatus(r.Context(), doctor.ID, chi.URLParam(r, "appointmentID"), appointments.Status(strings.TrimSpace(body.Status)))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, nil))
}

func (h *BookingHandler) loadDoctor(w http.ResponseWriter, r *http.Request) (*doctors.Account, bool) {
	id := chi.URLParam(r, "doctorID")
	if id == "" {
		jsonError(w, "missing doctorID", http.StatusBadRequest)
		return nil, false
	}
	doctor, err := h.doctors.FindByID(r.Context(), id)
	if errors.Is(err, doctors.ErrNotFound) {
		jsonError(w, "doctor not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("load doctor failed", "doctor_id", id, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return doctor, true
}

// currentDoctor resolves the doctor account owned by the signed-in caller.
func currentDoctor(w http.ResponseWriter, r *http.Request, store doctors.Store) (*doctors.Account, bool) {
	userID := middleware.CallerIDFromContext(r.Context())
	if userID == "" {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	doctor, err := store.FindByUser(r.Context(), userID)
	if errors.Is(err, doctors.ErrNotFound) {
		jsonError(w, "no doctor profile for this account", http.StatusForbidden)
		return nil, false
	}
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return doctor, true
}
