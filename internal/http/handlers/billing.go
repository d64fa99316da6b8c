package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/doctor-booking-engine/internal/access"
	"github.com/wolfman30/doctor-booking-engine/internal/commission"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/http/middleware"
	"github.com/wolfman30/doctor-booking-engine/internal/renewal"
	"github.com/wolfman30/doctor-booking-engine/internal/schedule"
	"github.com/wolfman30/doctor-booking-engine/internal/subscriptions"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// BillingHandler serves the doctor's access, commission and payment request
// endpoints, and the admin approval endpoints.
type BillingHandler struct {
	doctors  doctors.Store
	machine  *access.Machine
	calc     *access.Calculator
	ledger   *commission.Ledger
	workflow *renewal.Workflow
	history  subscriptions.Store
	logger   *logging.Logger
}

// BillingHandlerConfig wires a BillingHandler.
type BillingHandlerConfig struct {
	Doctors    doctors.Store
	Calculator *access.Calculator
	Ledger     *commission.Ledger
	Workflow   *renewal.Workflow
	History    subscriptions.Store
	Logger     *logging.Logger
}

func NewBillingHandler(cfg BillingHandlerConfig) *BillingHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &BillingHandler{
		doctors:  cfg.Doctors,
		machine:  access.NewMachine(cfg.Calculator),
		calc:     cfg.Calculator,
		ledger:   cfg.Ledger,
		workflow: cfg.Workflow,
		history:  cfg.History,
		logger:   cfg.Logger,
	}
}

// Access returns the signed-in doctor's access decision and debt.
// GET /doctors/me/access
func (h *BillingHandler) Access(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	h.writeDecision(w, r, doctor)
}

func (h *BillingHandler) writeDecision(w http.ResponseWriter, r *http.Request, doctor *doctors.Account) {
	decision, err := h.machine.Evaluate(r.Context(), doctor)
	if err != nil {
		h.logger.Error("access evaluation failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// CommissionDashboard returns this month, previous month, lifetime and
// overdue commission for the signed-in doctor.
// GET /doctors/me/commission
func (h *BillingHandler) CommissionDashboard(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	dash, err := h.ledger.Dashboard(r.Context(), doctor.ID, doctor.ConsultationFee, h.calc.Today())
	if err != nil {
		h.logger.Error("commission dashboard failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// UpdateSchedule replaces the signed-in doctor's weekly schedule.
// PUT /doctors/me/schedule
func (h *BillingHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	var cfg schedule.WeeklyConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "schedule"})
		return
	}
	cfg = cfg.Normalize()
	updated, err := h.doctors.Update(r.Context(), doctor.ID, func(acct *doctors.Account) error {
		acct.Schedule = cfg
		return nil
	})
	if err != nil {
		h.logger.Error("schedule update failed", "doctor_id", doctor.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated.Schedule)
}

// SubmitRenewal records a pending renewal request.
// POST /doctors/me/renewal-request
func (h *BillingHandler) SubmitRenewal(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	var body renewal.RenewalSubmission
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	acct, err := h.workflow.SubmitRenewal(r.Context(), doctor.ID, body)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acct.RenewalRequest)
}

// SubmitCommissionPayment records a pending commission payment request.
// POST /doctors/me/commission-payment-request
func (h *BillingHandler) SubmitCommissionPayment(w http.ResponseWriter, r *http.Request) {
	doctor, ok := currentDoctor(w, r, h.doctors)
	if !ok {
		return
	}
	var body renewal.CommissionSubmission
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	acct, err := h.workflow.SubmitCommissionPayment(r.Context(), doctor.ID, body)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acct.CommissionPaymentRequest)
}

// RenewalApprovalResponse is returned after a renewal is approved.
type RenewalApprovalResponse struct {
	DoctorID              string               `json:"doctor_id"`
	SubscriptionExpiresAt time.Time            `json:"subscription_expires_at"`
	Record                subscriptions.Record `json:"record"`
}

// ApproveRenewal approves the doctor's pending renewal.
// POST /admin/doctors/{doctorID}/renewal/approve
func (h *BillingHandler) ApproveRenewal(w http.ResponseWriter, r *http.Request) {
	res, err := h.workflow.ApproveRenewal(r.Context(), chi.URLParam(r, "doctorID"), middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RenewalApprovalResponse{
		DoctorID:              res.Account.ID,
		SubscriptionExpiresAt: res.Record.EndDate,
		Record:                res.Record,
	})
}

// ApproveCommissionPayment approves the doctor's pending commission payment
// and settles every unpaid commission charge.
// POST /admin/doctors/{doctorID}/commission-payment/approve
func (h *BillingHandler) ApproveCommissionPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.workflow.ApproveCommissionPayment(r.Context(), chi.URLParam(r, "doctorID"), middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor_id":     res.Account.ID,
		"settled_count": res.Settled,
		"request":       res.Account.CommissionPaymentRequest,
	})
}

// ToggleRequest is the body of the admin pause and deactivation endpoints.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetPaused toggles the admin pause.
// PUT /admin/doctors/{doctorID}/pause
func (h *BillingHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.workflow.SetPaused)
}

// SetDeactivated toggles manual deactivation.
// PUT /admin/doctors/{doctorID}/deactivation
func (h *BillingHandler) SetDeactivated(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.workflow.SetDeactivated)
}

func (h *BillingHandler) toggle(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, bool, string) (*doctors.Account, error)) {
	var body ToggleRequest
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "enabled is required", Field: "enabled"})
		return
	}
	acct, err := apply(r.Context(), chi.URLParam(r, "doctorID"), *body.Enabled, middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeDecision(w, r, acct)
}

// DoctorAccess evaluates any doctor's access for admins.
// GET /admin/doctors/{doctorID}/access
func (h *BillingHandler) DoctorAccess(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.doctors.FindByID(r.Context(), chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeDecision(w, r, doctor)
}

// Subscriptions lists a doctor's settled renewal periods.
// GET /admin/doctors/{doctorID}/subscriptions
func (h *BillingHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if _, err := h.doctors.FindByID(r.Context(), doctorID); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	records, err := h.history.ListByDoctor(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("list subscriptions failed", "doctor_id", doctorID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []subscriptions.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "subscriptions": records})
}

func (h *BillingHandler) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, renewal.ErrRequestNotFound):
		jsonError(w, "no pending request", http.StatusNotFound)
	case errors.Is(err, renewal.ErrDoctorNotFound), errors.Is(err, doctors.ErrNotFound):
		jsonError(w, "doctor not found", http.StatusNotFound)
	case errors.Is(err, renewal.ErrInvalidSubmission):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("billing request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
