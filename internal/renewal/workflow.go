// Package renewal runs the doctor payment requests: subscription renewals and
// commission payments are submitted by the doctor and approved by an admin.
// Every approval is applied as one transaction so access checks never see a
// half-applied approval.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/doctor-booking-engine/internal/subscriptions"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

var renewalTracer = otel.Tracer("booking.internal.renewal")

const (
	kindRenewal    = "renewal"
	kindCommission = "commission_payment"

	// DefaultPeriodDays is how far one approved renewal extends a subscription.
	DefaultPeriodDays = 30
)

// Tx is the unit of work handed to an approval. Doctor returns the locked
// account; changes made to it are written when the transaction commits.
type Tx interface {
	Doctor() *doctors.Account
	SettleCommissions(ctx context.Context) (int64, error)
	AppendHistory(ctx context.Context, rec *subscriptions.Record) error
	Publish(ctx context.Context, evt events.Event) error
}

// Repository runs fn against one doctor inside a transaction. If fn returns
// an error nothing fn did is kept.
type Repository interface {
	WithDoctor(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) (*doctors.Account, error)
}

// RenewalSubmission is what a doctor sends after paying the subscription fee.
type RenewalSubmission struct {
	Phone      string `json:"phone"`
	ReceiptRef string `json:"receipt_ref"`
}

// CommissionSubmission is what a doctor sends after paying owed commission.
type CommissionSubmission struct {
	Phone      string          `json:"phone"`
	ReceiptRef string          `json:"receipt_ref"`
	Amount     decimal.Decimal `json:"amount"`
}

// RenewalResult is the outcome of an approved renewal.
type RenewalResult struct {
	Account *doctors.Account
	Record  subscriptions.Record
}

// SettlementResult is the outcome of an approved commission payment.
type SettlementResult struct {
	Account *doctors.Account
	Settled int64
}

// Workflow implements the submit and approve actions.
type Workflow struct {
	repo       Repository
	metrics    *metrics.SchedulingMetrics
	logger     *logging.Logger
	now        func() time.Time
	periodDays int
	settle     SettleFunc
}

// SettleFunc marks the doctor's commission charges as paid in tx and returns
// how many changed. The submitted request is passed in for future partial
// settlement; the default ignores it.
type SettleFunc func(ctx context.Context, tx Tx, req *doctors.CommissionPaymentRequest) (int64, error)

// SettleAll marks every unpaid commission-bearing appointment as paid,
// whatever amount the doctor submitted.
func SettleAll(ctx context.Context, tx Tx, _ *doctors.CommissionPaymentRequest) (int64, error) {
	return tx.SettleCommissions(ctx)
}

func NewWorkflow(repo Repository, m *metrics.SchedulingMetrics, logger *logging.Logger) *Workflow {
	if repo == nil {
		panic("renewal: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Workflow{
		repo:       repo,
		metrics:    m,
		logger:     logger.Component("renewal"),
		now:        time.Now,
		periodDays: DefaultPeriodDays,
		settle:     SettleAll,
	}
}

// WithClock overrides the time source.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	if now != nil {
		w.now = now
	}
	return w
}

// WithPeriodDays sets the renewal length.
func (w *Workflow) WithPeriodDays(days int) *Workflow {
	if days > 0 {
		w.periodDays = days
	}
	return w
}

// WithSettleFunc replaces the commission settlement rule.
func (w *Workflow) WithSettleFunc(fn SettleFunc) *Workflow {
	if fn != nil {
		w.settle = fn
	}
	return w
}

// SubmitRenewal stores a pending renewal request, replacing any earlier one.
func (w *Workflow) SubmitRenewal(ctx context.Context, doctorID string, sub RenewalSubmission) (*doctors.Account, error) {
	phone := strings.TrimSpace(sub.Phone)
	receipt := strings.TrimSpace(sub.ReceiptRef)
	if phone == "" || receipt == "" {
		return nil, fmt.Errorf("%w: phone and receipt_ref are required", ErrInvalidSubmission)
	}
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		tx.Doctor().RenewalRequest = &doctors.RenewalRequest{
			Status:      doctors.RequestPending,
			Phone:       phone,
			ReceiptRef:  receipt,
			SubmittedAt: w.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	w.logger.Info("renewal request submitted", "doctor_id", doctorID)
	return acct, nil
}

// SubmitCommissionPayment stores a pending commission payment request,
// replacing any earlier one. A renewal request may be pending at the same
// time.
func (w *Workflow) SubmitCommissionPayment(ctx context.Context, doctorID string, sub CommissionSubmission) (*doctors.Account, error) {
	phone := strings.TrimSpace(sub.Phone)
	receipt := strings.TrimSpace(sub.ReceiptRef)
	if phone == "" || receipt == "" {
		return nil, fmt.Errorf("%w: phone and receipt_ref are required", ErrInvalidSubmission)
	}
	if !sub.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidSubmission)
	}
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		tx.Doctor().CommissionPaymentRequest = &doctors.CommissionPaymentRequest{
			Status:      doctors.RequestPending,
			Phone:       phone,
			ReceiptRef:  receipt,
			Amount:      sub.Amount,
			SubmittedAt: w.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	w.logger.Info("commission payment request submitted", "doctor_id", doctorID, "amount", sub.Amount.StringFixed(2))
	return acct, nil
}

// ApproveRenewal extends the subscription by the renewal period counted from
// the later of now and the current expiry, lifts any pause or deactivation
// and records the period in the subscription history.
func (w *Workflow) ApproveRenewal(ctx context.Context, doctorID, adminID string) (*RenewalResult, error) {
	ctx, span := renewalTracer.Start(ctx, "renewal.approve_renewal")
	defer span.End()
	span.SetAttributes(attribute.String("renewal.doctor_id", doctorID))

	now := w.now().UTC()
	var record subscriptions.Record
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		acct := tx.Doctor()
		if !acct.RenewalRequest.Pending() {
			return ErrRequestNotFound
		}
		start, end := ExtendFrom(acct, now, w.periodDays)

		acct.SubscriptionExpiresAt = &end
		acct.IsPaused = false
		acct.IsManuallyDeactivated = false
		acct.RenewalRequest.Status = doctors.RequestApproved
		reviewed := now
		acct.RenewalRequest.ReviewedAt = &reviewed

		record = subscriptions.Record{
			DoctorID:     acct.ID,
			StartDate:    start,
			EndDate:      end,
			PaymentPhone: acct.RenewalRequest.Phone,
			ReceiptRef:   acct.RenewalRequest.ReceiptRef,
		}
		if err := tx.AppendHistory(ctx, &record); err != nil {
			return err
		}
		return tx.Publish(ctx, events.RenewalApprovedV1{
			DoctorID:     acct.ID,
			StartDate:    start,
			EndDate:      end,
			PaymentPhone: record.PaymentPhone,
			ApprovedBy:   adminID,
			ApprovedAt:   now,
		})
	})
	w.observe(span, kindRenewal, err)
	if err != nil {
		return nil, translate(err)
	}
	w.logger.Info("renewal approved",
		"doctor_id", doctorID,
		"admin_id", adminID,
		"subscription_expires_at", record.EndDate,
	)
	return &RenewalResult{Account: acct, Record: record}, nil
}

// ApproveCommissionPayment settles the doctor's commission charges and marks
// the request approved.
func (w *Workflow) ApproveCommissionPayment(ctx context.Context, doctorID, adminID string) (*SettlementResult, error) {
	ctx, span := renewalTracer.Start(ctx, "renewal.approve_commission_payment")
	defer span.End()
	span.SetAttributes(attribute.String("renewal.doctor_id", doctorID))

	now := w.now().UTC()
	var settled int64
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		acct := tx.Doctor()
		req := acct.CommissionPaymentRequest
		if !req.Pending() {
			return ErrRequestNotFound
		}
		n, err := w.settle(ctx, tx, req)
		if err != nil {
			return err
		}
		settled = n
		req.Status = doctors.RequestApproved
		reviewed := now
		req.ReviewedAt = &reviewed

		return tx.Publish(ctx, events.CommissionSettledV1{
			DoctorID:        acct.ID,
			SettledCount:    n,
			SubmittedAmount: req.Amount.StringFixed(2),
			ApprovedBy:      adminID,
			ApprovedAt:      now,
		})
	})
	w.observe(span, kindCommission, err)
	if err != nil {
		return nil, translate(err)
	}
	span.SetAttributes(attribute.Int64("renewal.settled", settled))
	w.logger.Info("commission payment approved", "doctor_id", doctorID, "admin_id", adminID, "settled", settled)
	return &SettlementResult{Account: acct, Settled: settled}, nil
}

// SetPaused toggles the admin pause flag.
func (w *Workflow) SetPaused(ctx context.Context, doctorID string, paused bool, adminID string) (*doctors.Account, error) {
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		tx.Doctor().IsPaused = paused
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	w.logger.Info("doctor pause updated", "doctor_id", doctorID, "admin_id", adminID, "paused", paused)
	return acct, nil
}

// SetDeactivated toggles manual deactivation.
func (w *Workflow) SetDeactivated(ctx context.Context, doctorID string, deactivated bool, adminID string) (*doctors.Account, error) {
	acct, err := w.repo.WithDoctor(ctx, doctorID, func(ctx context.Context, tx Tx) error {
		tx.Doctor().IsManuallyDeactivated = deactivated
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	w.logger.Info("doctor deactivation updated", "doctor_id", doctorID, "admin_id", adminID, "deactivated", deactivated)
	return acct, nil
}

// ExtendFrom returns the next subscription period for acct. The period starts
// at the later of now and the current expiry, where the current expiry is the
// subscription expiry, else the trial expiry, else now.
func ExtendFrom(acct *doctors.Account, now time.Time, days int) (start, end time.Time) {
	current := now
	switch {
	case acct.SubscriptionExpiresAt != nil:
		current = *acct.SubscriptionExpiresAt
	case acct.TrialExpiresAt != nil:
		current = *acct.TrialExpiresAt
	}
	start = now
	if current.After(now) {
		start = current
	}
	start = start.UTC()
	return start, start.AddDate(0, 0, days)
}

func (w *Workflow) observe(span trace.Span, kind string, err error) {
	outcome := "approved"
	switch {
	case err == nil:
	case errors.Is(err, ErrRequestNotFound):
		outcome = "no_pending_request"
	case errors.Is(err, doctors.ErrNotFound):
		outcome = "doctor_not_found"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	w.metrics.ObserveApproval(kind, outcome)
	span.SetAttributes(attribute.String("renewal.outcome", outcome))
}

func translate(err error) error {
	if errors.Is(err, doctors.ErrNotFound) {
		return ErrDoctorNotFound
	}
	return err
}
