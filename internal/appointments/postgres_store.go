package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/doctor-booking-engine/internal/calendar"
	"github.com/wolfman30/doctor-booking-engine/internal/money"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueSlotIndex is the partial unique index on live appointments.
const uniqueSlotIndex = "appointments_live_slot_idx"

// PostgresStore keeps appointments in Postgres. Commission amounts are stored
// as integer cents.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps a pool or transaction.
func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		panic("appointments: pgx querier required")
	}
	return &PostgresStore{db: db}
}

// WithQuerier returns a store that runs its statements on q, typically a
// transaction owned by the caller.
func (s *PostgresStore) WithQuerier(q Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

const selectColumns = `
	SELECT id, doctor_id, appointment_date, appointment_time, status, source,
		patient_user_id, guest_name, guest_phone,
		commission_cents, commission_paid, created_at, updated_at
	FROM appointments
`

func (s *PostgresStore) Find(ctx context.Context, filter Filter) ([]Appointment, error) {
	query := selectColumns + " WHERE 1=1"
	args := []any{}
	argIdx := 1

	if filter.DoctorID != "" {
		query += fmt.Sprintf(" AND doctor_id = $%d", argIdx)
		args = append(args, filter.DoctorID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if filter.ExcludeCancelled {
		query += " AND status <> 'cancelled'"
	}
	if filter.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if !filter.DateFrom.IsZero() {
		query += fmt.Sprintf(" AND appointment_date >= $%d", argIdx)
		args = append(args, calendar.Day(filter.DateFrom))
		argIdx++
	}
	if !filter.DateTo.IsZero() {
		query += fmt.Sprintf(" AND appointment_date < $%d", argIdx)
		args = append(args, calendar.Day(filter.DateTo))
		argIdx++
	}
	if filter.CommissionPaid != nil {
		query += fmt.Sprintf(" AND commission_paid = $%d", argIdx)
		args = append(args, *filter.CommissionPaid)
		argIdx++
	}
	query += " ORDER BY appointment_date, appointment_time"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: find: %w", err)
	}
	defer rows.Close()

	out := make([]Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: find rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Exists(ctx context.Context, doctorID string, date time.Time, clock string) (bool, error) {
	query := `
		SELECT 1 FROM appointments
		WHERE doctor_id = $1
			AND appointment_date = $2
			AND appointment_time = $3
			AND status <> 'cancelled'
		LIMIT 1
	`
	var exists int
	if err := s.db.QueryRow(ctx, query, doctorID, calendar.Day(date), clock).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("appointments: exists: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return nil
	}
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	appt.Date = calendar.Day(appt.Date)

	var guestName, guestPhone *string
	if appt.Patient.Guest != nil {
		guestName = &appt.Patient.Guest.Name
		guestPhone = &appt.Patient.Guest.Phone
	}
	var userID *string
	if appt.Patient.UserID != "" {
		userID = &appt.Patient.UserID
	}

	query := `
		INSERT INTO appointments (
			id, doctor_id, appointment_date, appointment_time, status, source,
			patient_user_id, guest_name, guest_phone, commission_cents, commission_paid
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		appt.ID,
		appt.DoctorID,
		appt.Date,
		appt.Time,
		string(appt.Status),
		string(appt.Source),
		userID,
		guestName,
		guestPhone,
		money.Cents(appt.Commission.Amount),
		appt.Commission.Paid,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isUniqueSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, doctorID, id string, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	query := `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND doctor_id = $2 AND status <> 'cancelled'
		RETURNING id, doctor_id, appointment_date, appointment_time, status, source,
			patient_user_id, guest_name, guest_phone,
			commission_cents, commission_paid, created_at, updated_at
	`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id, doctorID, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyMissing(ctx, doctorID, id)
		}
		return nil, err
	}
	return &appt, nil
}

// classifyMissing tells a missing appointment apart from a cancelled one after
// a guarded UPDATE touched no row.
func (s *PostgresStore) classifyMissing(ctx context.Context, doctorID, id string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 AND doctor_id = $2`, id, doctorID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("appointments: load status: %w", err)
	}
	return ErrInvalidStatus
}

func (s *PostgresStore) SettleUnpaidCommissions(ctx context.Context, doctorID string) (int64, error) {
	query := `
		UPDATE appointments
		SET commission_paid = TRUE, updated_at = now()
		WHERE doctor_id = $1
			AND source = 'website'
			AND status = 'attended'
			AND commission_paid = FALSE
	`
	ct, err := s.db.Exec(ctx, query, doctorID)
	if err != nil {
		return 0, fmt.Errorf("appointments: settle commissions: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		appt       Appointment
		status     string
		source     string
		userID     *string
		guestName  *string
		guestPhone *string
		cents      int64
	)
	if err := row.Scan(
		&appt.ID,
		&appt.DoctorID,
		&appt.Date,
		&appt.Time,
		&status,
		&source,
		&userID,
		&guestName,
		&guestPhone,
		&cents,
		&appt.Commission.Paid,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, err
		}
		return Appointment{}, fmt.Errorf("appointments: scan: %w", err)
	}
	appt.Date = calendar.Day(appt.Date)
	appt.Status = Status(status)
	appt.Source = Source(source)
	appt.Commission.Amount = money.FromCents(cents)
	if userID != nil && *userID != "" {
		appt.Patient.UserID = *userID
	} else if guestName != nil || guestPhone != nil {
		g := &Guest{}
		if guestName != nil {
			g.Name = *guestName
		}
		if guestPhone != nil {
			g.Phone = *guestPhone
		}
		appt.Patient.Guest = g
	}
	return appt, nil
}

func isUniqueSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == uniqueSlotIndex
}
