package doctors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/doctor-booking-engine/internal/money"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the store needs, including transactions.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists accounts in the doctors table. Schedules and payment
// requests live in JSONB columns; the fee is stored in cents.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("doctors: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const accountColumns = `
	id, user_id, name, consultation_fee_cents, trial_expires_at, subscription_expires_at,
	is_paused, is_manually_deactivated, profile_complete, schedule,
	renewal_request, commission_payment_request, created_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM doctors WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) FindByUser(ctx context.Context, userID string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM doctors WHERE user_id = $1`, userID)
	return scanAccount(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM doctors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("doctors: list: %w", err)
	}
	defer rows.Close()

	out := make([]*Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctors: list rows: %w", err)
	}
	return out, nil
}

// Save inserts or fully overwrites an account.
func (s *PostgresStore) Save(ctx context.Context, acct *Account) error {
	if acct == nil {
		return nil
	}
	if err := acct.Validate(); err != nil {
		return err
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	args, err := accountArgs(acct)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO doctors (
			id, user_id, name, consultation_fee_cents, trial_expires_at, subscription_expires_at,
			is_paused, is_manually_deactivated, profile_complete, schedule,
			renewal_request, commission_payment_request
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			consultation_fee_cents = EXCLUDED.consultation_fee_cents,
			trial_expires_at = EXCLUDED.trial_expires_at,
			subscription_expires_at = EXCLUDED.subscription_expires_at,
			is_paused = EXCLUDED.is_paused,
			is_manually_deactivated = EXCLUDED.is_manually_deactivated,
			profile_complete = EXCLUDED.profile_complete,
			schedule = EXCLUDED.schedule,
			renewal_request = EXCLUDED.renewal_request,
			commission_payment_request = EXCLUDED.commission_payment_request,
			updated_at = now()
		RETURNING created_at, updated_at
	`
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return fmt.Errorf("doctors: save: %w", err)
	}
	return nil
}

// Update locks the row, applies fn and writes the result in one transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("doctors: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := s.LockForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(acct); err != nil {
		return nil, err
	}
	acct.ID = id
	if err := s.Write(ctx, tx, acct); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("doctors: commit update: %w", err)
	}
	return acct, nil
}

// LockForUpdate reads an account with a row lock held until q's transaction
// ends.
func (s *PostgresStore) LockForUpdate(ctx context.Context, q Querier, id string) (*Account, error) {
	if q == nil {
		q = s.pool
	}
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM doctors WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

// Write overwrites the mutable columns of an existing account.
func (s *PostgresStore) Write(ctx context.Context, q Querier, acct *Account) error {
	if q == nil {
		q = s.pool
	}
	args, err := accountArgs(acct)
	if err != nil {
		return err
	}
	query := `
		UPDATE doctors
		SET user_id = $2,
			name = $3,
			consultation_fee_cents = $4,
			trial_expires_at = $5,
			subscription_expires_at = $6,
			is_paused = $7,
			is_manually_deactivated = $8,
			profile_complete = $9,
			schedule = $10,
			renewal_request = $11,
			commission_payment_request = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := q.QueryRow(ctx, query, args...).Scan(&acct.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("doctors: write: %w", err)
	}
	return nil
}

func accountArgs(acct *Account) ([]any, error) {
	scheduleJSON, err := json.Marshal(acct.Schedule)
	if err != nil {
		return nil, fmt.Errorf("doctors: marshal schedule: %w", err)
	}
	renewalJSON, err := marshalNullable(acct.RenewalRequest)
	if err != nil {
		return nil, fmt.Errorf("doctors: marshal renewal request: %w", err)
	}
	commissionJSON, err := marshalNullable(acct.CommissionPaymentRequest)
	if err != nil {
		return nil, fmt.Errorf("doctors: marshal commission request: %w", err)
	}
	return []any{
		acct.ID,
		acct.UserID,
		acct.Name,
		money.Cents(acct.ConsultationFee),
		acct.TrialExpiresAt,
		acct.SubscriptionExpiresAt,
		acct.IsPaused,
		acct.IsManuallyDeactivated,
		acct.ProfileComplete,
		scheduleJSON,
		renewalJSON,
		commissionJSON,
	}, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct           Account
		feeCents       int64
		trialExpires   *time.Time
		subExpires     *time.Time
		scheduleJSON   []byte
		renewalJSON    []byte
		commissionJSON []byte
	)
	if err := row.Scan(
		&acct.ID,
		&acct.UserID,
		&acct.Name,
		&feeCents,
		&trialExpires,
		&subExpires,
		&acct.IsPaused,
		&acct.IsManuallyDeactivated,
		&acct.ProfileComplete,
		&scheduleJSON,
		&renewalJSON,
		&commissionJSON,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("doctors: scan: %w", err)
	}
	acct.ConsultationFee = money.FromCents(feeCents)
	acct.TrialExpiresAt = trialExpires
	acct.SubscriptionExpiresAt = subExpires
	if hasJSON(scheduleJSON) {
		if err := json.Unmarshal(scheduleJSON, &acct.Schedule); err != nil {
			return nil, fmt.Errorf("doctors: decode schedule: %w", err)
		}
	}
	if hasJSON(renewalJSON) {
		acct.RenewalRequest = &RenewalRequest{}
		if err := json.Unmarshal(renewalJSON, acct.RenewalRequest); err != nil {
			return nil, fmt.Errorf("doctors: decode renewal request: %w", err)
		}
	}
	if hasJSON(commissionJSON) {
		acct.CommissionPaymentRequest = &CommissionPaymentRequest{}
		if err := json.Unmarshal(commissionJSON, acct.CommissionPaymentRequest); err != nil {
			return nil, fmt.Errorf("doctors: decode commission request: %w", err)
		}
	}
	return &acct, nil
}

func hasJSON(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}
