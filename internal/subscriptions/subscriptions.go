// Package subscriptions records settled renewal periods. Records are append
// only.
package subscriptions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Record is one paid subscription period.
type Record struct {
	ID           string    `json:"id"`
	DoctorID     string    `json:"doctor_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	PaymentPhone string    `json:"payment_phone"`
	ReceiptRef   string    `json:"receipt_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store appends and lists subscription history.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	ListByDoctor(ctx context.Context, doctorID string) ([]Record, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.records = append(s.records, *rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListByDoctor(ctx context.Context, doctorID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.DoctorID == doctorID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore writes to the subscription_history table.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		panic("subscriptions: pgx querier required")
	}
	return &PostgresStore{db: db}
}

// WithQuerier returns a store bound to q, typically a transaction.
func (s *PostgresStore) WithQuerier(q Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO subscription_history (id, doctor_id, start_date, end_date, payment_phone, receipt_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if err := s.db.QueryRow(ctx, query,
		rec.ID,
		rec.DoctorID,
		rec.StartDate,
		rec.EndDate,
		rec.PaymentPhone,
		rec.ReceiptRef,
	).Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("subscriptions: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDoctor(ctx context.Context, doctorID string) ([]Record, error) {
	query := `
		SELECT id, doctor_id, start_date, end_date, payment_phone, receipt_ref, created_at
		FROM subscription_history
		WHERE doctor_id = $1
		ORDER BY start_date
	`
	rows, err := s.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.DoctorID, &rec.StartDate, &rec.EndDate, &rec.PaymentPhone, &rec.ReceiptRef, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("subscriptions: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
