package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// Publisher records domain events for later delivery.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt Event) error
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes evt to the outbox through exec. Pass a transaction to make the
// event commit or roll back with the state change that produced it.
func Append(ctx context.Context, exec Execer, aggregate string, evt Event, opts ...Option) (Envelope, error) {
	if exec == nil {
		return Envelope{}, fmt.Errorf("events: exec required")
	}
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, []byte(env.Payload)); err != nil {
		return Envelope{}, fmt.Errorf("events: insert outbox: %w", err)
	}
	return env, nil
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

type outboxDB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events in the outbox table.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(db outboxDB) *OutboxStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: db}
}

// Publish appends evt outside of any caller transaction.
func (s *OutboxStore) Publish(ctx context.Context, aggregate string, evt Event) error {
	_, err := Append(ctx, s.db, aggregate, evt)
	return err
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	query := `
		SELECT id, aggregate, event_type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			env       Envelope
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&env.EventID, &env.Aggregate, &env.EventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		env.Payload = append(json.RawMessage(nil), payload...)
		env.TimestampMicros = createdAt.UTC().UnixMicro()
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Source is what a Deliverer drains.
type Source interface {
	FetchPending(ctx context.Context, limit int32) ([]Envelope, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer polls a Source and invokes the handler for each pending event.
type Deliverer struct {
	source    Source
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(source Source, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		source:    source,
		handler:   handler,
		logger:    logger.Component("outbox"),
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains on every tick until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.source == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many events were marked delivered.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.source.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, env := range entries {
		if err := d.handler.Handle(ctx, env); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", env.EventID, "type", env.EventType)
			continue
		}
		ok, err := d.source.MarkDelivered(ctx, env.EventID)
		if err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", env.EventID)
			continue
		}
		if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", env.EventID, "type", env.EventType)
		}
	}
	return delivered
}

// LogDeliveryHandler writes each event to the structured log.
type LogDeliveryHandler struct {
	Logger *logging.Logger
}

func (h LogDeliveryHandler) Handle(ctx context.Context, env Envelope) error {
	logger := h.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("domain event",
		"event_id", env.EventID,
		"type", env.EventType,
		"aggregate", env.Aggregate,
		"payload", string(env.Payload),
	)
	return nil
}

// MemoryOutbox is an in-process Publisher and Source used when no database is
// configured.
type MemoryOutbox struct {
	mu        sync.Mutex
	pending   []Envelope
	delivered map[uuid.UUID]bool
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{delivered: make(map[uuid.UUID]bool)}
}

func (m *MemoryOutbox) Publish(ctx context.Context, aggregate string, evt Event) error {
	env, err := NewEnvelope(aggregate, evt)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pending = append(m.pending, env)
	m.mu.Unlock()
	return nil
}

func (m *MemoryOutbox) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, 0)
	for _, env := range m.pending {
		if m.delivered[env.EventID] {
			continue
		}
		out = append(out, env)
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryOutbox) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delivered[id] {
		return false, nil
	}
	for _, env := range m.pending {
		if env.EventID == id {
			m.delivered[id] = true
			return true, nil
		}
	}
	return false, nil
}

// Events returns every published envelope, delivered or not.
func (m *MemoryOutbox) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.pending...)
}
