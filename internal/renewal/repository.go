package renewal

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/subscriptions"
)

// PostgresRepository runs each approval in one Postgres transaction: the
// doctor row is locked with SELECT ... FOR UPDATE, and commission settlement,
// history and outbox rows are written on the same transaction.
type PostgresRepository struct {
	pool    doctors.PgxPool
	doctors *doctors.PostgresStore
	appts   *appointments.PostgresStore
	history *subscriptions.PostgresStore
}

func NewPostgresRepository(pool doctors.PgxPool) *PostgresRepository {
	if pool == nil {
		panic("renewal: pgx pool required")
	}
	return &PostgresRepository{
		pool:    pool,
		doctors: doctors.NewPostgresStore(pool),
		appts:   appointments.NewPostgresStore(pool),
		history: subscriptions.NewPostgresStore(pool),
	}
}

func (r *PostgresRepository) WithDoctor(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) (*doctors.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("renewal: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := r.doctors.LockForUpdate(ctx, tx, doctorID)
	if err != nil {
		return nil, err
	}
	unit := &pgTx{
		acct:    acct,
		exec:    tx,
		appts:   r.appts.WithQuerier(tx),
		history: r.history.WithQuerier(tx),
	}
	if err := fn(ctx, unit); err != nil {
		return nil, err
	}
	acct.ID = doctorID
	if err := r.doctors.Write(ctx, tx, acct); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("renewal: commit: %w", err)
	}
	return acct, nil
}

type pgTx struct {
	acct    *doctors.Account
	exec    events.Execer
	appts   *appointments.PostgresStore
	history *subscriptions.PostgresStore
}

func (t *pgTx) Doctor() *doctors.Account { return t.acct }

func (t *pgTx) SettleCommissions(ctx context.Context) (int64, error) {
	return t.appts.SettleUnpaidCommissions(ctx, t.acct.ID)
}

func (t *pgTx) AppendHistory(ctx context.Context, rec *subscriptions.Record) error {
	return t.history.Insert(ctx, rec)
}

func (t *pgTx) Publish(ctx context.Context, evt events.Event) error {
	_, err := events.Append(ctx, t.exec, events.DoctorAggregate(t.acct.ID), evt)
	return err
}

// MemoryRepository backs the workflow with in-process stores. Writes made
// through the Tx are staged and only applied once fn succeeds, while the
// doctor record is held by doctors.Store.Update.
type MemoryRepository struct {
	mu        sync.Mutex
	doctors   doctors.Store
	appts     appointments.Store
	history   subscriptions.Store
	publisher events.Publisher
}

func NewMemoryRepository(d doctors.Store, a appointments.Store, h subscriptions.Store, p events.Publisher) *MemoryRepository {
	if d == nil || a == nil || h == nil {
		panic("renewal: doctor, appointment and history stores required")
	}
	return &MemoryRepository{doctors: d, appts: a, history: h, publisher: p}
}

func (r *MemoryRepository) WithDoctor(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) (*doctors.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.doctors.Update(ctx, doctorID, func(acct *doctors.Account) error {
		unit := &memoryTx{acct: acct, appts: r.appts}
		if err := fn(ctx, unit); err != nil {
			return err
		}
		return r.flush(ctx, unit)
	})
}

func (r *MemoryRepository) flush(ctx context.Context, unit *memoryTx) error {
	if unit.settle {
		if _, err := r.appts.SettleUnpaidCommissions(ctx, unit.acct.ID); err != nil {
			return err
		}
	}
	for _, rec := range unit.records {
		if err := r.history.Insert(ctx, rec); err != nil {
			return err
		}
	}
	if r.publisher == nil {
		return nil
	}
	for _, evt := range unit.events {
		if err := r.publisher.Publish(ctx, events.DoctorAggregate(unit.acct.ID), evt); err != nil {
			return err
		}
	}
	return nil
}

type memoryTx struct {
	acct    *doctors.Account
	appts   appointments.Store
	settle  bool
	records []*subscriptions.Record
	events  []events.Event
}

func (t *memoryTx) Doctor() *doctors.Account { return t.acct }

func (t *memoryTx) SettleCommissions(ctx context.Context) (int64, error) {
	unpaid := false
	pending, err := t.appts.Find(ctx, appointments.Filter{
		DoctorID:       t.acct.ID,
		Source:         appointments.SourceWebsite,
		Statuses:       []appointments.Status{appointments.StatusAttended},
		CommissionPaid: &unpaid,
	})
	if err != nil {
		return 0, err
	}
	t.settle = true
	return int64(len(pending)), nil
}

func (t *memoryTx) AppendHistory(ctx context.Context, rec *subscriptions.Record) error {
	t.records = append(t.records, rec)
	return nil
}

func (t *memoryTx) Publish(ctx context.Context, evt events.Event) error {
	t.events = append(t.events, evt)
	return nil
}
