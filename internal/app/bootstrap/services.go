package bootstrap

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/doctor-booking-engine/internal/access"
	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/availability"
	"github.com/wolfman30/doctor-booking-engine/internal/booking"
	"github.com/wolfman30/doctor-booking-engine/internal/commission"
	appconfig "github.com/wolfman30/doctor-booking-engine/internal/config"
	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/http/handlers"
	"github.com/wolfman30/doctor-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/doctor-booking-engine/internal/renewal"
	"github.com/wolfman30/doctor-booking-engine/internal/subscriptions"
	"github.com/wolfman30/doctor-booking-engine/internal/users"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// Backends are the optional infrastructure connections. Any nil field falls
// back to the in-process implementation.
type Backends struct {
	Pool  *pgxpool.Pool
	SQL   *sql.DB
	Redis *redis.Client
}

// Services is the wired application graph.
type Services struct {
	Doctors       doctors.Store
	Appointments  appointments.Store
	Users         users.Store
	History       subscriptions.Store
	Publisher     events.Publisher
	OutboxSource  events.Source
	Index         *availability.Index
	Resolver      *booking.Resolver
	Ledger        *commission.Ledger
	Calculator    *access.Calculator
	Machine       *access.Machine
	Workflow      *renewal.Workflow
	Sweeper       *access.Sweeper
	Deliverer     *events.Deliverer
	Metrics       *metrics.SchedulingMetrics
	BookingHTTP   *handlers.BookingHandler
	BillingHTTP   *handlers.BillingHandler
	Ready         func(ctx context.Context) error
	PersistenceDB string
}

// Options tweak BuildServices for tests.
type Options struct {
	Registerer prometheus.Registerer
	Clock      func() time.Time
}

// BuildServices wires stores, domain services and HTTP handlers. Postgres is
// used when a pool is supplied, Redis backs the slot lock and availability
// cache when a client is supplied, and everything else runs in memory.
func BuildServices(cfg *appconfig.Config, b Backends, logger *logging.Logger, opts Options) *Services {
	if cfg == nil {
		cfg = &appconfig.Config{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := cfg.Location()

	svc := &Services{Metrics: metrics.NewSchedulingMetrics(opts.Registerer)}

	var repo renewal.Repository
	if b.Pool != nil {
		svc.Doctors = doctors.NewPostgresStore(b.Pool)
		svc.Appointments = appointments.NewPostgresStore(b.Pool)
		svc.History = subscriptions.NewPostgresStore(b.Pool)
		outbox := events.NewOutboxStore(b.Pool)
		svc.Publisher = outbox
		svc.OutboxSource = outbox
		repo = renewal.NewPostgresRepository(b.Pool)
		svc.PersistenceDB = "postgres"
	} else {
		svc.Doctors = doctors.NewMemoryStore()
		svc.Appointments = appointments.NewMemoryStore()
		svc.History = subscriptions.NewMemoryStore()
		outbox := events.NewMemoryOutbox()
		svc.Publisher = outbox
		svc.OutboxSource = outbox
		repo = renewal.NewMemoryRepository(svc.Doctors, svc.Appointments, svc.History, outbox)
		svc.PersistenceDB = "memory"
	}
	if b.SQL != nil {
		svc.Users = users.NewSQLStore(b.SQL)
	} else {
		svc.Users = users.NewMemoryStore()
	}

	var cache availability.Cache
	var locker booking.Locker
	if b.Redis != nil {
		cache = availability.NewRedisCache(b.Redis, cfg.AvailabilityCacheTTL)
		locker = booking.NewRedisLocker(b.Redis, cfg.BookingLockTTL)
	}

	svc.Index = availability.NewIndex(svc.Appointments, cache, loc, logger).WithClock(clock)
	svc.Resolver = booking.NewResolver(booking.Deps{
		Index:     svc.Index,
		Store:     svc.Appointments,
		Doctors:   svc.Doctors,
		Identity:  booking.NewIdentityResolver(svc.Users),
		Locker:    locker,
		Publisher: svc.Publisher,
		Metrics:   svc.Metrics,
		Logger:    logger,
	}).WithClock(clock)

	svc.Ledger = commission.NewLedger(svc.Appointments, commission.CurrentFeePolicy)
	policy := access.DefaultPolicy()
	if cfg.SubscriptionFee > 0 {
		policy.SubscriptionFee = decimal.NewFromInt(int64(cfg.SubscriptionFee))
	}
	if cfg.CommissionGraceDays >= 0 {
		policy.GraceDays = cfg.CommissionGraceDays
	}
	policy.Location = loc
	svc.Calculator = access.NewCalculator(svc.Ledger, policy).WithClock(clock)
	svc.Machine = access.NewMachine(svc.Calculator)

	svc.Workflow = renewal.NewWorkflow(repo, svc.Metrics, logger).
		WithClock(clock).
		WithPeriodDays(cfg.RenewalPeriodDays)

	svc.Sweeper = access.NewSweeper(svc.Doctors, svc.Machine, svc.Metrics, svc.Publisher, logger).
		WithInterval(cfg.AccessSweepInterval)
	svc.Deliverer = events.NewDeliverer(svc.OutboxSource, events.LogDeliveryHandler{Logger: logger}, logger).
		WithInterval(cfg.OutboxPollInterval)

	svc.BookingHTTP = handlers.NewBookingHandler(handlers.BookingHandlerConfig{
		Resolver:     svc.Resolver,
		Index:        svc.Index,
		Doctors:      svc.Doctors,
		Appointments: svc.Appointments,
		Users:        svc.Users,
		HorizonDays:  cfg.FirstAvailableHorizonDays,
		Logger:       logger,
	})
	svc.BillingHTTP = handlers.NewBillingHandler(handlers.BillingHandlerConfig{
		Doctors:    svc.Doctors,
		Calculator: svc.Calculator,
		Ledger:     svc.Ledger,
		Workflow:   svc.Workflow,
		History:    svc.History,
		Logger:     logger,
	})

	svc.Ready = func(ctx context.Context) error {
		if b.Pool != nil {
			if err := b.Pool.Ping(ctx); err != nil {
				return err
			}
		}
		if b.Redis != nil {
			if err := b.Redis.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}

	logger.Info("services wired",
		"persistence", svc.PersistenceDB,
		"redis", b.Redis != nil,
		"timezone", loc.String(),
	)
	return svc
}

// RunBackground starts the access sweeper and outbox deliverer. Both stop
// when ctx is cancelled.
func (s *Services) RunBackground(ctx context.Context) {
	go s.Sweeper.Start(ctx)
	go s.Deliverer.Start(ctx)
}
