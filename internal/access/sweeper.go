package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/doctor-booking-engine/internal/doctors"
	"github.com/wolfman30/doctor-booking-engine/internal/events"
	"github.com/wolfman30/doctor-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// Sweeper periodically re-evaluates every doctor so state changes caused by
// the clock alone (a lapsed subscription, the grace period ending) surface in
// metrics, logs and events.
type Sweeper struct {
	doctors   doctors.Store
	machine   *Machine
	metrics   *metrics.SchedulingMetrics
	publisher events.Publisher
	logger    *logging.Logger
	interval  time.Duration

	mu   sync.Mutex
	last map[string]State
}

func NewSweeper(store doctors.Store, machine *Machine, m *metrics.SchedulingMetrics, publisher events.Publisher, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		doctors:   store,
		machine:   machine,
		metrics:   m,
		publisher: publisher,
		logger:    logger.Component("access_sweeper"),
		interval:  time.Hour,
		last:      make(map[string]State),
	}
}

func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// Start sweeps once immediately and then on every tick until ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	if s.doctors == nil || s.machine == nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("access sweep failed", "error", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("access sweep failed", "error", err)
			}
		}
	}
}

// RunOnce evaluates every doctor and returns the count per state. Doctors
// that fail to evaluate are logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (map[State]int, error) {
	accounts, err := s.doctors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: list doctors: %w", err)
	}

	counts := make(map[State]int, len(States))
	for _, st := range States {
		counts[st] = 0
	}
	seen := make(map[string]bool, len(accounts))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range accounts {
		seen[acct.ID] = true
		decision, err := s.machine.Evaluate(ctx, acct)
		if err != nil {
			s.logger.Error("access evaluation failed", "doctor_id", acct.ID, "error", err)
			continue
		}
		counts[decision.State]++

		prev, known := s.last[acct.ID]
		s.last[acct.ID] = decision.State
		if !known || prev == decision.State {
			continue
		}
		s.logger.Info("doctor access state changed",
			"doctor_id", acct.ID,
			"from", prev,
			"to", decision.State,
			"has_access", decision.HasValidAccess,
		)
		if s.publisher != nil {
			evt := events.AccessStateChangedV1{
				DoctorID:   acct.ID,
				From:       string(prev),
				To:         string(decision.State),
				HasAccess:  decision.HasValidAccess,
				ObservedAt: decision.EvaluatedAt,
			}
			if err := s.publisher.Publish(ctx, events.DoctorAggregate(acct.ID), evt); err != nil {
				s.logger.Warn("publish access change failed", "doctor_id", acct.ID, "error", err)
			}
		}
	}
	for id := range s.last {
		if !seen[id] {
			delete(s.last, id)
		}
	}

	gauge := make(map[string]int, len(counts))
	for st, n := range counts {
		gauge[string(st)] = n
	}
	s.metrics.SetAccessStates(gauge)
	return counts, nil
}
