package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters and gauges for booking and billing flows.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	bookingLatency *prometheus.HistogramVec
	approvalsTotal *prometheus.CounterVec
	accessStates   *prometheus.GaugeVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_engine",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by source and outcome",
		}, []string{"source", "outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking_engine",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of booking resolution",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		approvalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_engine",
			Subsystem: "billing",
			Name:      "approvals_total",
			Help:      "Admin approvals by request kind and outcome",
		}, []string{"kind", "outcome"}),
		accessStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "booking_engine",
			Subsystem: "access",
			Name:      "doctors",
			Help:      "Doctors per derived access state at the last sweep",
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.approvalsTotal, m.accessStates)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(source, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(source, outcome).Inc()
	m.bookingLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveApproval(kind, outcome string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetAccessStates replaces the gauge with counts. States missing from counts
// are reset to zero.
func (m *SchedulingMetrics) SetAccessStates(counts map[string]int) {
	if m == nil {
		return
	}
	m.accessStates.Reset()
	for state, n := range counts {
		m.accessStates.WithLabelValues(state).Set(float64(n))
	}
}
