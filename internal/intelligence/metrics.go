package intelligence

import (
	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Metric names.
const (
	MetricEvaluationsTotal    = "intelligence_evaluations_total"
	MetricEvaluationDuration  = "intelligence_evaluation_duration_seconds"
	MetricTrackedSessions     = "intelligence_tracked_sessions"
	MetricDroppedUpdatesTotal = "intelligence_dropped_updates_total"
	MetricBreakerState        = "intelligence_gateway_breaker_state"
	MetricStreamConnections   = "intelligence_stream_connections"
)

// Outcome labels for MetricEvaluationsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Metrics contains Prometheus metrics for session evaluation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluations       *prometheus.CounterVec
	duration          prometheus.Histogram
	trackedSessions   prometheus.Gauge
	droppedUpdates    prometheus.Counter
	breakerState      *prometheus.GaugeVec
	streamConnections prometheus.Gauge
}

// NewMetrics creates unregistered metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEvaluationsTotal,
				Help: "Total number of session evaluations by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricEvaluationDuration,
				Help:    "Histogram of session evaluation duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		trackedSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricTrackedSessions,
				Help: "Number of sessions with a live tracker",
			},
		),
		droppedUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricDroppedUpdatesTotal,
				Help: "Evaluations discarded because their tracker stopped",
			},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricBreakerState,
				Help: "Gateway circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
		streamConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricStreamConnections,
				Help: "Number of open intelligence websocket connections",
			},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.evaluations,
		m.duration,
		m.trackedSessions,
		m.droppedUpdates,
		m.breakerState,
		m.streamConnections,
	}
}

func (m *Metrics) observeEvaluation(degraded bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if degraded {
		outcome = OutcomeDegraded
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) setTrackedSessions(n int) {
	if m != nil {
		m.trackedSessions.Set(float64(n))
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.droppedUpdates.Inc()
	}
}

func (m *Metrics) setBreakerState(name string, s gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) addStreamConnections(delta int) {
	if m != nil {
		m.streamConnections.Add(float64(delta))
	}
}
