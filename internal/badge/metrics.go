package badge

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	MetricBadgeAwardsTotal      = "badge_awards_total"
	MetricBadgeEvaluationsTotal = "badge_evaluations_total"
	MetricBadgeStoreErrorsTotal = "badge_store_errors_total"
)

// Store operations for the error counter.
const (
	OpHasBadge    = "has_badge"
	OpCreate      = "create"
	OpRankResolve = "rank_resolve"
)

// Metrics counts badge evaluations, new awards and store failures.
type Metrics struct {
	awardsTotal      *prometheus.CounterVec
	evaluationsTotal prometheus.Counter
	storeErrors      *prometheus.CounterVec
}

// NewMetrics creates unregistered badge metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		awardsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBadgeAwardsTotal,
				Help: "Total number of badges newly awarded by badge ID",
			},
			[]string{"badge_id"},
		),
		evaluationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricBadgeEvaluationsTotal,
				Help: "Total number of badge evaluations",
			},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBadgeStoreErrorsTotal,
				Help: "Total number of award store failures by operation",
			},
			[]string{"operation"},
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
	return []prometheus.Collector{m.awardsTotal, m.evaluationsTotal, m.storeErrors}
}

func (m *Metrics) incAward(badgeID string) {
	if m != nil {
		m.awardsTotal.WithLabelValues(badgeID).Inc()
	}
}

func (m *Metrics) incEvaluation() {
	if m != nil {
		m.evaluationsTotal.Inc()
	}
}

func (m *Metrics) incStoreError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}
