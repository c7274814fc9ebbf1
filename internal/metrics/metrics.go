// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance engine. All methods are
// safe on a nil receiver.
type Metrics struct {
	// Validation outcomes by status
	ValidationOutcome *prometheus.CounterVec

	// Lookup latencies by source
	LookupLatency *prometheus.HistogramVec

	// Overall validation latency including lookups
	ValidateLatency prometheus.Histogram

	// Override decisions by decision
	OverrideDecision *prometheus.CounterVec

	// Impact analysis items by severity
	ImpactItems *prometheus.CounterVec

	// Optimistic concurrency conflicts by operation
	ConcurrencyConflicts *prometheus.CounterVec
}

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ValidationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_validation_outcomes_total",
			Help: "Total transaction validation outcomes by status",
		}, []string{"status", "requires_override"}),

		LookupLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_lookup_duration_seconds",
			Help:    "Duration of reference data lookups by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}), // source: "customer", "licences", "thresholds", "substance", "usage"

		ValidateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_validate_duration_seconds",
			Help:    "Duration of full transaction validation including lookups",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		OverrideDecision: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_override_decisions_total",
			Help: "Total override decisions by decision",
		}, []string{"decision"}),

		ImpactItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_impact_items_total",
			Help: "Total retroactive impact items by severity",
		}, []string{"severity"}),

		ConcurrencyConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_concurrency_conflicts_total",
			Help: "Total optimistic concurrency conflicts by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveLookupLatency(source string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOutcome(status string, requiresOverride bool) {
	if m != nil {
		ro := "false"
		if requiresOverride {
			ro = "true"
		}
		m.ValidationOutcome.WithLabelValues(status, ro).Inc()
	}
}

func (m *Metrics) IncrementOverrideDecision(decision string) {
	if m != nil {
		m.OverrideDecision.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) AddImpactItems(severity string, n int) {
	if m != nil && n > 0 {
		m.ImpactItems.WithLabelValues(severity).Add(float64(n))
	}
}

func (m *Metrics) IncrementConflict(operation string) {
	if m != nil {
		m.ConcurrencyConflicts.WithLabelValues(operation).Inc()
	}
}
