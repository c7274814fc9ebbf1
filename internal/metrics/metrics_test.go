package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLookupLatency("customer", time.Millisecond)
		m.ObserveValidateLatency(time.Millisecond)
		m.IncrementOutcome("passed", false)
		m.IncrementOverrideDecision("approved")
		m.AddImpactItems("critical", 2)
		m.IncrementConflict("override")
	})
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementOutcome("failed", true)
	m.IncrementOutcome("failed", true)
	m.AddImpactItems("major", 3)
	m.AddImpactItems("minor", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationOutcome.WithLabelValues("failed", "true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImpactItems.WithLabelValues("major")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ImpactItems.WithLabelValues("minor")))
}

func TestNewRegistersIndependently(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
