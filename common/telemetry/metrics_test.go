package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("validate", "success")
		m.ObserveDivergence("approve")
		m.ObserveConfirmation("pay", time.Second)
		m.ObserveSynchronize("noop")
	})
	assert.Nil(t, NewMetrics(nil))
}

func TestMetrics_Counts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.ObserveTransition("validate", "success")
	m.ObserveTransition("validate", "success")
	m.ObserveTransition("approve", "reverted")
	m.ObserveDivergence("pay")
	m.ObserveSynchronize("created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("validate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve", "reverted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.divergences.WithLabelValues("pay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.synchronize.WithLabelValues("created")))
}
