package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the claim lifecycle counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions  *prometheus.CounterVec
	divergences  *prometheus.CounterVec
	confirmation *prometheus.HistogramVec
	synchronize  *prometheus.CounterVec
}

// NewMetrics registers the claim metrics with registry. A nil registry returns nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}

	factory := promauto.With(registry)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_transitions_total",
			Help: "Claim lifecycle transitions by kind and outcome",
		}, []string{"kind", "outcome"}),
		divergences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_divergences_total",
			Help: "Transitions confirmed on the ledger whose mirror update failed",
		}, []string{"kind"}),
		confirmation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claims_confirmation_seconds",
			Help:    "Time from submission to ledger confirmation",
			Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 180, 300},
		}, []string{"kind"}),
		synchronize: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_synchronize_total",
			Help: "Synchronize runs by resulting action",
		}, []string{"action"}),
	}
}

// ObserveTransition counts one transition attempt
func (m *Metrics) ObserveTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

// ObserveDivergence counts a ledger-ahead-of-mirror event
func (m *Metrics) ObserveDivergence(kind string) {
	if m == nil {
		return
	}
	m.divergences.WithLabelValues(kind).Inc()
}

// ObserveConfirmation records confirmation latency
func (m *Metrics) ObserveConfirmation(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveSynchronize counts a synchronize outcome
func (m *Metrics) ObserveSynchronize(action string) {
	if m == nil {
		return
	}
	m.synchronize.WithLabelValues(action).Inc()
}
