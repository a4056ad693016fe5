package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records escrow entrypoint activity: one counter per
// (operation, outcome) pair and a latency histogram per operation.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Escrow entrypoint calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crosslock",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of escrow entrypoint calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(escrowRegistry.operations, escrowRegistry.duration)
	})
	return escrowRegistry
}

// Observe records one entrypoint call.
func (m *EscrowMetrics) Observe(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(seconds)
}
