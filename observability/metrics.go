package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	transitions *prometheus.CounterVec
	payouts     prometheus.Counter
	paidIn      prometheus.Gauge
	escrowed    prometheus.Gauge
	withdrawn   prometheus.Gauge
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// EngineMetrics returns the lazily-initialised metrics registry used to record
// rental engine activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gearrent",
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Total engine transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			payouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gearrent",
				Subsystem: "engine",
				Name:      "payouts_total",
				Help:      "Count of payout instructions handed to the settlement channel.",
			}),
			paidIn: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gearrent",
				Subsystem: "ledger",
				Name:      "paid_in_units",
				Help:      "Total funds ever paid into the engine, in the smallest currency unit.",
			}),
			escrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gearrent",
				Subsystem: "ledger",
				Name:      "escrowed_units",
				Help:      "Deposits currently held by the engine awaiting resolution.",
			}),
			withdrawn: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gearrent",
				Subsystem: "ledger",
				Name:      "withdrawn_units",
				Help:      "Total funds drained through withdrawals.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.transitions,
			engineRegistry.payouts,
			engineRegistry.paidIn,
			engineRegistry.escrowed,
			engineRegistry.withdrawn,
		)
	})
	return engineRegistry
}

// ObserveTransition records one engine operation and its outcome ("ok" or the
// error kind label).
func (m *engineMetrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObservePayout records a payout instruction handed to the settlement channel.
func (m *engineMetrics) ObservePayout() {
	if m == nil {
		return
	}
	m.payouts.Inc()
}

// SetLedgerTotals publishes the conservation counters.
func (m *engineMetrics) SetLedgerTotals(paidIn, escrowed, withdrawn uint64) {
	if m == nil {
		return
	}
	m.paidIn.Set(float64(paidIn))
	m.escrowed.Set(float64(escrowed))
	m.withdrawn.Set(float64(withdrawn))
}
