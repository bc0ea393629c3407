// Package observability collects the service's prometheus instrumentation.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records escrow transition activity segmented by
// transition and outcome.
type SettlementMetrics struct {
	transitions *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripact",
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Total escrow state transitions segmented by transition and outcome.",
			}, []string{"transition", "outcome"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripact",
				Subsystem: "escrow",
				Name:      "withdrawals_total",
				Help:      "Total withdrawal attempts segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
		}
		prometheus.MustRegister(settlementReg.transitions, settlementReg.withdrawals)
	})
	return settlementReg
}

// ObserveTransition records one transition attempt.
func (m *SettlementMetrics) ObserveTransition(transition string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(transition, outcome).Inc()
}

// ObserveWithdrawal records one withdrawal attempt. Kind is "withdraw" or
// "emergency".
func (m *SettlementMetrics) ObserveWithdrawal(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.withdrawals.WithLabelValues(kind, outcome).Inc()
}
