// Package metrics exposes the node's Prometheus instrumentation:
// transaction admission/rejection, blocks minted, pending pool size,
// and validator elections.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the protocol engine updates. Create
// one with New and register it with a prometheus.Registerer before
// serving /metrics.
type Metrics struct {
	TransactionsAdmitted   prometheus.Counter
	TransactionsRejected   *prometheus.CounterVec
	BlocksMinted           prometheus.Counter
	PendingSize            prometheus.Gauge
	ValidatorElections     prometheus.Counter
}

// New builds a Metrics instance and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockchat_transactions_admitted_total",
			Help: "Transactions accepted into the pending pool.",
		}),
		TransactionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockchat_transactions_rejected_total",
			Help: "Transactions rejected, by reason.",
		}, []string{"reason"}),
		BlocksMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockchat_blocks_minted_total",
			Help: "Blocks this node has minted as validator.",
		}),
		PendingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockchat_pending_size",
			Help: "Transactions currently waiting in the pending pool.",
		}),
		ValidatorElections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockchat_validator_elections_total",
			Help: "Validator elections this node has computed.",
		}),
	}

	reg.MustRegister(
		m.TransactionsAdmitted,
		m.TransactionsRejected,
		m.BlocksMinted,
		m.PendingSize,
		m.ValidatorElections,
	)

	return m
}
