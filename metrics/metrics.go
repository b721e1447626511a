// Package metrics declares the Prometheus collectors of watchdb.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label values.
const (
	Commit   = "commit"
	Abort    = "abort"
	Coarse   = "coarse"
	Detailed = "detailed"
)

// Collectors for transactions, change detection and delivery.
var (
	TxnTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdb_txn_total",
		Help: "Cumulative number of finished write transactions.",
	}, []string{"backend", "outcome"})
	ChangeDetailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdb_change_details_total",
		Help: "Cumulative number of change details recorded.",
	}, []string{"backend", "type"})
	ChangeReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdb_change_reads_total",
		Help: "Cumulative number of object state reads made for change detection.",
	}, []string{"backend"})
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdb_deliveries_total",
		Help: "Cumulative number of notifications and batches delivered to watchers.",
	}, []string{"mode"})
)

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(TxnTotal, ChangeDetailsTotal, ChangeReadsTotal, DeliveriesTotal)
}
