package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespacePool   = "commandpool"
	namespaceProver = "prover"
	namespaceLedger = "ledger"
)

var (
	// ReceivedCommands commands accepted into the pool
	ReceivedCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespacePool,
			Name:      "received_commands_total",
			Help:      "",
		})

	// RejectedCommands commands rejected at ingestion
	RejectedCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespacePool,
			Name:      "rejected_commands_total",
			Help:      "",
		})

	// AppliedCommands commands applied to the ledger
	AppliedCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespacePool,
			Name:      "applied_commands_total",
			Help:      "",
		})

	// InvalidCommands commands that failed to apply
	InvalidCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespacePool,
			Name:      "invalid_commands_total",
			Help:      "",
		})

	// PurgedCommands commands removed by the last pool purge
	PurgedCommands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespacePool,
			Name:      "purged_commands",
			Help:      "",
		})

	// LedgerAccounts accounts present in the ledger
	LedgerAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Name:      "accounts",
			Help:      "",
		})

	// WaitServerProof duration time to get the calculated
	// proof from the server.
	WaitServerProof = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceProver,
			Name:      "wait_server_proof",
			Help:      "",
		}, []string{"contract", "method"})
)

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}
