// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAppended counts ledger events by type
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_appended_total",
		Help: "Total inventory events appended to the ledger by event type",
	}, []string{"event_type"})

	// AppendConflicts counts compare-and-swap failures on the chain tip
	AppendConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_append_conflicts_total",
		Help: "Total concurrent append conflicts detected on partition chain tips",
	})

	// RetriesExhausted counts partition transactions that gave up after the retry bound
	RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_append_retries_exhausted_total",
		Help: "Total partition transactions that surfaced a conflict after all retries",
	})

	// PartitionTxDuration tracks how long a partition transaction holds the partition
	PartitionTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_partition_tx_duration_seconds",
		Help:    "Partition transaction duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation", "result"})

	// IntegrityViolations counts broken chains found by the verifier
	IntegrityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_integrity_violations_total",
		Help: "Total hash chain or sequence violations detected by the chain verifier",
	})

	// Reservations counts reservation attempts by outcome
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Total reservation attempts by outcome",
	}, []string{"outcome"})

	// AllocationTransitions counts terminal allocation transitions
	AllocationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_allocation_transitions_total",
		Help: "Total allocation transitions into a terminal state",
	}, []string{"status"})

	// SweepRuns counts expiry sweep cycles by result
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_expiry_sweeps_total",
		Help: "Total reservation expiry sweep cycles by result",
	}, []string{"result"})
)
