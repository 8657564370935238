// Package metrics holds the Prometheus collectors for collection and workflow progress.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "market_atlas"

var (
	// AdapterCallsTotal counts adapter fetches by provider and outcome (ok, error, skipped).
	AdapterCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_calls_total",
			Help:      "Total number of provider adapter calls",
		},
		[]string{"provider", "outcome"},
	)

	AdapterCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_call_duration_seconds",
			Help:      "Duration of provider adapter calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"provider"},
	)

	SnapshotsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Total number of metric snapshots appended",
		},
		[]string{"metric"},
	)

	SnapshotsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_rejected_total",
			Help:      "Total number of duplicate snapshots rejected by the store",
		},
	)

	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Total number of report status transitions by target status",
		},
		[]string{"status"},
	)

	WorkflowTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_tasks_total",
			Help:      "Total number of workflow tasks handled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func RecordAdapterCall(provider, outcome string, d time.Duration) {
	AdapterCallsTotal.WithLabelValues(provider, outcome).Inc()
	if outcome != "skipped" {
		AdapterCallDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

func RecordSnapshot(metric string) {
	SnapshotsWrittenTotal.WithLabelValues(metric).Inc()
}

func RecordRejectedSnapshot() {
	SnapshotsRejectedTotal.Inc()
}

func RecordTransition(status string) {
	WorkflowTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordTask(kind, outcome string) {
	WorkflowTasksTotal.WithLabelValues(kind, outcome).Inc()
}
