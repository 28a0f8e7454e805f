package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestration cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botfleet_cycles_total",
			Help: "Total orchestration sub-task cycles by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botfleet_cycle_duration_seconds",
			Help:    "Duration of one orchestration sub-task cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"task"},
	)

	// Deployment metrics
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botfleet_deployments_total",
			Help: "Total launch attempts by outcome",
		},
		[]string{"outcome"},
	)

	ExecutionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botfleet_executions_in_flight",
			Help: "Executions currently tracked in a non-terminal state",
		},
	)

	// Reconciliation metrics
	ReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botfleet_reconciled_total",
			Help: "Execution status resolutions by source",
		},
		[]string{"source"}, // "callback" or "poll"
	)

	EscalatedUnknownTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botfleet_escalated_unknown_total",
			Help: "Executions abandoned to UNKNOWN after exhausting reconciliation attempts",
		},
	)

	// Database retry metrics
	DBRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botfleet_db_retries_total",
			Help: "Statement retries after a retryable database failure",
		},
	)

	// Alerting metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botfleet_alerts_total",
			Help: "Alerts by disposition",
		},
		[]string{"disposition"}, // "sent", "suppressed", "failed"
	)
)
