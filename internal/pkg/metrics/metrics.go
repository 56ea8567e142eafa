// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "supportengine"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// EscalationsTotal counts tickets processed at each escalation level,
	// labeled by the outcome the level produced.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution",
			Name:      "escalations_total",
			Help:      "Escalation level executions by level and outcome",
		},
		[]string{"level", "outcome"},
	)

	// PlanGenerationDuration tracks end-to-end plan generation latency,
	// including the model round trip.
	PlanGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "generation_duration_seconds",
			Help:      "Resolution plan generation duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"result"},
	)

	// ApprovalRequestsTotal counts approval gate outcomes.
	ApprovalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "requests_total",
			Help:      "Approval requests by instruction type and outcome",
		},
		[]string{"instruction_type", "outcome"},
	)

	// TicketsProcessedTotal counts resolution pipeline passes.
	TicketsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tickets_processed_total",
			Help:      "Ticket resolution passes by path and final status",
		},
		[]string{"path", "status"},
	)

	// DriftChangesDetected counts external API changes recorded per provider.
	DriftChangesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drift",
			Name:      "changes_detected_total",
			Help:      "External API changes detected by provider and impact",
		},
		[]string{"provider", "impact"},
	)
)

// RecordDBPoolMetrics publishes the current pool statistics.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}
