package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	QueriesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_queries_started_total",
			Help: "Total number of queries submitted to the orchestrator",
		},
	)

	QueriesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_queries_completed_total",
			Help: "Total number of queries completed",
		},
		[]string{"status"}, // ok, degraded, failed
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_query_duration_seconds",
			Help:    "End-to-end query orchestration duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_stage_duration_seconds",
			Help:    "Per-stage pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"stage"}, // angles, fanout, contradictions, synthesis
	)

	// Angle metrics
	AngleExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_angle_executions_total",
			Help: "Total number of angle executions by terminal status",
		},
		[]string{"status"},
	)

	AngleExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_angle_execution_duration_seconds",
			Help:    "Single angle execution duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 90, 120},
		},
	)

	// Source registry metrics
	SourcesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_sources_registered_total",
			Help: "Total number of distinct sources registered",
		},
	)

	SourcesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_sources_deduplicated_total",
			Help: "Total number of source registrations collapsed into an existing record",
		},
	)

	// Capability client metrics
	CapabilityCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_capability_calls_total",
			Help: "Outbound capability calls by backend and outcome",
		},
		[]string{"backend", "outcome"}, // backend: llm|retrieval
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prism_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_retrieval_cache_hits_total",
			Help: "Retrieval answer cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_retrieval_cache_misses_total",
			Help: "Retrieval answer cache misses",
		},
	)
)
