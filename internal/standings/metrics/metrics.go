package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed tracks finished calculation jobs per terminal result
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standings_jobs_processed_total",
			Help: "Total number of calculation jobs that reached a terminal state",
		},
		[]string{"result"},
	)

	// JobRetries tracks scheduled retries per error type
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standings_job_retries_total",
			Help: "Total number of job retries scheduled",
		},
		[]string{"error_type"},
	)

	// JobDuration tracks job execution latency
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "standings_job_duration_seconds",
			Help:    "Calculation job execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueueDepth tracks pending jobs
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "standings_queue_depth",
			Help: "Number of pending calculation jobs",
		},
	)

	// DeadLetterSize tracks jobs awaiting manual intervention
	DeadLetterSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "standings_dead_letter_size",
			Help: "Number of jobs in the dead-letter set",
		},
	)

	// CacheHits tracks cache hits per key kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standings_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	// CacheMisses tracks cache misses per key kind
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standings_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)

	// SnapshotsCreated tracks snapshot captures
	SnapshotsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standings_snapshots_created_total",
			Help: "Total number of snapshots created",
		},
	)

	// SnapshotsRestored tracks snapshot restores
	SnapshotsRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standings_snapshots_restored_total",
			Help: "Total number of snapshots restored",
		},
	)

	// BreakerState tracks circuit breaker state per operation
	// (0 closed, 1 open, 2 half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "standings_circuit_breaker_state",
			Help: "Circuit breaker state per operation",
		},
		[]string{"operation"},
	)

	// DBConnectionPoolUsage tracks connection pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "standings_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
