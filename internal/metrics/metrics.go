package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine counters and histograms, partitioned by chain.

var (
	// Source (attestation indexer) calls
	SourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "source",
		Name:      "requests_total",
		Help:      "Total attestation source requests by outcome",
	}, []string{"chain", "method", "status"})

	SourceRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "astral",
		Subsystem: "source",
		Name:      "request_duration_seconds",
		Help:      "Attestation source request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"chain", "method"})

	SourceRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "source",
		Name:      "rate_limit_waits_total",
		Help:      "Requests delayed by the per-chain rate limiter",
	}, []string{"chain"})

	SourceWindowClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "source",
		Name:      "window_clamped_total",
		Help:      "Fetch windows whose lower bound was clamped to the transport maximum",
	}, []string{"chain"})

	SourceCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "source",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// Ingester
	IngesterPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "passes_total",
		Help:      "Total per-chain ingestion passes by result",
	}, []string{"chain", "result"})

	IngesterRecordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "records_fetched_total",
		Help:      "Total attestation records fetched from sources",
	}, []string{"chain"})

	IngesterProofsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "proofs_stored_total",
		Help:      "Total normalized proofs newly stored",
	}, []string{"chain"})

	IngesterRecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "records_skipped_total",
		Help:      "Records not stored, by reason",
	}, []string{"chain", "reason"})

	IngesterFetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "fetch_retries_total",
		Help:      "Fetch attempts retried after a transient failure",
	}, []string{"chain"})

	IngesterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "errors_total",
		Help:      "Total failed ingestion passes (after retry exhaustion)",
	}, []string{"chain"})

	IngesterLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "astral",
		Subsystem: "ingester",
		Name:      "pass_duration_seconds",
		Help:      "Per-chain ingestion pass duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"chain"})

	PipelineCheckpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "pipeline",
		Name:      "checkpoint_unix",
		Help:      "Current per-chain watermark (unix seconds)",
	}, []string{"chain"})

	// Seen-uid cache
	SeenCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "cache",
		Name:      "seen_hits_total",
		Help:      "Existence checks answered by the seen-uid cache",
	}, []string{"chain"})

	SeenCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "cache",
		Name:      "seen_misses_total",
		Help:      "Existence checks that fell through to the record store",
	}, []string{"chain"})

	// Reconciliation
	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "reconciliation",
		Name:      "runs_total",
		Help:      "Total revocation reconciliation runs",
	}, []string{"chain", "strategy"})

	ReconciliationRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "reconciliation",
		Name:      "revoked_total",
		Help:      "Proofs newly marked revoked",
	}, []string{"chain", "strategy"})

	ReconciliationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Failed reconciliation runs",
	}, []string{"chain", "strategy"})

	ReconciliationPageSaturated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "reconciliation",
		Name:      "page_saturated_total",
		Help:      "Push reconciliations whose revoked-id page was full",
	}, []string{"chain"})

	// Scheduler
	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Scheduled passes started",
	}, []string{"kind"})

	SchedulerTicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "scheduler",
		Name:      "ticks_skipped_total",
		Help:      "Scheduled ticks skipped because a pass of the same kind was running",
	}, []string{"kind"})

	SchedulerPassLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "astral",
		Subsystem: "scheduler",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a full pass across all chains",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	SchedulerManualTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "scheduler",
		Name:      "manual_triggers_total",
		Help:      "Manual triggers by result",
	}, []string{"kind", "result"})

	// Stores
	StoreFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "store",
		Name:      "fallback_total",
		Help:      "Operations served by the secondary store after a primary failure",
	}, []string{"store", "op"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Store operation failures by backend",
	}, []string{"backend", "op"})

	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Open connections in the database pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Connections currently in use",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Idle connections in the pool",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Total number of connections waited for",
	})

	DBPoolWaitDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "postgres",
		Name:      "db_pool_wait_duration_seconds",
		Help:      "Total time blocked waiting for a new connection",
	})

	// Health
	PipelineHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "pipeline",
		Name:      "health_status",
		Help:      "Per-chain sync health (1=healthy, 0.5=degraded, 0=unhealthy)",
	}, []string{"chain"})

	PipelineConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "astral",
		Subsystem: "pipeline",
		Name:      "consecutive_failures",
		Help:      "Consecutive failed passes per chain",
	}, []string{"chain"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by cooldown",
	}, []string{"channel", "alert_type"})

	// Admin
	AdminRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "astral",
		Subsystem: "admin",
		Name:      "requests_total",
		Help:      "Admin API requests by route and status code",
	}, []string{"route", "code"})
)
