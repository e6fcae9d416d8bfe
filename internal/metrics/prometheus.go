package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_trades_imported_total",
			Help: "Number of canonical trades upserted by exchange",
		},
		[]string{"exchange"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncengine_sync_duration_seconds",
			Help:    "Duration of a per-connection sync job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"exchange"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_sync_errors_total",
			Help: "Number of sync jobs that ended in failed status, by exchange and error kind",
		},
		[]string{"exchange", "kind"},
	)

	SyncJobsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_sync_jobs_skipped_total",
			Help: "Number of sync triggers skipped because a job was already in progress",
		},
		[]string{"exchange"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncengine_circuit_breaker_state",
			Help: "Circuit breaker state per exchange (0=closed, 1=half-open, 2=open)",
		},
		[]string{"exchange"},
	)

	TradesDeduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_trades_deduped_total",
			Help: "Number of candidate trades dropped because their exchange_trade_id was already persisted",
		},
		[]string{"exchange"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_records_dropped_total",
			Help: "Number of LogicalTrades dropped by the normalizer's validity filter",
		},
		[]string{"exchange"},
	)
)
