package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed record outcomes.
const (
	OutcomeAccepted   = "accepted"
	OutcomeExcluded   = "excluded"
	OutcomeParseFault = "parse_fault"
	OutcomeDuplicate  = "duplicate"
)

var (
	// Feed metrics
	FeedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webshop_feed_records_total",
			Help: "Total number of feed lines by outcome",
		},
		[]string{"outcome"},
	)

	// Ingest metrics
	IngestRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webshop_ingest_rows_total",
			Help: "Total number of sessionized rows written to the store",
		},
	)

	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webshop_ingest_batches_total",
			Help: "Total number of store batches by status",
		},
		[]string{"status"},
	)

	LastLoadSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webshop_last_load_sessions",
			Help: "Number of sessions produced by the most recent load",
		},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webshop_store_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// Cache metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webshop_metrics_cache_lookups_total",
			Help: "Order metrics cache lookups by result",
		},
		[]string{"result"},
	)
)
