package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_cache_hits_total",
			Help: "Total number of cache lookups satisfied without re-extraction",
		},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_cache_misses_total",
			Help: "Total number of cache misses by reason",
		},
		[]string{"reason"}, // "absent", "stale", "schema"
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_cache_evictions_total",
			Help: "Total number of entries evicted from the cache",
		},
		[]string{"policy"}, // "max_bytes", "max_age", "smart", "invalidate", "deleted"
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_store_size_bytes",
			Help: "Size of the on-disk cache store in bytes",
		},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_store_entries",
			Help: "Number of entries in the cache store",
		},
	)
)

// Store query metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_store_queries_total",
			Help: "Total number of store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Extraction metrics
var (
	FilesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_files_processed_total",
			Help: "Total number of files run through the extraction pipeline",
		},
	)

	FilesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_files_skipped_total",
			Help: "Total number of files skipped by failure class",
		},
		[]string{"reason"}, // "stat", "store", "unsupported", "extract", "cancelled"
	)

	ExtractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_extract_duration_seconds",
			Help:    "Metadata extraction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"}, // "image", "video"
	)

	DispatchWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_dispatch_workers",
			Help: "Number of workers in the current dispatch run",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_runs_total",
			Help: "Total number of catalog runs by outcome",
		},
		[]string{"result"}, // "success", "partial_failure", "fatal"
	)
)

// Migration metrics
var (
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_migrations_total",
			Help: "Total number of schema migration attempts",
		},
		[]string{"status"}, // "applied", "failed", "rolled_back", "noop"
	)
)
