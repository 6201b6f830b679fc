package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail cache metrics
var (
	ThumbnailLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_lookups_total",
			Help: "Thumbnail lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "fail", "cache_only_miss", "generated", "generate_failed"
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_generations_total",
			Help: "Thumbnail generation attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failed", "settled", "restored", "write_error"
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_generation_phase_duration_seconds",
			Help:    "Duration of thumbnail generation phases in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"phase"}, // "decode", "resize", "encode", "total"
	)

	ThumbnailDecodeByCodec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_decodes_total",
			Help: "Source decodes by codec and status",
		},
		[]string{"codec", "status"},
	)

	ThumbnailFailSentinels = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_fail_sentinels_written_total",
			Help: "Number of fail sentinels written for unreadable sources",
		},
	)

	ThumbnailInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_invalidations_total",
			Help: "Number of cache keys invalidated",
		},
	)

	ThumbnailRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_rotations_total",
			Help: "Source rotations by status",
		},
		[]string{"status"}, // "success", "error", "invalid"
	)

	ThumbnailGenerationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_generations_in_flight",
			Help: "Number of thumbnail generations currently running",
		},
	)

	ThumbnailCacheFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbcache_cache_files",
			Help: "Number of cached files per tier",
		},
		[]string{"tier"},
	)

	ThumbnailCacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbcache_cache_bytes",
			Help: "Bytes on disk per tier",
		},
		[]string{"tier"},
	)

	IndexedImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_indexed_images",
			Help: "Number of images known to the image database",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_db_query_total",
			Help: "Total number of image database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_db_query_duration_seconds",
			Help:    "Image database query duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_db_connections_open",
			Help: "Open connections to the image database",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_indexer_runs_total",
			Help: "Total number of image index runs",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_indexer_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed index run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_indexer_last_run_duration_seconds",
			Help: "Duration of the last completed index run",
		},
	)

	IndexerImagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_indexer_images_processed_total",
			Help: "Total number of images written to the index",
		},
	)

	IndexerImagesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_indexer_images_removed_total",
			Help: "Total number of index rows removed because the file disappeared",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_indexer_errors_total",
			Help: "Total number of index run errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_indexer_running",
			Help: "Whether an index run is in progress (1) or not (0)",
		},
	)

	IndexerPollChangesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_indexer_poll_changes_detected_total",
			Help: "Number of change-detection polls that triggered a re-index",
		},
	)
)

// Batch metrics
var (
	BatchRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_batch_runs_total",
			Help: "Number of batch population runs",
		},
	)

	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_batch_items_total",
			Help: "Batch items by how they were resolved",
		},
		[]string{"result"}, // "cached", "generated", "failed", "skipped"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_filesystem_operation_duration_seconds",
			Help:    "Duration of source filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_operation_errors_total",
			Help: "Source filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_attempts_total",
			Help: "Retries caused by NFS stale file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_filesystem_retry_duration_seconds",
			Help:    "Total time spent in an operation including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_memory_paused",
			Help: "Whether batch generation is paused for memory (1 = paused)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbcache_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version", "vips"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string, vips bool) {
	v := "false"
	if vips {
		v = "true"
	}
	AppInfo.WithLabelValues(version, commit, goVersion, v).Set(1)
}
