package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_db_retries_total",
			Help: "Database operations retried after a busy, locked or corrupt error",
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"result"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_db_size_bytes",
			Help: "Size of the SQLite database file in bytes",
		},
	)
)

// Full-text index metrics
var (
	FTSRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_fts_rebuilds_total",
			Help: "Full-text index rebuilds by outcome",
		},
		[]string{"status"},
	)

	FTSRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_fts_rebuild_duration_seconds",
			Help:    "Duration of full-text index rebuilds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	FTSEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_fts_entries",
			Help: "Number of entries in the full-text index",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_indexer_runs_total",
			Help: "Indexing runs by strategy and final phase",
		},
		[]string{"strategy", "phase"},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_indexer_running",
			Help: "Whether an indexing run is in progress (1) or not (0)",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_indexer_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed indexing run",
		},
	)

	IndexerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_indexer_run_duration_seconds",
			Help:    "Duration of indexing runs",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		},
	)

	IndexerFilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_files_processed_total",
			Help: "Media files processed by outcome",
		},
		[]string{"status"},
	)

	IndexerCuesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_cues_written_total",
			Help: "Subtitle cues written to the store",
		},
	)

	ScannerFilesDiscovered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_scanner_candidates",
			Help: "Candidates discovered by the last scan",
		},
	)

	SubtitleParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_subtitle_process_duration_seconds",
			Help:    "Time spent processing one subtitle file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		},
	)

	SubtitleEncodingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_subtitle_encoding_total",
			Help: "Encoding that successfully decoded a subtitle file",
		},
		[]string{"encoding"},
	)
)

// Store content gauges, updated by the Collector
var (
	MediaFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_media_files",
			Help: "Media files in the store by subtitle availability",
		},
		[]string{"has_subtitle"},
	)

	SubtitleCuesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_subtitle_cues",
			Help: "Subtitle cues in the store",
		},
	)
)

// Search metrics
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_search_queries_total",
			Help: "Search queries by mode",
		},
		[]string{"mode"},
	)

	SearchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subtitle_indexer_search_results",
			Help:    "Number of results returned per search page",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
	)
)

// Job manager metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_jobs_total",
			Help: "Jobs reaching a terminal state by type and status",
		},
		[]string{"type", "status"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_jobs_active",
			Help: "Jobs currently pending or running",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_indexer_memory_pressure",
			Help: "Whether new indexing work is held back for memory (1) or not (0)",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_filesystem_retry_attempts_total",
			Help: "Retry attempts for filesystem operations that hit a stale NFS handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_indexer_filesystem_stale_errors_total",
			Help: "ESTALE errors seen by filesystem operations",
		},
		[]string{"operation"},
	)
)
