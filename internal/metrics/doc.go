// Package metrics provides Prometheus instrumentation for the subtitle indexer.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "subtitle_indexer_".
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests for the JSON API
//   - Database: query counts and durations, retries on busy/locked errors,
//     transaction durations, connection and file size gauges
//   - Full-text index: rebuild counts and durations, entry gauge
//   - Indexer: runs by strategy and phase, files processed, cues written,
//     per-file processing time and the encoding that decoded each file
//   - Search: queries by mode and results per page
//   - Jobs: terminal transitions by type and status, active job gauge
//   - Filesystem: stale NFS handle retries
//
// The Collector polls a StatsProvider (the database) on an interval and
// publishes store-level gauges.
package metrics
