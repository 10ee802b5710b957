// Package startup handles configuration loading and the startup and
// shutdown log output.
//
// # Configuration
//
// [Load] layers configuration in increasing precedence:
//
//  1. [Defaults]
//  2. a TOML file named by CONFIG_FILE
//  3. a .env file (path from ENV_FILE, default ".env"); it never overrides
//     variables already in the environment
//  4. environment variables
//
// The environment variables are:
//
//   - MEDIA_DIR: media tree to index (default: /media)
//   - DATA_DIR: holds subtitles.db and indexing_status.json (default: /data)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - INDEX_STRATEGY: standard, batch, parallel or delayed_language (default: standard)
//   - INDEX_WORKERS: worker count for the parallel strategy (default: derived from CPUs)
//   - INDEX_SCHEDULE: cron expression for incremental runs, e.g. "@every 6h" (default: disabled)
//   - INDEX_ON_START: run an incremental index at startup (default: false)
//   - MEDIA_EXTENSIONS: comma separated media extensions (default: .mp4,.mkv,.avi,.mov,.wmv)
//   - SUBTITLE_EXTENSION: subtitle extension (default: .srt)
//   - MIN_ENGLISH_RATIO: threshold of the delayed_language strategy (default: 0.7)
//   - MAX_PROCESSING_TIME: per-file processing budget as Go duration (default: 10m)
//   - DETECT_LANGUAGE: tag cues with their detected language (default: false)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_HEALTH_CHECKS: log health check requests (default: true)
//
// The TOML file uses the same names in lower case, with the INDEX_ settings
// in an [index] table:
//
//	media_dir = "/srv/media"
//	data_dir = "/var/lib/subtitle-indexer"
//
//	[index]
//	strategy = "parallel"
//	workers = 4
//	schedule = "0 3 * * *"
//	max_processing_time = "5m"
//
// [LoadConfig] additionally prints the banner, logs the effective values
// and runs [PrepareDirectories]: the data directory must exist or be
// creatable and must be writable; the media directory is only checked.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: database initialization timing
//   - [LogIndexerInit], [LogIndexerStarted]: indexer settings
//   - [LogSchedulerInit]: the incremental index schedule
//   - [LogHTTPRoutes]: registered HTTP routes (debug level)
//   - [LogServerStarted]: server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStepComplete], [LogShutdownComplete]
package startup
