// Package main provides the entry point for the Subtitle Indexer server.
//
// Subtitle Indexer walks a media library, pairs every media file with its
// SRT subtitle, stores the cues in SQLite and serves full-text search over
// them through a JSON API.
//
// # Application Lifecycle
//
// The application follows a structured initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from GOMEMLIMIT or MEMORY_LIMIT
//  2. Configuration Loading: .env file, optional TOML file, environment
//  3. Database Initialization: Opens SQLite with the FTS5 cue index
//  4. Component Initialization:
//     - Status Store: Loads indexing_status.json and resets stale runs
//     - Memory Monitor: Holds back new files under heap pressure
//     - Indexer: Runs the configured indexing strategy on request
//     - Scheduler: Starts incremental runs on INDEX_SCHEDULE
//     - Job Manager: Tracks index rebuilds and maintenance jobs
//     - Metrics Collector: Publishes store gauges every minute
//  5. HTTP Server Setup: Routes, logging, metrics and gzip middleware
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - Indexing control under /api/index
//     - Search under /api/search
//     - Jobs, stats, per-media subtitles and maintenance
//     - /health, /livez, /readyz and /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Liveness endpoint (/health)
//
// # Environment Variables
//
//   - MEDIA_DIR: Root directory containing media files (required)
//   - DATA_DIR: Directory for the database and status file
//   - CONFIG_FILE: Optional TOML configuration file
//   - PORT, METRICS_PORT, METRICS_ENABLED
//   - INDEX_STRATEGY: standard, batch, parallel or delayed_language
//   - INDEX_WORKERS, INDEX_SCHEDULE, INDEX_ON_START
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//   - GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests
//  2. Shut down the metrics server
//  3. Stop the scheduler and wait for a running trigger
//  4. Stop the indexer; files in progress finish or are cancelled
//  5. Stop the metrics collector and memory monitor
//  6. Flush the indexing status file
//  7. Close the database
//
// # Build Requirements
//
// SQLite FTS5 needs CGO and the fts5 build tag:
//
//	go build -tags 'fts5' -o subtitle-indexer ./cmd/subtitle-indexer
package main
