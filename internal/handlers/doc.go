// Package handlers provides the JSON HTTP API of the subtitle indexer.
//
// It includes handlers for:
//   - Indexing control (start, pause, resume, stop, reset, status)
//   - Full-text index rebuilds and storage maintenance, run as jobs
//   - Subtitle search and result-count estimates
//   - Job inspection and cancellation
//   - Store statistics and per-media subtitle listings
//   - Health, liveness, readiness and version
package handlers
