// Package memory sets GOMEMLIMIT from the container memory limit and gives
// the indexer a backpressure signal when the heap nears that limit.
//
// Call [ConfigureFromEnv] early in main. It reads:
//
//   - GOMEMLIMIT: the standard Go variable. When set it wins and nothing
//     else is configured.
//   - MEMORY_LIMIT: the container limit in bytes, usually injected through
//     the Kubernetes Downward API (resourceFieldRef limits.memory).
//   - MEMORY_RATIO: the share of MEMORY_LIMIT given to the Go heap, between
//     0 and 1 (default 0.85).
//
// A [Monitor] samples heap usage on an interval. Once usage crosses the
// critical mark it reports pressure until usage falls back below the high
// mark. The indexing pipeline checks [Monitor.UnderPressure] between files
// and holds new work while it is true.
package memory
