/*
Package workers sizes worker pools in containerized environments.

runtime.NumCPU reports the host's CPU count, while GOMAXPROCS follows the
container's CPU limit. Count and its helpers derive pool sizes from
GOMAXPROCS so the parallel indexing strategy does not oversubscribe a
constrained pod.

	workers := workers.ForIO(8) // 2 per CPU, at most 8

Set INDEX_WORKERS to pin the count. The limit still applies.
*/
package workers
