/*
Package status persists the state of the indexing run.

The Store keeps a State in memory and mirrors it to indexing_status.json in
the data directory. Frequent updates (per-file counters, log lines) are
debounced to one write per second; phase changes use UpdateNow. Each write
goes to a temporary file that is synced and renamed over the status file,
under an advisory lock on "<file>.lock" so a CLI run and a server do not
interleave writes.

While a run is active a heartbeat refreshes last_updated every 30 seconds.
At startup RecoverStale resets any run left marked as indexing: a new
process never owns a run it did not start.
*/
package status
