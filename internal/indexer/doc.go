// Package indexer runs indexing of the media tree into the subtitle store.
//
// An Orchestrator owns at most one run at a time and moves it through
// these phases:
//
//	idle -> running <-> paused -> completed | stopped | failed -> idle
//
// Each run scans the media root, then hands the candidates to a Strategy:
//   - standard: one file at a time in scan order
//   - batch: register every media row first, then process subtitles
//   - parallel: subtitles processed by a bounded worker group, results
//     recorded in submission order
//   - delayed_language: drop subtitles that are not mostly English words,
//     then process the rest in order
//
// For every file the run upserts the media row, clears its old cues, writes
// the cues of each subtitle and sets has_subtitle. Re-indexing a file
// therefore replaces its cues instead of duplicating them.
//
// Pause and stop are cooperative: they are observed between files, and
// files already in progress finish. Progress is mirrored into the status
// store so a restarted process can detect and reset an abandoned run.
package indexer
