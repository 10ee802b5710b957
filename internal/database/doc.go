/*
Package database provides SQLite storage for media files, subtitle cues and
the full-text index over cue content.

# Schema

	media          one row per media file, unique by absolute path
	subtitles      cues, ON DELETE CASCADE from media, integer millisecond
	               times plus the "HH:MM:SS,mmm" display text
	subtitles_fts  FTS5 external-content index over subtitles.content
	metadata       key/value bookkeeping (last rebuild, last completed run)

The schema is created idempotently by New. Building requires the fts5 tag:

	go build -tags fts5 ./...

# Index Consistency

InsertCue writes the cue row and its index entry through the same executor,
so a committed cue always has an entry. Deletes go through an AFTER DELETE
trigger, which also covers cascades from media. If the two ever diverge
(a crash between statements outside a transaction, or rows written by other
tools), FTSCounts reports different numbers and EnsureFTSConsistency
rebuilds the index from the cue table in batches.

# Concurrency and Retry

The connection uses WAL with a busy timeout. Writers inside the process
are serialized by a mutex. Errors in the busy/locked/corrupt class are
retried with linear backoff (IsTransient, Options.RetryBackoff). Other
errors are returned immediately.

# Searching

Search supports two modes. SearchExact is a case-insensitive substring
match. SearchRanked is an FTS5 phrase match ordered by bm25. Both modes
compose with a language filter and a cue time window. EstimateTotal applies
the same filters without paging.
*/
package database
