package indexer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/media"
	"subtitle-indexer/internal/metrics"
	"subtitle-indexer/internal/status"
)

// Run holds the counters and control flags of one indexing run. Strategies
// drive it through FileDone, WaitIfPaused, Running and SetCurrent and never
// touch the status store directly.
type Run struct {
	Incremental bool
	Strategy    string
	Started     time.Time

	running atomic.Bool
	paused  atomic.Bool

	total     atomic.Int64
	processed atomic.Int64
	cues      atomic.Int64
	failed    atomic.Int64

	store     Store
	processor SubtitleProcessor
	status    *status.Store
	gate      Gate
	pollEvery time.Duration
}

func newRun(o *Orchestrator, incremental bool) *Run {
	r := &Run{
		Incremental: incremental,
		Strategy:    o.strategy.Name(),
		Started:     time.Now(),
		store:       o.store,
		processor:   o.processor,
		status:      o.status,
		gate:        o.cfg.Gate,
		pollEvery:   o.cfg.PausePollInterval,
	}
	r.running.Store(true)
	return r
}

// Running reports whether the run has not been stopped.
func (r *Run) Running() bool {
	return r.running.Load()
}

// Paused reports whether the run is paused.
func (r *Run) Paused() bool {
	return r.paused.Load()
}

// WaitIfPaused blocks while the run is paused, or while the gate holds
// work back, for as long as the run is still running. It returns Running()
// once it stops waiting.
func (r *Run) WaitIfPaused(ctx context.Context) bool {
	for r.running.Load() && (r.paused.Load() || r.held()) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.pollEvery):
		}
	}
	return r.running.Load() && ctx.Err() == nil
}

func (r *Run) held() bool {
	return r.gate != nil && r.gate.UnderPressure()
}

// Total, Processed, Cues and Failed return the current counter values.
func (r *Run) Total() int64     { return r.total.Load() }
func (r *Run) Processed() int64 { return r.processed.Load() }
func (r *Run) Cues() int64      { return r.cues.Load() }
func (r *Run) Failed() int64    { return r.failed.Load() }

func (r *Run) setTotal(n int) {
	r.total.Store(int64(n))
	r.status.Update(func(st *status.State) { st.TotalFiles = int64(n) })
}

// SetCurrent records the file being worked on.
func (r *Run) SetCurrent(path string) {
	r.status.Update(func(st *status.State) { st.CurrentFile = path })
}

// Log writes to the run log.
func (r *Run) Log(level logging.LogLevel, format string, args ...interface{}) {
	r.status.Log(level, format, args...)
}

// FileDone counts a finished file. A nil err counts cues as written.
// Other errors are logged and counted; FileDone returns err only when it
// must abort the run, which is the case for storage errors that survived
// every retry.
func (r *Run) FileDone(path string, cues int, err error) error {
	processed := r.processed.Add(1)
	total := r.cues.Add(int64(cues))

	var msg string
	switch {
	case err == nil:
		metrics.IndexerFilesProcessed.WithLabelValues("success").Inc()
		r.Log(logging.LevelInfo, "Done (%d/%d): %s - %d cues", processed, r.Total(), path, cues)
	default:
		r.failed.Add(1)
		metrics.IndexerFilesProcessed.WithLabelValues("error").Inc()
		msg = err.Error()
		r.Log(logging.LevelError, "Failed (%d/%d): %s: %v", processed, r.Total(), path, err)
	}

	r.status.Update(func(st *status.State) {
		st.ProcessedFiles = processed
		st.SubtitleCount = total
		if msg != "" {
			st.LastError = msg
		}
	})

	if err != nil && database.IsTransient(err) {
		return fmt.Errorf("aborting run at %s: %w", path, err)
	}
	return nil
}

// FileFiltered counts a file skipped by a strategy's filter as processed.
func (r *Run) FileFiltered(path, reason string) {
	processed := r.processed.Add(1)
	metrics.IndexerFilesProcessed.WithLabelValues("filtered").Inc()
	r.Log(logging.LevelInfo, "Skipped (%d/%d): %s: %s", processed, r.Total(), path, reason)
	r.status.Update(func(st *status.State) { st.ProcessedFiles = processed })
}

// registerMedia upserts the media row and clears cues from earlier runs.
func (r *Run) registerMedia(ctx context.Context, c media.Candidate) (int64, error) {
	id, err := r.store.UpsertMedia(ctx, c.MediaPath, c.Size, c.ModTime.Unix())
	if err != nil {
		return 0, fmt.Errorf("registering media: %w", err)
	}
	if _, err := r.store.ClearSubtitlesForMedia(ctx, id); err != nil {
		return 0, fmt.Errorf("clearing old cues: %w", err)
	}
	return id, nil
}

// indexSubtitles processes each subtitle of c and sets has_subtitle.
func (r *Run) indexSubtitles(ctx context.Context, c media.Candidate, mediaID int64) (int, error) {
	written := 0
	for _, sub := range c.SubtitlePaths {
		n, err := r.processor.Process(ctx, sub, mediaID)
		written += n
		if err != nil {
			return written, err
		}
	}

	if err := r.store.SetHasSubtitle(ctx, mediaID, written > 0); err != nil {
		return written, fmt.Errorf("updating has_subtitle: %w", err)
	}
	return written, nil
}

// indexFile registers c and processes its subtitles.
func (r *Run) indexFile(ctx context.Context, c media.Candidate) (int, error) {
	id, err := r.registerMedia(ctx, c)
	if err != nil {
		return 0, err
	}
	return r.indexSubtitles(ctx, c, id)
}
