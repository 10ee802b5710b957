package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/media"
	"subtitle-indexer/internal/mediatypes"
	"subtitle-indexer/internal/metrics"
	"subtitle-indexer/internal/status"
	"subtitle-indexer/internal/subtitle"
)

// ErrRunning is returned by operations that cannot run alongside indexing.
var ErrRunning = errors.New("indexing is running")

// Store is the storage the orchestrator writes through.
// *database.Database satisfies it.
type Store interface {
	media.IndexedPathSource
	subtitle.CueWriter
	UpsertMedia(ctx context.Context, path string, size, mtime int64) (int64, error)
	SetHasSubtitle(ctx context.Context, mediaID int64, has bool) error
	ClearSubtitlesForMedia(ctx context.Context, mediaID int64) (int64, error)
	EnsureFTSConsistency(ctx context.Context) (*database.RebuildResult, error)
	RebuildFTS(ctx context.Context, force bool) (*database.RebuildResult, error)
	SetLastIndexCompleted(ctx context.Context, t time.Time) error
}

// SubtitleProcessor stores the cues of one subtitle file.
type SubtitleProcessor interface {
	Process(ctx context.Context, path string, mediaID int64) (int, error)
}

// Gate holds back new files while UnderPressure returns true.
// *memory.Monitor satisfies it.
type Gate interface {
	UnderPressure() bool
}

// Config configures an Orchestrator.
type Config struct {
	MediaDir string
	// Strategy is one of the Strategy* names. Empty means standard.
	Strategy        string
	MaxWorkers      int
	MinEnglishRatio float64

	MediaExtensions   mediatypes.ExtensionSet
	SubtitleExtension string

	// PausePollInterval is how often a paused run checks whether it was
	// resumed or stopped. Defaults to one second.
	PausePollInterval time.Duration

	// Gate, when set, is consulted before each file.
	Gate Gate

	// Processor tunes subtitle processing. Running, OnRetry and Log are
	// set by the orchestrator.
	Processor subtitle.Options
}

// Result is the outcome of a control operation.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func accepted() Result { return Result{Accepted: true} }

func rejected(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Orchestrator owns the single indexing run: it starts the scan and
// strategy pipeline in the background and handles pause, resume and stop.
type Orchestrator struct {
	store     Store
	status    *status.Store
	processor SubtitleProcessor
	scanner   *media.Scanner
	strategy  Strategy
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	run    *Run
	done   chan struct{}
	closed bool
}

// New creates an Orchestrator. A persisted run left behind by a previous
// process is reset to idle before New returns.
func New(store Store, st *status.Store, cfg Config) (*Orchestrator, error) {
	if cfg.PausePollInterval <= 0 {
		cfg.PausePollInterval = time.Second
	}
	if len(cfg.MediaExtensions) == 0 {
		cfg.MediaExtensions = mediatypes.NewExtensionSet(mediatypes.DefaultMediaExtensions...)
	}
	if cfg.SubtitleExtension == "" {
		cfg.SubtitleExtension = mediatypes.DefaultSubtitleExtension
	}

	strategy, err := NewStrategy(cfg.Strategy, cfg.MaxWorkers, cfg.MinEnglishRatio)
	if err != nil {
		return nil, err
	}

	if reset, err := st.RecoverStale(); err != nil {
		return nil, fmt.Errorf("failed to reset stale indexing status: %w", err)
	} else if reset {
		logging.Warn("Stale indexing run found at startup, status reset to idle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:    store,
		status:   st,
		scanner:  media.NewScanner(store),
		strategy: strategy,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}

	popts := cfg.Processor
	popts.Running = o.running
	popts.OnRetry = func() {
		st.Update(func(s *status.State) { s.RetryCount++ })
	}
	popts.Log = st.Log
	o.processor = subtitle.NewProcessor(store, &popts)

	logging.Info("Indexer ready: strategy=%s, media dir=%s", strategy.Name(), cfg.MediaDir)
	return o, nil
}

// running reports whether the current run, if any, is still running.
func (o *Orchestrator) running() bool {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	return r != nil && r.Running()
}

// Busy reports whether a run is in progress, paused or still stopping.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run != nil
}

// Start begins a run. A paused run is resumed instead.
func (o *Orchestrator) Start(incremental bool) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return rejected("indexer is shutting down")
	}
	if r := o.run; r != nil {
		switch {
		case r.Running() && r.Paused():
			return o.resumeLocked()
		case r.Running():
			return rejected("indexing is already running")
		default:
			return rejected("previous indexing run is still stopping")
		}
	}
	if pid, ok := o.status.LiveOwner(); ok {
		return rejected("indexing is already running in process %d", pid)
	}

	run := newRun(o, incremental)
	mode := status.ModeFull
	if incremental {
		mode = status.ModeIncremental
	}

	err := o.status.UpdateNow(func(st *status.State) {
		st.IsIndexing = true
		st.IsPaused = false
		st.PID = os.Getpid()
		st.TotalFiles = 0
		st.ProcessedFiles = 0
		st.SubtitleCount = 0
		st.CurrentFile = ""
		st.LogMessages = []string{}
		st.StartTime = run.Started
		st.LastError = ""
		st.RetryCount = 0
		st.StatusMessage = ""
		st.Phase = status.PhaseRunning
		st.Mode = mode
		st.Strategy = run.Strategy
	})
	if err != nil {
		logging.Error("Failed to save indexing status: %v", err)
		return rejected("failed to save indexing status: %v", err)
	}

	o.run = run
	done := make(chan struct{})
	o.done = done

	go func() {
		defer close(done)
		o.pipeline(o.ctx, run)

		o.mu.Lock()
		o.run = nil
		o.mu.Unlock()
	}()

	return accepted()
}

// Pause stops dispatching new files. Files already in progress finish.
func (o *Orchestrator) Pause() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.run
	if r == nil || !r.Running() {
		return rejected("indexing is not running")
	}
	if r.Paused() {
		return rejected("indexing is already paused")
	}

	r.paused.Store(true)
	r.Log(logging.LevelInfo, "Indexing paused")
	o.saveNow(func(st *status.State) {
		st.IsPaused = true
		st.Phase = status.PhasePaused
	})
	return accepted()
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumeLocked()
}

func (o *Orchestrator) resumeLocked() Result {
	r := o.run
	if r == nil || !r.Running() || !r.Paused() {
		return rejected("indexing is not paused")
	}

	r.paused.Store(false)
	r.Log(logging.LevelInfo, "Indexing resumed")
	o.saveNow(func(st *status.State) {
		st.IsPaused = false
		st.Phase = status.PhaseRunning
	})
	return accepted()
}

// Stop asks the run to finish at the next file boundary. It does not wait;
// use Wait for that.
func (o *Orchestrator) Stop() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.run
	if r == nil || !r.Running() {
		return rejected("indexing is not running")
	}

	r.running.Store(false)
	r.paused.Store(false)
	r.Log(logging.LevelInfo, "Stop requested, finishing current work")
	o.saveNow(func(st *status.State) {
		st.IsPaused = false
		st.StatusMessage = "stopping"
	})
	return accepted()
}

// Status returns the current status with derived progress and ETA.
func (o *Orchestrator) Status() status.Snapshot {
	return o.status.Snapshot()
}

// ResetStatus returns a finished or abandoned status to idle.
func (o *Orchestrator) ResetStatus() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != nil {
		return rejected("cannot reset status while indexing is running")
	}
	if pid, ok := o.status.LiveOwner(); ok {
		return rejected("cannot reset status while process %d is indexing", pid)
	}
	if err := o.status.Reset("reset by request"); err != nil {
		return rejected("failed to reset status: %v", err)
	}
	return accepted()
}

// RebuildIndex reconciles the full-text index with the cue table, or
// rebuilds it unconditionally when force is set. It returns ErrRunning
// while a run is active.
func (o *Orchestrator) RebuildIndex(ctx context.Context, force bool) (*database.RebuildResult, error) {
	o.mu.Lock()
	active := o.run != nil
	o.mu.Unlock()
	if active {
		return nil, ErrRunning
	}
	return o.store.RebuildFTS(ctx, force)
}

// Wait blocks until the current run, if any, has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops any run, cancels in-flight storage work and waits for the
// pipeline to exit. Start is rejected afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if r := o.run; r != nil {
		r.running.Store(false)
		r.paused.Store(false)
	}
	o.mu.Unlock()

	o.cancel()
	o.Wait()
}

func (o *Orchestrator) saveNow(fn func(*status.State)) {
	if err := o.status.UpdateNow(fn); err != nil {
		logging.Warn("Failed to save indexing status: %v", err)
	}
}

func (o *Orchestrator) pipeline(ctx context.Context, run *Run) {
	metrics.IndexerIsRunning.Set(1)
	o.status.StartHeartbeat()

	mode := "full"
	if run.Incremental {
		mode = "incremental"
	}
	run.Log(logging.LevelInfo, "Starting %s indexing of %s (strategy: %s)", mode, o.cfg.MediaDir, run.Strategy)

	phase, runErr := o.execute(ctx, run)
	run.running.Store(false)
	run.paused.Store(false)

	duration := time.Since(run.Started)
	var msg string
	switch phase {
	case status.PhaseFailed:
		msg = fmt.Sprintf("failed: %v", runErr)
		run.Log(logging.LevelError, "Indexing failed after %v: %v", duration.Round(time.Second), runErr)
	case status.PhaseStopped:
		msg = fmt.Sprintf("stopped after %d of %d files", run.Processed(), run.Total())
		run.Log(logging.LevelWarn, "Indexing stopped: %d of %d files processed, %d cues", run.Processed(), run.Total(), run.Cues())
	default:
		msg = fmt.Sprintf("completed: %d files, %d cues", run.Processed(), run.Cues())
		run.Log(logging.LevelInfo, "Indexing completed in %v: %d files, %d cues, %d failed",
			duration.Round(time.Second), run.Processed(), run.Cues(), run.Failed())
	}

	o.status.StopHeartbeat()
	o.saveNow(func(st *status.State) {
		st.IsIndexing = false
		st.IsPaused = false
		st.PID = 0
		st.CurrentFile = ""
		st.ProcessedFiles = run.Processed()
		st.SubtitleCount = run.Cues()
		st.Phase = phase
		st.StatusMessage = msg
		if runErr != nil {
			st.LastError = runErr.Error()
		}
	})

	metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.WithLabelValues(run.Strategy, string(phase)).Inc()
	metrics.IndexerRunDuration.Observe(duration.Seconds())
	if phase == status.PhaseCompleted {
		metrics.IndexerLastRunTimestamp.SetToCurrentTime()
	}
}

// execute scans and hands the result to the strategy. It returns the final
// phase and, for PhaseFailed, the cause.
func (o *Orchestrator) execute(ctx context.Context, run *Run) (status.Phase, error) {
	res, err := o.scanner.Scan(ctx, o.cfg.MediaDir, media.ScanOptions{
		Incremental:       run.Incremental,
		MediaExtensions:   o.cfg.MediaExtensions,
		SubtitleExtension: o.cfg.SubtitleExtension,
	}, run.Running)
	if err != nil {
		return status.PhaseFailed, err
	}

	candidates := make([]media.Candidate, 0, len(res.Candidates)+len(res.Orphans))
	candidates = append(candidates, res.Candidates...)
	candidates = append(candidates, res.Orphans...)
	run.setTotal(len(candidates))

	run.Log(logging.LevelInfo, "Found %d media files with subtitles and %d without", len(res.Candidates), len(res.Orphans))
	if res.Skipped > 0 {
		run.Log(logging.LevelInfo, "Skipped %d already indexed files", res.Skipped)
	}

	if err := o.strategy.Process(ctx, run, candidates); err != nil {
		return status.PhaseFailed, err
	}

	if res.Interrupted || ctx.Err() != nil || run.Processed() < run.Total() {
		return status.PhaseStopped, nil
	}
	return o.complete(ctx, run)
}

func (o *Orchestrator) complete(ctx context.Context, run *Run) (status.Phase, error) {
	run.SetCurrent("")
	run.Log(logging.LevelInfo, "Checking full-text index consistency")

	result, err := o.store.EnsureFTSConsistency(ctx)
	if err != nil {
		return status.PhaseFailed, fmt.Errorf("full-text index check: %w", err)
	}
	if result.Rebuilt {
		run.Log(logging.LevelInfo, "Full-text index rebuilt: %d of %d cues indexed", result.IndexedCount, result.TotalCount)
	}
	if !result.OK {
		return status.PhaseFailed, fmt.Errorf("full-text index has %d entries for %d cues", result.IndexedCount, result.TotalCount)
	}

	if err := o.store.SetLastIndexCompleted(ctx, time.Now()); err != nil {
		run.Log(logging.LevelWarn, "Failed to record completion time: %v", err)
	}
	return status.PhaseCompleted, nil
}
