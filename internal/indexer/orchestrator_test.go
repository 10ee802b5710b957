package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/status"
)

const englishSRT = `1
00:00:01,000 --> 00:00:02,000
hello world

2
00:00:03,000 --> 00:00:04,500
see you later
`

const koreanSRT = `1
00:00:01,000 --> 00:00:02,000
안녕하세요 여러분

2
00:00:03,000 --> 00:00:04,000
다음에 또 만나요
`

type testEnv struct {
	db       *database.Database
	status   *status.Store
	mediaDir string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "test.db"), &database.Options{RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := status.NewStore(filepath.Join(dir, status.FileName), &status.Options{Debounce: 10 * time.Millisecond})
	t.Cleanup(func() { _ = st.Close() })

	mediaDir := filepath.Join(dir, "media")
	if err := os.Mkdir(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return &testEnv{db: db, status: st, mediaDir: mediaDir}
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.mediaDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) orchestrator(t *testing.T, strategy string) *Orchestrator {
	t.Helper()
	o, err := New(e.db, e.status, Config{
		MediaDir:          e.mediaDir,
		Strategy:          strategy,
		MaxWorkers:        2,
		PausePollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func runToEnd(t *testing.T, o *Orchestrator, incremental bool) status.Snapshot {
	t.Helper()
	if res := o.Start(incremental); !res.Accepted {
		t.Fatalf("Start(%v) rejected: %s", incremental, res.Reason)
	}
	o.Wait()
	return o.Status()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// blockingProcessor holds each Process call until a token arrives on release.
type blockingProcessor struct {
	started chan string
	release chan struct{}
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{
		started: make(chan string, 16),
		release: make(chan struct{}, 16),
	}
}

func (p *blockingProcessor) Process(ctx context.Context, path string, _ int64) (int, error) {
	p.started <- path
	select {
	case <-p.release:
		return 1, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *blockingProcessor) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case path := <-p.started:
		return path
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subtitle processing to start")
		return ""
	}
}

func TestTwoFileScenario(t *testing.T) {
	env := setupEnv(t)
	withSub := env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)
	noSub := env.writeFile(t, "b.mkv", "video")

	o := env.orchestrator(t, StrategyStandard)
	snap := runToEnd(t, o, false)

	if snap.Phase != status.PhaseCompleted {
		t.Fatalf("Phase = %s, want %s (last error %q)", snap.Phase, status.PhaseCompleted, snap.LastError)
	}
	if snap.IsIndexing {
		t.Error("IsIndexing = true after completion")
	}
	if snap.TotalFiles != 2 || snap.ProcessedFiles != 2 {
		t.Errorf("files = %d/%d, want 2/2", snap.ProcessedFiles, snap.TotalFiles)
	}
	if snap.SubtitleCount != 2 {
		t.Errorf("SubtitleCount = %d, want 2", snap.SubtitleCount)
	}
	if snap.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %d, want 100", snap.ProgressPercent)
	}

	ctx := context.Background()
	m, err := env.db.GetMediaByPath(ctx, withSub)
	if err != nil {
		t.Fatalf("GetMediaByPath(%s) error = %v", withSub, err)
	}
	if !m.HasSubtitle {
		t.Errorf("%s HasSubtitle = false, want true", withSub)
	}

	m, err = env.db.GetMediaByPath(ctx, noSub)
	if err != nil {
		t.Fatalf("GetMediaByPath(%s) error = %v", noSub, err)
	}
	if m.HasSubtitle {
		t.Errorf("%s HasSubtitle = true, want false", noSub)
	}

	cues, indexed, err := env.db.FTSCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cues != 2 || indexed != 2 {
		t.Errorf("FTSCounts() = %d, %d, want 2, 2", cues, indexed)
	}
}

func TestIncrementalRunIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)
	env.writeFile(t, "b.mkv", "video")

	o := env.orchestrator(t, StrategyStandard)
	first := runToEnd(t, o, true)
	if first.ProcessedFiles != 2 {
		t.Fatalf("first run ProcessedFiles = %d, want 2", first.ProcessedFiles)
	}

	second := runToEnd(t, o, true)
	if second.Phase != status.PhaseCompleted {
		t.Fatalf("second run Phase = %s, want %s", second.Phase, status.PhaseCompleted)
	}
	if second.Mode != status.ModeIncremental {
		t.Errorf("Mode = %s, want %s", second.Mode, status.ModeIncremental)
	}
	if second.TotalFiles != 0 || second.ProcessedFiles != 0 {
		t.Errorf("second run files = %d/%d, want 0/0", second.ProcessedFiles, second.TotalFiles)
	}
}

func TestFullRerunDoesNotDuplicateCues(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)

	o := env.orchestrator(t, StrategyStandard)
	runToEnd(t, o, false)
	snap := runToEnd(t, o, false)
	if snap.SubtitleCount != 2 {
		t.Errorf("SubtitleCount = %d, want 2", snap.SubtitleCount)
	}

	stats, err := env.db.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cues != 2 || stats.FTSEntries != 2 {
		t.Errorf("Stats() cues = %d, fts = %d, want 2, 2", stats.Cues, stats.FTSEntries)
	}
	if stats.MediaTotal != 1 {
		t.Errorf("Stats() MediaTotal = %d, want 1", stats.MediaTotal)
	}
}

func TestStrategies(t *testing.T) {
	for _, name := range []string{StrategyStandard, StrategyBatch, StrategyParallel, StrategyDelayedLanguage} {
		t.Run(name, func(t *testing.T) {
			env := setupEnv(t)
			for _, base := range []string{"one", "two", "three"} {
				env.writeFile(t, base+".mp4", "video")
				env.writeFile(t, base+".srt", strings.ReplaceAll(englishSRT, "hello world", "hello "+base))
			}
			env.writeFile(t, "extras/orphan.avi", "video")

			o := env.orchestrator(t, name)
			snap := runToEnd(t, o, false)

			if snap.Phase != status.PhaseCompleted {
				t.Fatalf("Phase = %s, want %s (last error %q)", snap.Phase, status.PhaseCompleted, snap.LastError)
			}
			if snap.Strategy != name {
				t.Errorf("Strategy = %q, want %q", snap.Strategy, name)
			}
			if snap.ProcessedFiles != 4 {
				t.Errorf("ProcessedFiles = %d, want 4", snap.ProcessedFiles)
			}
			if snap.SubtitleCount != 6 {
				t.Errorf("SubtitleCount = %d, want 6", snap.SubtitleCount)
			}

			n, err := env.db.CountMedia(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if n != 4 {
				t.Errorf("CountMedia() = %d, want 4", n)
			}
		})
	}
}

func TestDelayedLanguageFiltersNonEnglish(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "en.mp4", "video")
	env.writeFile(t, "en.srt", englishSRT)
	ko := env.writeFile(t, "ko.mp4", "video")
	env.writeFile(t, "ko.srt", koreanSRT)

	o := env.orchestrator(t, StrategyDelayedLanguage)
	snap := runToEnd(t, o, false)

	if snap.ProcessedFiles != 2 {
		t.Errorf("ProcessedFiles = %d, want 2", snap.ProcessedFiles)
	}
	if snap.SubtitleCount != 2 {
		t.Errorf("SubtitleCount = %d, want 2", snap.SubtitleCount)
	}
	if _, err := env.db.GetMediaByPath(context.Background(), ko); !errors.Is(err, database.ErrMediaNotFound) {
		t.Errorf("GetMediaByPath(%s) error = %v, want ErrMediaNotFound", ko, err)
	}
}

func TestGateHoldsLanguageFilter(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "en.mp4", "video")
	env.writeFile(t, "en.srt", englishSRT)
	env.writeFile(t, "ko.mp4", "video")
	env.writeFile(t, "ko.srt", koreanSRT)

	gate := &fakeGate{}
	gate.held.Store(true)

	o, err := New(env.db, env.status, Config{
		MediaDir:          env.mediaDir,
		Strategy:          StrategyDelayedLanguage,
		PausePollInterval: 5 * time.Millisecond,
		Gate:              gate,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)

	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() rejected: %s", res.Reason)
	}
	waitFor(t, "scan", func() bool { return o.Status().TotalFiles == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := o.Status().ProcessedFiles; got != 0 {
		t.Fatalf("ProcessedFiles = %d while gate held, want 0 (filter ran)", got)
	}

	gate.held.Store(false)
	o.Wait()
	if snap := o.Status(); snap.Phase != status.PhaseCompleted || snap.ProcessedFiles != 2 {
		t.Errorf("Phase = %s, ProcessedFiles = %d, want completed, 2", snap.Phase, snap.ProcessedFiles)
	}
}

func TestStateMachine(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)
	env.writeFile(t, "b.mp4", "video")
	env.writeFile(t, "b.srt", englishSRT)

	o := env.orchestrator(t, StrategyStandard)
	proc := newBlockingProcessor()
	o.processor = proc

	if res := o.Pause(); res.Accepted {
		t.Error("Pause() while idle accepted")
	}
	if res := o.Stop(); res.Accepted {
		t.Error("Stop() while idle accepted")
	}
	if res := o.Resume(); res.Accepted {
		t.Error("Resume() while idle accepted")
	}

	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() rejected: %s", res.Reason)
	}
	proc.awaitStart(t)

	if res := o.Start(false); res.Accepted {
		t.Error("Start() while running accepted")
	}
	if res := o.Resume(); res.Accepted {
		t.Error("Resume() while running accepted")
	}
	if res := o.ResetStatus(); res.Accepted {
		t.Error("ResetStatus() while running accepted")
	}
	if _, err := o.RebuildIndex(context.Background(), true); !errors.Is(err, ErrRunning) {
		t.Errorf("RebuildIndex() while running error = %v, want ErrRunning", err)
	}

	if res := o.Pause(); !res.Accepted {
		t.Fatalf("Pause() rejected: %s", res.Reason)
	}
	if res := o.Pause(); res.Accepted {
		t.Error("Pause() while paused accepted")
	}
	if got := o.Status().Phase; got != status.PhasePaused {
		t.Errorf("Phase after Pause = %s, want %s", got, status.PhasePaused)
	}

	// Start on a paused run resumes it.
	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() while paused rejected: %s", res.Reason)
	}
	if snap := o.Status(); snap.Phase != status.PhaseRunning || snap.IsPaused {
		t.Errorf("after resume Phase = %s, IsPaused = %v", snap.Phase, snap.IsPaused)
	}

	if res := o.Stop(); !res.Accepted {
		t.Fatalf("Stop() rejected: %s", res.Reason)
	}
	proc.release <- struct{}{}
	o.Wait()

	snap := o.Status()
	if snap.Phase != status.PhaseStopped {
		t.Errorf("Phase = %s, want %s", snap.Phase, status.PhaseStopped)
	}
	if snap.IsIndexing {
		t.Error("IsIndexing = true after stop")
	}
	if snap.ProcessedFiles != 1 || snap.TotalFiles != 2 {
		t.Errorf("files = %d/%d, want 1/2", snap.ProcessedFiles, snap.TotalFiles)
	}

	if res := o.Stop(); res.Accepted {
		t.Error("Stop() after stop accepted")
	}
	if res := o.ResetStatus(); !res.Accepted {
		t.Errorf("ResetStatus() after stop rejected: %s", res.Reason)
	}
	if got := o.Status().Phase; got != status.PhaseIdle {
		t.Errorf("Phase after reset = %s, want %s", got, status.PhaseIdle)
	}
}

func TestPauseHoldsNextFile(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)
	env.writeFile(t, "b.mp4", "video")
	env.writeFile(t, "b.srt", englishSRT)

	o := env.orchestrator(t, StrategyStandard)
	proc := newBlockingProcessor()
	o.processor = proc

	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() rejected: %s", res.Reason)
	}
	proc.awaitStart(t)

	if res := o.Pause(); !res.Accepted {
		t.Fatalf("Pause() rejected: %s", res.Reason)
	}
	proc.release <- struct{}{}
	waitFor(t, "first file", func() bool { return o.Status().ProcessedFiles == 1 })

	select {
	case path := <-proc.started:
		t.Fatalf("%s started while paused", path)
	case <-time.After(100 * time.Millisecond):
	}

	if res := o.Resume(); !res.Accepted {
		t.Fatalf("Resume() rejected: %s", res.Reason)
	}
	proc.awaitStart(t)
	proc.release <- struct{}{}
	o.Wait()

	snap := o.Status()
	if snap.Phase != status.PhaseCompleted || snap.ProcessedFiles != 2 {
		t.Errorf("Phase = %s, ProcessedFiles = %d, want completed, 2", snap.Phase, snap.ProcessedFiles)
	}
}

func TestMissingRootFailsRun(t *testing.T) {
	env := setupEnv(t)
	env.mediaDir = filepath.Join(env.mediaDir, "missing")

	o := env.orchestrator(t, StrategyStandard)
	snap := runToEnd(t, o, false)

	if snap.Phase != status.PhaseFailed {
		t.Errorf("Phase = %s, want %s", snap.Phase, status.PhaseFailed)
	}
	if snap.LastError == "" {
		t.Error("LastError is empty")
	}
	if snap.IsIndexing {
		t.Error("IsIndexing = true after failure")
	}
}

func TestNewResetsStaleRun(t *testing.T) {
	tests := []struct {
		name        string
		pid         int
		lastUpdated time.Time
	}{
		{"dead process", 1 << 30, time.Now()},
		{"stale heartbeat", os.Getpid(), time.Now().Add(-time.Hour)},
		{"own process id", os.Getpid(), time.Now()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			env.status.Update(func(st *status.State) {
				st.IsIndexing = true
				st.PID = tt.pid
				st.Phase = status.PhaseRunning
			})
			if err := env.status.Flush(); err != nil {
				t.Fatal(err)
			}
			// Flush stamps LastUpdated with the current time.
			env.status.Update(func(st *status.State) { st.LastUpdated = tt.lastUpdated })

			o := env.orchestrator(t, StrategyStandard)
			snap := o.Status()
			if snap.IsIndexing {
				t.Error("IsIndexing = true after New")
			}
			if snap.Phase != status.PhaseIdle {
				t.Errorf("Phase = %s, want %s", snap.Phase, status.PhaseIdle)
			}
			if snap.StatusMessage == "" {
				t.Error("StatusMessage is empty, want the reset reason")
			}
			if res := o.Start(false); !res.Accepted {
				t.Errorf("Start() after reset rejected: %s", res.Reason)
			}
			o.Wait()
		})
	}
}

func TestStartRejectedWhileAnotherProcessIndexes(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)

	// The parent test process stands in for a live process owning a run.
	owner := os.Getppid()
	if err := env.status.UpdateNow(func(st *status.State) {
		st.IsIndexing = true
		st.PID = owner
		st.Phase = status.PhaseRunning
	}); err != nil {
		t.Fatal(err)
	}

	o := env.orchestrator(t, StrategyStandard)
	if snap := o.Status(); !snap.IsIndexing || snap.PID != owner {
		t.Fatalf("New() reset a live run: %+v", snap.State)
	}

	res := o.Start(false)
	if res.Accepted {
		o.Wait()
		t.Fatal("Start() accepted while another process owns the run")
	}
	if !strings.Contains(res.Reason, "already running") {
		t.Errorf("Reason = %q", res.Reason)
	}
	if res := o.ResetStatus(); res.Accepted {
		t.Error("ResetStatus() accepted while another process owns the run")
	}
	if o.Busy() {
		t.Error("Busy() = true, want no local run")
	}

	// Once the owner exits the run can be taken over.
	if err := env.status.UpdateNow(func(st *status.State) { st.PID = 1 << 30 }); err != nil {
		t.Fatal(err)
	}
	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() after owner exited rejected: %s", res.Reason)
	}
	o.Wait()
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	env := setupEnv(t)
	_, err := New(env.db, env.status, Config{MediaDir: env.mediaDir, Strategy: "bogus"})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("New() error = %v, want ErrUnknownStrategy", err)
	}
}

func TestRebuildIndex(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)

	o := env.orchestrator(t, StrategyStandard)
	runToEnd(t, o, false)

	res, err := o.RebuildIndex(context.Background(), true)
	if err != nil {
		t.Fatalf("RebuildIndex() error = %v", err)
	}
	if !res.OK || !res.Rebuilt {
		t.Errorf("RebuildIndex() = %+v, want ok and rebuilt", res)
	}
	if res.IndexedCount != 2 || res.TotalCount != 2 {
		t.Errorf("counts = %d/%d, want 2/2", res.IndexedCount, res.TotalCount)
	}
}

func TestStartRejectedAfterClose(t *testing.T) {
	env := setupEnv(t)
	o := env.orchestrator(t, StrategyStandard)
	o.Close()

	if res := o.Start(false); res.Accepted {
		t.Error("Start() after Close accepted")
	}
}

type fakeGate struct{ held atomic.Bool }

func (g *fakeGate) UnderPressure() bool { return g.held.Load() }

func TestGateHoldsFiles(t *testing.T) {
	env := setupEnv(t)
	env.writeFile(t, "a.mp4", "video")
	env.writeFile(t, "a.srt", englishSRT)

	gate := &fakeGate{}
	gate.held.Store(true)

	o, err := New(env.db, env.status, Config{
		MediaDir:          env.mediaDir,
		PausePollInterval: 5 * time.Millisecond,
		Gate:              gate,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)

	if res := o.Start(false); !res.Accepted {
		t.Fatalf("Start() rejected: %s", res.Reason)
	}
	waitFor(t, "scan", func() bool { return o.Status().TotalFiles == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := o.Status().ProcessedFiles; got != 0 {
		t.Fatalf("ProcessedFiles = %d while gate held, want 0", got)
	}

	gate.held.Store(false)
	o.Wait()
	if snap := o.Status(); snap.Phase != status.PhaseCompleted || snap.ProcessedFiles != 1 {
		t.Errorf("Phase = %s, ProcessedFiles = %d, want completed, 1", snap.Phase, snap.ProcessedFiles)
	}
}
