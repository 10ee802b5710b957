package indexer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/media"
	"subtitle-indexer/internal/subtitle"
	"subtitle-indexer/internal/textutil"
	"subtitle-indexer/internal/workers"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyStandard        = "standard"
	StrategyBatch           = "batch"
	StrategyParallel        = "parallel"
	StrategyDelayedLanguage = "delayed_language"
)

// ErrUnknownStrategy is returned by NewStrategy for unrecognized names.
var ErrUnknownStrategy = errors.New("unknown indexing strategy")

// Strategy processes the candidates of a run.
type Strategy interface {
	Name() string
	// Process handles candidates, reporting each through run.FileDone or
	// run.FileFiltered. It returns early when the run stops, and returns an
	// error only when the run must fail.
	Process(ctx context.Context, run *Run, candidates []media.Candidate) error
}

// NewStrategy returns the strategy called name. maxWorkers applies to the
// parallel strategy and minEnglishRatio to delayed_language; zero values
// take the defaults.
func NewStrategy(name string, maxWorkers int, minEnglishRatio float64) (Strategy, error) {
	switch name {
	case "", StrategyStandard:
		return standardStrategy{}, nil
	case StrategyBatch:
		return batchStrategy{}, nil
	case StrategyParallel:
		if maxWorkers <= 0 {
			maxWorkers = workers.ForIO(8)
		}
		return parallelStrategy{maxWorkers: maxWorkers}, nil
	case StrategyDelayedLanguage:
		if minEnglishRatio <= 0 {
			minEnglishRatio = textutil.DefaultMinEnglishRatio
		}
		return delayedLanguageStrategy{minRatio: minEnglishRatio}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// standardStrategy indexes one file at a time in scan order.
type standardStrategy struct{}

func (standardStrategy) Name() string { return StrategyStandard }

func (standardStrategy) Process(ctx context.Context, run *Run, candidates []media.Candidate) error {
	return processSequential(ctx, run, candidates)
}

func processSequential(ctx context.Context, run *Run, candidates []media.Candidate) error {
	for _, c := range candidates {
		if !run.WaitIfPaused(ctx) {
			return nil
		}
		run.SetCurrent(c.MediaPath)

		cues, err := run.indexFile(ctx, c)
		if err := run.FileDone(c.MediaPath, cues, err); err != nil {
			return err
		}
	}
	return nil
}

// batchStrategy registers every media row before processing any subtitle,
// so a file whose registration fails never reaches subtitle processing.
type batchStrategy struct{}

func (batchStrategy) Name() string { return StrategyBatch }

func (batchStrategy) Process(ctx context.Context, run *Run, candidates []media.Candidate) error {
	ids := make([]int64, len(candidates))
	registered := make([]bool, len(candidates))

	run.Log(logging.LevelInfo, "Registering %d media files", len(candidates))
	for i, c := range candidates {
		if !run.WaitIfPaused(ctx) {
			return nil
		}
		run.SetCurrent(c.MediaPath)

		id, err := run.registerMedia(ctx, c)
		if err != nil {
			if err := run.FileDone(c.MediaPath, 0, err); err != nil {
				return err
			}
			continue
		}
		ids[i], registered[i] = id, true
	}

	run.Log(logging.LevelInfo, "Processing subtitles")
	for i, c := range candidates {
		if !registered[i] {
			continue
		}
		if !run.WaitIfPaused(ctx) {
			return nil
		}
		run.SetCurrent(c.MediaPath)

		cues, err := run.indexSubtitles(ctx, c, ids[i])
		if err := run.FileDone(c.MediaPath, cues, err); err != nil {
			return err
		}
	}
	return nil
}

// parallelStrategy registers media on the dispatching goroutine and
// processes subtitles on a bounded errgroup. Results are recorded in
// submission order on the dispatching goroutine only.
type parallelStrategy struct {
	maxWorkers int
}

func (parallelStrategy) Name() string { return StrategyParallel }

type parallelTask struct {
	path string
	cues int
	err  error
	done chan struct{}
}

func (s parallelStrategy) Process(ctx context.Context, run *Run, candidates []media.Candidate) error {
	var g errgroup.Group
	g.SetLimit(s.maxWorkers)
	run.Log(logging.LevelInfo, "Processing with %d workers", s.maxWorkers)

	var (
		pending []*parallelTask
		fatal   error
	)

	record := func(t *parallelTask) {
		if err := run.FileDone(t.path, t.cues, t.err); err != nil && fatal == nil {
			fatal = err
		}
	}
	drainReady := func() {
		for len(pending) > 0 {
			select {
			case <-pending[0].done:
				record(pending[0])
				pending = pending[1:]
			default:
				return
			}
		}
	}

	for _, c := range candidates {
		if fatal != nil || !run.WaitIfPaused(ctx) {
			break
		}
		run.SetCurrent(c.MediaPath)

		id, err := run.registerMedia(ctx, c)
		if err != nil {
			drainReady()
			record(&parallelTask{path: c.MediaPath, err: err})
			continue
		}

		t := &parallelTask{path: c.MediaPath, done: make(chan struct{})}
		pending = append(pending, t)
		c := c
		g.Go(func() error {
			defer close(t.done)
			t.cues, t.err = run.indexSubtitles(ctx, c, id)
			return nil
		})
		drainReady()
	}

	for _, t := range pending {
		<-t.done
		record(t)
	}
	_ = g.Wait()

	return fatal
}

// delayedLanguageStrategy drops subtitles whose text is not mostly English
// words before anything is written, then indexes the rest in order.
type delayedLanguageStrategy struct {
	minRatio float64
}

func (delayedLanguageStrategy) Name() string { return StrategyDelayedLanguage }

func (s delayedLanguageStrategy) Process(ctx context.Context, run *Run, candidates []media.Candidate) error {
	run.Log(logging.LevelInfo, "Filtering subtitles by English word ratio (min %.2f)", s.minRatio)

	kept := make([]media.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !run.WaitIfPaused(ctx) {
			return nil
		}
		if len(c.SubtitlePaths) == 0 {
			kept = append(kept, c)
			continue
		}

		english := s.englishSubtitles(run, c.SubtitlePaths)
		if len(english) == 0 {
			run.FileFiltered(c.MediaPath, "no English subtitle")
			continue
		}
		c.SubtitlePaths = english
		kept = append(kept, c)
	}

	run.Log(logging.LevelInfo, "Indexing %d of %d files after language filter", len(kept), len(candidates))
	return processSequential(ctx, run, kept)
}

func (s delayedLanguageStrategy) englishSubtitles(run *Run, paths []string) []string {
	var out []string
	for _, p := range paths {
		text, err := subtitle.Text(p)
		if err != nil {
			run.Log(logging.LevelError, "Language check failed for %s: %v", p, err)
			continue
		}
		if ratio := textutil.EnglishRatio(text); ratio < s.minRatio {
			run.Log(logging.LevelInfo, "Not English (ratio %.2f), skipping: %s", ratio, p)
			continue
		}
		out = append(out, p)
	}
	return out
}
