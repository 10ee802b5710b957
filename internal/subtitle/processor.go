package subtitle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/filesystem"
	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
	"subtitle-indexer/internal/textutil"
)

// CueWriter stores a batch of cues and reports how many were written.
// *database.Database satisfies it.
type CueWriter interface {
	InsertCues(ctx context.Context, cues []database.SubtitleCue) (int, error)
}

// LogFunc receives processor log lines. The indexing status store uses it
// to mirror them into the run log.
type LogFunc func(level logging.LogLevel, format string, args ...interface{})

// Options configures a Processor. Zero values take the defaults.
type Options struct {
	// MaxProcessingTime is the wall-clock budget for one file. Cues written
	// before the budget runs out are kept.
	MaxProcessingTime time.Duration
	// MaxInsertAttempts bounds retries of a batch that fails with a
	// transient storage error.
	MaxInsertAttempts int
	// InsertBackoff is multiplied by the attempt number between retries.
	InsertBackoff time.Duration
	// BatchSize is the number of cues written per transaction.
	BatchSize int
	// DetectLanguage tags cues with the detected language instead of
	// database.DefaultLang.
	DetectLanguage bool
	// Running is polled between cues. Processing stops when it returns false.
	Running func() bool
	// OnRetry is called before each retry of a failed batch.
	OnRetry func()
	// Converter is the last resort for files no encoding could parse.
	Converter Converter
	Log       LogFunc
}

const (
	DefaultMaxProcessingTime = 10 * time.Minute
	DefaultMaxInsertAttempts = 3
	DefaultInsertBackoff     = 500 * time.Millisecond
	DefaultBatchSize         = 500
)

// Processor turns one SRT file into stored cue rows.
type Processor struct {
	writer CueWriter
	opts   Options
	now    func() time.Time
}

// NewProcessor creates a Processor writing through writer.
func NewProcessor(writer CueWriter, opts *Options) *Processor {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.MaxProcessingTime <= 0 {
		o.MaxProcessingTime = DefaultMaxProcessingTime
	}
	if o.MaxInsertAttempts <= 0 {
		o.MaxInsertAttempts = DefaultMaxInsertAttempts
	}
	if o.InsertBackoff <= 0 {
		o.InsertBackoff = DefaultInsertBackoff
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Running == nil {
		o.Running = func() bool { return true }
	}
	if o.OnRetry == nil {
		o.OnRetry = func() {}
	}
	if o.Converter == nil {
		o.Converter = LossyConverter{}
	}
	if o.Log == nil {
		o.Log = logging.Log
	}

	return &Processor{writer: writer, opts: o, now: time.Now}
}

// Process parses the subtitle at path and stores its cues under mediaID.
// It returns the number of cue rows written. Missing, empty and unparsable
// files are logged and yield 0 without an error. An error is returned only
// when storage keeps failing after the retry budget.
func (p *Processor) Process(ctx context.Context, path string, mediaID int64) (int, error) {
	started := p.now()
	defer func() { metrics.SubtitleParseDuration.Observe(time.Since(started).Seconds()) }()

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.opts.Log(logging.LevelError, "Subtitle file does not exist: %s", path)
		} else {
			p.opts.Log(logging.LevelError, "Failed to read subtitle %s: %v", path, err)
		}
		return 0, nil
	}
	if len(data) == 0 {
		p.opts.Log(logging.LevelWarn, "Empty subtitle file: %s", path)
		return 0, nil
	}

	cues, err := p.load(ctx, path, data)
	if err != nil {
		p.opts.Log(logging.LevelError, "Could not load subtitle %s: %v", path, err)
		return 0, nil
	}
	if len(cues) == 0 {
		p.opts.Log(logging.LevelWarn, "No cues in subtitle: %s", path)
		return 0, nil
	}

	records := p.records(cues, mediaID, path, started)

	written, err := p.store(ctx, records, path, started)
	metrics.IndexerCuesWritten.Add(float64(written))
	if err != nil {
		return written, fmt.Errorf("storing cues from %s: %w", path, err)
	}

	p.opts.Log(logging.LevelInfo, "Processed subtitle %s: %d cues (%.2fs)", path, written, p.now().Sub(started).Seconds())
	return written, nil
}

// load runs the encoding cascade: the sniffed encoding, the fallback list,
// then the Converter.
func (p *Processor) load(ctx context.Context, path string, data []byte) ([]Cue, error) {
	cues, name, sniffed := decode(data)
	if len(cues) > 0 {
		metrics.SubtitleEncodingFallbacks.WithLabelValues(name).Inc()
		p.opts.Log(logging.LevelDebug, "Loaded subtitle %s (encoding: %s)", path, name)
		return cues, nil
	}

	p.opts.Log(logging.LevelWarn, "Every encoding failed for %s, converting", path)
	return p.convert(ctx, path, sniffed)
}

// decode returns the cues of the first encoding whose strict decode parses,
// trying the sniffed encoding before textutil.FallbackEncodings.
func decode(data []byte) (cues []Cue, name, sniffed string) {
	sniffed = textutil.SniffEncoding(data)

	for _, name := range textutil.Candidates(sniffed) {
		text, err := textutil.Decode(data, name)
		if err != nil {
			continue
		}
		cues, err := Parse(strings.NewReader(text))
		if err != nil || len(cues) == 0 {
			continue
		}
		return cues, name, sniffed
	}
	return nil, "", sniffed
}

// Text returns the markup-free text of the subtitle at path, one cue per
// line. It uses the same encoding cascade as Processor without the
// conversion step.
func Text(path string) (string, error) {
	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}

	cues, _, _ := decode(data)
	var b strings.Builder
	for _, c := range cues {
		if text := strings.TrimSpace(textutil.StripTags(c.Text)); text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func (p *Processor) convert(ctx context.Context, path, sniffed string) ([]Cue, error) {
	dir, err := os.MkdirTemp("", "subtitle_convert_")
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.Warn("Failed to remove conversion directory %s: %v", dir, err)
		}
	}()

	converted, err := p.opts.Converter.Convert(ctx, path, sniffed, dir)
	if err != nil {
		return nil, fmt.Errorf("conversion failed: %w", err)
	}

	f, err := os.Open(converted)
	if err != nil {
		return nil, fmt.Errorf("failed to open converted subtitle: %w", err)
	}
	defer func() { _ = f.Close() }()

	cues, err := Parse(f)
	if err != nil {
		return nil, err
	}
	if len(cues) > 0 {
		metrics.SubtitleEncodingFallbacks.WithLabelValues("converted").Inc()
		p.opts.Log(logging.LevelInfo, "Converted subtitle %s (%s -> utf-8)", path, sniffed)
	}
	return cues, nil
}

// records strips markup, drops blank and repeated text, and stops early
// when the time budget runs out or the run is stopped.
func (p *Processor) records(cues []Cue, mediaID int64, path string, started time.Time) []database.SubtitleCue {
	seen := make(map[string]struct{}, len(cues))
	out := make([]database.SubtitleCue, 0, len(cues))

	for _, c := range cues {
		if p.now().Sub(started) > p.opts.MaxProcessingTime {
			p.opts.Log(logging.LevelWarn, "Processing time limit exceeded, truncating: %s", path)
			break
		}
		if !p.opts.Running() {
			break
		}

		text := strings.TrimSpace(textutil.StripTags(c.Text))
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		out = append(out, database.SubtitleCue{
			MediaID:   mediaID,
			StartMS:   c.StartMS,
			EndMS:     c.EndMS,
			StartText: textutil.FormatTimestamp(c.StartMS),
			EndText:   textutil.FormatTimestamp(c.EndMS),
			Content:   text,
			Lang:      database.DefaultLang,
		})
	}

	if p.opts.DetectLanguage && len(out) > 0 {
		lang := DetectLanguage(out)
		for i := range out {
			out[i].Lang = lang
		}
	}

	return out
}

// store writes records in batches. A batch failing with a transient error
// is retried with linear backoff. Other batch errors are logged and the
// batch is dropped. Once the time budget runs out the remaining batches are
// skipped and the cues already written are kept.
func (p *Processor) store(ctx context.Context, records []database.SubtitleCue, path string, started time.Time) (int, error) {
	written := 0

	for start := 0; start < len(records); start += p.opts.BatchSize {
		if start > 0 && p.now().Sub(started) > p.opts.MaxProcessingTime {
			p.opts.Log(logging.LevelWarn, "Processing time limit exceeded after %d of %d cues: %s", written, len(records), path)
			break
		}
		end := min(start+p.opts.BatchSize, len(records))
		batch := records[start:end]

		n, err := p.insertWithRetry(ctx, batch)
		if err != nil {
			if database.IsTransient(err) {
				return written, err
			}
			p.opts.Log(logging.LevelError, "Cue insert failed: %v", err)
			continue
		}
		written += n
	}

	return written, nil
}

func (p *Processor) insertWithRetry(ctx context.Context, batch []database.SubtitleCue) (int, error) {
	var err error
	for attempt := 1; attempt <= p.opts.MaxInsertAttempts; attempt++ {
		var n int
		n, err = p.writer.InsertCues(ctx, batch)
		if err == nil {
			return n, nil
		}
		if !database.IsTransient(err) {
			return 0, err
		}
		if attempt == p.opts.MaxInsertAttempts {
			p.opts.Log(logging.LevelWarn, "Cue insert failed after %d attempts: %v", attempt, err)
			break
		}

		p.opts.OnRetry()
		select {
		case <-ctx.Done():
			return 0, errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * p.opts.InsertBackoff):
		}
	}
	return 0, err
}

// DetectLanguage returns the ISO 639-1 code of the cues' combined text,
// or database.DefaultLang when detection is not reliable.
func DetectLanguage(cues []database.SubtitleCue) string {
	var b strings.Builder
	for _, c := range cues {
		b.WriteString(c.Content)
		b.WriteByte('\n')
	}

	info := whatlanggo.Detect(b.String())
	if !info.IsReliable() {
		return database.DefaultLang
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return database.DefaultLang
}
