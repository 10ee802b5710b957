package subtitle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/logging"
)

type fakeWriter struct {
	mu       sync.Mutex
	cues     []database.SubtitleCue
	failures []error
	calls    int
	delay    time.Duration
}

func (w *fakeWriter) InsertCues(_ context.Context, cues []database.SubtitleCue) (int, error) {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if len(w.failures) > 0 {
		err := w.failures[0]
		w.failures = w.failures[1:]
		if err != nil {
			return 0, err
		}
	}
	w.cues = append(w.cues, cues...)
	return len(cues), nil
}

func quietLog(logging.LogLevel, string, ...interface{}) {}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

const dupSRT = `1
00:00:01,000 --> 00:00:02,000
<i>Hello</i> there

2
00:00:03,000 --> 00:00:04,000
Hello there

3
00:00:05,000 --> 00:00:06,000
<font color="red"> </font>

4
00:00:07,000 --> 00:00:08,500
General Kenobi
`

func TestProcessDedupesAndStripsMarkup(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := NewProcessor(w, &Options{Log: quietLog})

	n, err := p.Process(context.Background(), writeFile(t, "a.srt", []byte(dupSRT)), 7)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Process() = %d, want 2", n)
	}

	first := w.cues[0]
	if first.Content != "Hello there" || first.MediaID != 7 {
		t.Errorf("first cue = %+v", first)
	}
	if first.StartText != "00:00:01,000" || first.EndText != "00:00:02,000" {
		t.Errorf("first cue times = %s --> %s", first.StartText, first.EndText)
	}
	if w.cues[1].Content != "General Kenobi" || w.cues[1].EndMS != 8500 {
		t.Errorf("second cue = %+v", w.cues[1])
	}
	if first.Lang != database.DefaultLang {
		t.Errorf("Lang = %q, want %q", first.Lang, database.DefaultLang)
	}
}

func TestProcessLegacyEncodings(t *testing.T) {
	t.Parallel()

	koreanSRT := "1\n00:00:01,000 --> 00:00:02,000\n안녕하세요 여러분\n\n" +
		"2\n00:00:03,000 --> 00:00:04,000\n오늘은 날씨가 정말 좋습니다\n\n" +
		"3\n00:00:05,000 --> 00:00:06,000\n우리는 함께 영화를 보러 갑니다\n"
	western := "1\n00:00:01,000 --> 00:00:02,000\nUn café, s'il vous plaît\n"

	tests := []struct {
		name    string
		encoded func() ([]byte, error)
		want    string
	}{
		{"euc-kr", func() ([]byte, error) { return korean.EUCKR.NewEncoder().Bytes([]byte(koreanSRT)) }, "안녕하세요 여러분"},
		{"windows-1252", func() ([]byte, error) { return charmap.Windows1252.NewEncoder().Bytes([]byte(western)) }, "Un café, s'il vous plaît"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.encoded()
			if err != nil {
				t.Fatalf("encode error = %v", err)
			}

			w := &fakeWriter{}
			p := NewProcessor(w, &Options{Log: quietLog})
			n, err := p.Process(context.Background(), writeFile(t, "legacy.srt", data), 1)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if n == 0 {
				t.Fatal("Process() wrote no cues")
			}
			if w.cues[0].Content != tt.want {
				t.Errorf("first cue = %q, want %q", w.cues[0].Content, tt.want)
			}
		})
	}
}

func TestProcessEmptyAndMissing(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := NewProcessor(w, &Options{Log: quietLog})
	ctx := context.Background()

	if n, err := p.Process(ctx, writeFile(t, "empty.srt", nil), 1); n != 0 || err != nil {
		t.Errorf("Process(empty) = %d, %v; want 0, nil", n, err)
	}
	if n, err := p.Process(ctx, filepath.Join(t.TempDir(), "missing.srt"), 1); n != 0 || err != nil {
		t.Errorf("Process(missing) = %d, %v; want 0, nil", n, err)
	}
	if w.calls != 0 {
		t.Errorf("writer called %d times, want 0", w.calls)
	}
}

type recordingConverter struct {
	dir    string
	output string
}

func (c *recordingConverter) Convert(_ context.Context, src, _, outDir string) (string, error) {
	c.dir = outDir
	dst := filepath.Join(outDir, filepath.Base(src))
	return dst, os.WriteFile(dst, []byte(c.output), 0o600)
}

func TestProcessFallsBackToConverter(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	conv := &recordingConverter{output: "1\n00:00:01,000 --> 00:00:02,000\nConverted\n"}
	p := NewProcessor(w, &Options{Log: quietLog, Converter: conv})

	n, err := p.Process(context.Background(), writeFile(t, "garbage.srt", []byte("no cues in here\n")), 1)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if n != 1 || w.cues[0].Content != "Converted" {
		t.Errorf("Process() = %d cues %+v, want 1 converted cue", n, w.cues)
	}
	if conv.dir == "" {
		t.Fatal("converter was not called")
	}
	if _, err := os.Stat(conv.dir); !os.IsNotExist(err) {
		t.Errorf("conversion directory %s not removed", conv.dir)
	}
}

// tenCueSRT has ten distinct cues, one per second.
func tenCueSRT() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("00:00:0")
		b.WriteByte(byte('0' + i))
		b.WriteString(",000 --> 00:00:0")
		b.WriteByte(byte('0' + i))
		b.WriteString(",500\nLine ")
		b.WriteByte(byte('a' + i))
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestProcessTimeBudget(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := NewProcessor(w, &Options{Log: quietLog, MaxProcessingTime: 3 * time.Second})

	// Every clock read advances one second.
	base := time.Unix(0, 0)
	ticks := 0
	p.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	n, err := p.Process(context.Background(), writeFile(t, "long.srt", []byte(tenCueSRT())), 1)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if n == 0 || n >= 10 {
		t.Errorf("Process() = %d, want a truncated, non-empty result", n)
	}
	if len(w.cues) != n {
		t.Errorf("writer has %d cues, Process() reported %d", len(w.cues), n)
	}
}

func TestProcessTimeBudgetDuringWrites(t *testing.T) {
	t.Parallel()

	// Every batch takes longer than half the budget, so the budget runs
	// out after the second batch.
	w := &fakeWriter{delay: 60 * time.Millisecond}
	p := NewProcessor(w, &Options{Log: quietLog, MaxProcessingTime: 100 * time.Millisecond, BatchSize: 2})

	n, err := p.Process(context.Background(), writeFile(t, "slow.srt", []byte(tenCueSRT())), 1)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if n == 0 || n >= 10 {
		t.Errorf("Process() = %d, want a truncated, non-empty result", n)
	}
	if len(w.cues) != n {
		t.Errorf("writer has %d cues, Process() reported %d", len(w.cues), n)
	}
	if w.calls >= 5 {
		t.Errorf("writer called %d times, want fewer than 5 batches", w.calls)
	}
}

func TestProcessStopsWhenNotRunning(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := NewProcessor(w, &Options{Log: quietLog, Running: func() bool { return false }})

	n, err := p.Process(context.Background(), writeFile(t, "a.srt", []byte(dupSRT)), 1)
	if n != 0 || err != nil {
		t.Errorf("Process() = %d, %v; want 0, nil", n, err)
	}
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	t.Run("recovers", func(t *testing.T) {
		w := &fakeWriter{failures: []error{busy, busy}}
		retries := 0
		p := NewProcessor(w, &Options{Log: quietLog, InsertBackoff: time.Millisecond, OnRetry: func() { retries++ }})

		n, err := p.Process(context.Background(), writeFile(t, "a.srt", []byte(dupSRT)), 1)
		if err != nil || n != 2 {
			t.Errorf("Process() = %d, %v; want 2, nil", n, err)
		}
		if w.calls != 3 {
			t.Errorf("writer calls = %d, want 3", w.calls)
		}
		if retries != 2 {
			t.Errorf("OnRetry calls = %d, want 2", retries)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		w := &fakeWriter{failures: []error{busy, busy, busy}}
		p := NewProcessor(w, &Options{Log: quietLog, InsertBackoff: time.Millisecond})

		_, err := p.Process(context.Background(), writeFile(t, "a.srt", []byte(dupSRT)), 1)
		if !database.IsTransient(err) {
			t.Errorf("Process() error = %v, want transient error", err)
		}
		if w.calls != 3 {
			t.Errorf("writer calls = %d, want 3", w.calls)
		}
	})

	t.Run("permanent error drops batch", func(t *testing.T) {
		w := &fakeWriter{failures: []error{errors.New("constraint failed")}}
		p := NewProcessor(w, &Options{Log: quietLog, InsertBackoff: time.Millisecond})

		n, err := p.Process(context.Background(), writeFile(t, "a.srt", []byte(dupSRT)), 1)
		if err != nil || n != 0 {
			t.Errorf("Process() = %d, %v; want 0, nil", n, err)
		}
		if w.calls != 1 {
			t.Errorf("writer calls = %d, want 1", w.calls)
		}
	})
}

func TestDetectLanguage(t *testing.T) {
	english := []database.SubtitleCue{
		{Content: "I told you we should have taken the other road through the mountains."},
		{Content: "Nobody listens to me when it matters, and now we are completely lost."},
	}
	if got := DetectLanguage(english); got != "en" {
		t.Errorf("DetectLanguage(english) = %q, want en", got)
	}

	hangul := []database.SubtitleCue{{Content: "안녕하세요 여러분 오늘은 날씨가 정말 좋습니다"}}
	if got := DetectLanguage(hangul); got != "ko" {
		t.Errorf("DetectLanguage(hangul) = %q, want ko", got)
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	got, err := Text(writeFile(t, "a.srt", []byte(dupSRT)))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	want := "Hello there\nHello there\nGeneral Kenobi\n"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}

	if _, err := Text(filepath.Join(t.TempDir(), "missing.srt")); err == nil {
		t.Error("Text() on a missing file returned nil error")
	}
}
