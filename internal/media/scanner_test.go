package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

type staticIndex map[string]struct{}

func (s staticIndex) IndexedMediaPaths(context.Context) (map[string]struct{}, error) {
	return s, nil
}

func TestFindSubtitles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	media := filepath.Join(dir, "Movie [2020].mkv")
	for _, name := range []string{
		"Movie [2020].srt",
		"Movie [2020].eng.srt",
		"Movie [2020]_en.srt",
		"Movie [2020].forced.srt",
		"Other.srt",
	} {
		touch(t, filepath.Join(dir, name))
	}

	got := FindSubtitles(media, ".srt")
	want := []string{
		filepath.Join(dir, "Movie [2020].srt"),
		filepath.Join(dir, "Movie [2020].eng.srt"),
		filepath.Join(dir, "Movie [2020]_en.srt"),
		filepath.Join(dir, "Movie [2020].forced.srt"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindSubtitles() = %v, want %v", got, want)
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	touch(t, filepath.Join(root, "a", "one.mkv"))
	touch(t, filepath.Join(root, "a", "one.srt"))
	touch(t, filepath.Join(root, "b", "two.MP4"))
	touch(t, filepath.Join(root, "b", "notes.txt"))
	touch(t, filepath.Join(root, ".hidden", "three.mkv"))
	touch(t, filepath.Join(root, ".hidden", "three.srt"))

	result, err := NewScanner(nil).Scan(context.Background(), root, ScanOptions{}, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(result.Candidates) != 1 || result.Candidates[0].MediaPath != filepath.Join(root, "a", "one.mkv") {
		t.Errorf("Candidates = %+v", result.Candidates)
	}
	if got := result.Candidates[0].SubtitlePaths; len(got) != 1 || got[0] != filepath.Join(root, "a", "one.srt") {
		t.Errorf("SubtitlePaths = %v", got)
	}
	if len(result.Orphans) != 1 || result.Orphans[0].MediaPath != filepath.Join(root, "b", "two.MP4") {
		t.Errorf("Orphans = %+v", result.Orphans)
	}
	if result.Scanned != 2 || result.Interrupted {
		t.Errorf("Scanned = %d, Interrupted = %v; want 2, false", result.Scanned, result.Interrupted)
	}
	if result.Candidates[0].Size != 1 {
		t.Errorf("Size = %d, want 1", result.Candidates[0].Size)
	}
}

func TestScanIncrementalSkipsIndexed(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	indexedPath := filepath.Join(root, "old.mkv")
	touch(t, indexedPath)
	touch(t, filepath.Join(root, "old.srt"))
	touch(t, filepath.Join(root, "new.mkv"))
	touch(t, filepath.Join(root, "new.srt"))

	s := NewScanner(staticIndex{indexedPath: {}})

	result, err := s.Scan(context.Background(), root, ScanOptions{Incremental: true}, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].MediaPath != filepath.Join(root, "new.mkv") {
		t.Errorf("Candidates = %+v", result.Candidates)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}

	full, err := s.Scan(context.Background(), root, ScanOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Candidates) != 2 {
		t.Errorf("full scan Candidates = %d, want 2", len(full.Candidates))
	}
}

func TestScanMissingRoot(t *testing.T) {
	t.Parallel()

	result, err := NewScanner(nil).Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), ScanOptions{}, nil)
	if !errors.Is(err, ErrRootNotFound) {
		t.Errorf("Scan() error = %v, want ErrRootNotFound", err)
	}
	if result == nil || len(result.Candidates) != 0 {
		t.Errorf("Scan() result = %+v, want empty", result)
	}
}

func TestScanStopsWhenNotRunning(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, name := range []string{"a.mkv", "a.srt", "b.mkv", "b.srt", "c.mkv", "c.srt"} {
		touch(t, filepath.Join(root, name))
	}

	calls := 0
	running := func() bool {
		calls++
		return calls <= 3
	}

	result, err := NewScanner(nil).Scan(context.Background(), root, ScanOptions{}, running)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !result.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	if len(result.Candidates) >= 3 {
		t.Errorf("Candidates = %d, want a partial list", len(result.Candidates))
	}
}
