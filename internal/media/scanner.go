package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"subtitle-indexer/internal/filesystem"
	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/mediatypes"
	"subtitle-indexer/internal/metrics"
)

// ErrRootNotFound is returned when the scan root is missing or is not a
// readable directory.
var ErrRootNotFound = errors.New("media root not found")

// Candidate is a media file found by a scan, with the subtitle files that
// belong to it.
type Candidate struct {
	MediaPath     string    `json:"media_path"`
	SubtitlePaths []string  `json:"subtitle_paths,omitempty"`
	Size          int64     `json:"size"`
	ModTime       time.Time `json:"mod_time"`
}

// ScanResult is the outcome of one walk over the media root.
type ScanResult struct {
	// Candidates have at least one subtitle file, in walk order.
	Candidates []Candidate
	// Orphans are media files without any subtitle.
	Orphans []Candidate
	// Scanned counts media files seen, including skipped ones.
	Scanned int
	// Skipped counts media files already indexed (incremental scans only).
	Skipped int
	// Interrupted is true when the scan stopped early.
	Interrupted bool
}

// IndexedPathSource lists media paths already in the store.
type IndexedPathSource interface {
	IndexedMediaPaths(ctx context.Context) (map[string]struct{}, error)
}

// ScanOptions controls a single scan.
type ScanOptions struct {
	Incremental bool
	// MediaExtensions defaults to mediatypes.DefaultMediaExtensions.
	MediaExtensions mediatypes.ExtensionSet
	// SubtitleExtension defaults to mediatypes.DefaultSubtitleExtension.
	SubtitleExtension string
}

// Scanner walks a media tree and pairs media files with subtitles.
type Scanner struct {
	indexed     IndexedPathSource
	retryConfig filesystem.RetryConfig
}

// NewScanner creates a Scanner. indexed is consulted for incremental scans
// and may be nil when only full scans are used.
func NewScanner(indexed IndexedPathSource) *Scanner {
	return &Scanner{
		indexed:     indexed,
		retryConfig: filesystem.DefaultRetryConfig(),
	}
}

// Scan walks root in lexical order. running is polled before each entry;
// when it returns false, or ctx is done, the partial result is returned with
// Interrupted set. A missing root yields ErrRootNotFound.
func (s *Scanner) Scan(ctx context.Context, root string, opts ScanOptions, running func() bool) (*ScanResult, error) {
	result := &ScanResult{}

	info, err := filesystem.StatWithRetry(root, s.retryConfig)
	if err != nil || !info.IsDir() {
		logging.Error("Media root does not exist or is not a directory: %s", root)
		if err == nil {
			err = errors.New("not a directory")
		}
		return result, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}

	if opts.MediaExtensions == nil {
		opts.MediaExtensions = mediatypes.NewExtensionSet(mediatypes.DefaultMediaExtensions...)
	}
	if opts.SubtitleExtension == "" {
		opts.SubtitleExtension = mediatypes.DefaultSubtitleExtension
	}
	if running == nil {
		running = func() bool { return true }
	}

	var indexed map[string]struct{}
	if opts.Incremental && s.indexed != nil {
		indexed, err = s.indexed.IndexedMediaPaths(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to load indexed paths: %w", err)
		}
		logging.Info("Incremental scan: %d media files already indexed", len(indexed))
	}

	start := time.Now()
	logging.Info("Scanning %s", root)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if !running() || ctx.Err() != nil {
			result.Interrupted = true
			return fs.SkipAll
		}

		if err != nil {
			if path == root {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !opts.MediaExtensions.Contains(filepath.Ext(path)) {
			return nil
		}
		result.Scanned++

		if _, ok := indexed[path]; ok {
			result.Skipped++
			return nil
		}

		s.addMedia(result, path, opts.SubtitleExtension)
		return nil
	})

	if walkErr != nil && !errors.Is(walkErr, fs.SkipAll) {
		logging.Error("Failed to walk media root %s: %v", root, walkErr)
		return &ScanResult{}, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, walkErr)
	}

	metrics.ScannerFilesDiscovered.Set(float64(len(result.Candidates)))

	if result.Interrupted {
		logging.Info("Scan stopped after %d media files", result.Scanned)
	} else {
		logging.Info("Scan complete in %v: %d media files, %d with subtitles, %d without, %d already indexed",
			time.Since(start).Round(time.Millisecond), result.Scanned, len(result.Candidates), len(result.Orphans), result.Skipped)
	}

	return result, nil
}

func (s *Scanner) addMedia(result *ScanResult, path, subtitleExt string) {
	c := Candidate{MediaPath: path}

	info, err := filesystem.StatWithRetry(path, s.retryConfig)
	if err != nil {
		logging.Warn("Failed to stat media file %s: %v", path, err)
		return
	}
	c.Size = info.Size()
	c.ModTime = info.ModTime()

	c.SubtitlePaths = FindSubtitles(path, subtitleExt)
	if len(c.SubtitlePaths) == 0 {
		result.Orphans = append(result.Orphans, c)
		return
	}
	result.Candidates = append(result.Candidates, c)
}

// FindSubtitles returns the subtitle files that belong to mediaPath: its
// base name with each of mediatypes.SubtitleSuffixes, then any other
// "<base>.*<ext>", without duplicates and in that order.
func FindSubtitles(mediaPath, subtitleExt string) []string {
	dir := filepath.Dir(mediaPath)
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	prefix := filepath.Join(escapeGlob(dir), escapeGlob(base))

	patterns := make([]string, 0, len(mediatypes.SubtitleSuffixes)+1)
	for _, suffix := range mediatypes.SubtitleSuffixes {
		patterns = append(patterns, prefix+escapeGlob(suffix+subtitleExt))
	}
	patterns = append(patterns, prefix+".*"+escapeGlob(subtitleExt))

	var found []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				found = append(found, m)
			}
		}
	}
	return found
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
