package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"subtitle-indexer/internal/filesystem"
	"subtitle-indexer/internal/logging"
)

// ErrMediaNotFound is returned when no media row matches.
var ErrMediaNotFound = errors.New("media not found")

// UpsertMedia registers a media file by path and returns its id. An existing
// row keeps its id and has_subtitle flag; size and mtime are refreshed.
func (d *Database) UpsertMedia(ctx context.Context, path string, size, mtime int64) (id int64, err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_media", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.withRetry(ctx, "upsert_media", func() error {
		return d.db.QueryRowContext(ctx, `
			INSERT INTO media (path, size, mtime, updated_at)
			VALUES (?, ?, ?, strftime('%s', 'now'))
			ON CONFLICT(path) DO UPDATE SET
				size = excluded.size,
				mtime = excluded.mtime,
				updated_at = excluded.updated_at
			RETURNING id
		`, path, size, mtime).Scan(&id)
	})
	return id, err
}

// SetHasSubtitle records whether a media file has any cues.
func (d *Database) SetHasSubtitle(ctx context.Context, mediaID int64, has bool) error {
	_, err := d.execCount(ctx, "set_has_subtitle", `UPDATE media SET has_subtitle = ? WHERE id = ?`, boolToInt(has), mediaID)
	return err
}

// IndexedMediaPaths returns the set of registered media paths. Incremental
// scans skip these.
func (d *Database) IndexedMediaPaths(ctx context.Context) (paths map[string]struct{}, err error) {
	start := time.Now()
	defer func() { recordQuery("indexed_media_paths", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `SELECT path FROM media`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths = make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// GetMediaByPath returns the media row for path or ErrMediaNotFound.
func (d *Database) GetMediaByPath(ctx context.Context, path string) (*MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, path, size, mtime, has_subtitle, created_at, updated_at
		FROM media WHERE path = ?
	`, path)

	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	return m, err
}

// GetMediaByID returns the media row with id or ErrMediaNotFound.
func (d *Database) GetMediaByID(ctx context.Context, id int64) (*MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, path, size, mtime, has_subtitle, created_at, updated_at
		FROM media WHERE id = ?
	`, id)

	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	return m, err
}

// MediaWithoutSubtitles lists media files that have no cues, up to limit.
func (d *Database) MediaWithoutSubtitles(ctx context.Context, limit int) (files []MediaFile, err error) {
	start := time.Now()
	defer func() { recordQuery("media_without_subtitles", start, err) }()

	if limit <= 0 {
		limit = 100
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, size, mtime, has_subtitle, created_at, updated_at
		FROM media WHERE has_subtitle = 0
		ORDER BY path
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *m)
	}
	return files, rows.Err()
}

// CountMedia returns the number of registered media files.
func (d *Database) CountMedia(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&n)
	return n, err
}

// DeleteMedia removes one media file and, by cascade, its cues.
func (d *Database) DeleteMedia(ctx context.Context, mediaID int64) error {
	n, err := d.execCount(ctx, "delete_media", `DELETE FROM media WHERE id = ?`, mediaID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// ClearAllMedia removes every media file and cue.
func (d *Database) ClearAllMedia(ctx context.Context) (int64, error) {
	return d.execCount(ctx, "clear_all_media", `DELETE FROM media`)
}

// RemoveMissingMedia deletes media rows whose file no longer exists on disk.
func (d *Database) RemoveMissingMedia(ctx context.Context) (int64, error) {
	paths, err := d.IndexedMediaPaths(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	for path := range paths {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		n, err := d.execCount(ctx, "remove_missing_media", `DELETE FROM media WHERE path = ?`, path)
		if err != nil {
			return removed, err
		}
		removed += n
		logging.Debug("Removed missing media: %s", path)
	}

	if removed > 0 {
		logging.Info("Removed %d media files that no longer exist on disk", removed)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*MediaFile, error) {
	var m MediaFile
	var has int
	var created, updated int64
	if err := row.Scan(&m.ID, &m.Path, &m.Size, &m.ModTime, &has, &created, &updated); err != nil {
		return nil, err
	}
	m.HasSubtitle = has != 0
	m.CreatedAt = time.Unix(created, 0)
	m.UpdatedAt = time.Unix(updated, 0)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
