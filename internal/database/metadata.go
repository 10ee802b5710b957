package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	metaFTSLastRebuild     = "fts_last_rebuild"
	metaFTSLastCount       = "fts_last_count"
	metaLastIndexCompleted = "last_index_completed"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getMetadataLocked(ctx, key)
}

func (d *Database) getMetadataLocked(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setMetadataLocked(ctx, key, value)
}

func (d *Database) setMetadataLocked(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.withRetry(ctx, "set_metadata", func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value)
		return err
	})
}

// LastIndexCompleted returns when the last indexing run completed, or the
// zero time if none has.
func (d *Database) LastIndexCompleted(ctx context.Context) (time.Time, error) {
	return d.getTime(ctx, metaLastIndexCompleted)
}

// SetLastIndexCompleted records the completion time of an indexing run.
func (d *Database) SetLastIndexCompleted(ctx context.Context, t time.Time) error {
	return d.SetMetadata(ctx, metaLastIndexCompleted, t.UTC().Format(time.RFC3339))
}

// LastFTSRebuild returns when the full-text index was last rebuilt.
func (d *Database) LastFTSRebuild(ctx context.Context) (time.Time, error) {
	return d.getTime(ctx, metaFTSLastRebuild)
}

func (d *Database) getTime(ctx context.Context, key string) (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timeLocked(ctx, key)
}

func (d *Database) timeLocked(ctx context.Context, key string) (time.Time, error) {
	value, err := d.getMetadataLocked(ctx, key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}
