package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"golang.org/x/sync/singleflight"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Options tunes a Database. A nil *Options uses defaults.
type Options struct {
	// MaxAttempts bounds retries of busy/locked/corrupt errors.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
	// RebuildBatchSize is the number of cues copied per statement when the
	// full-text index is repopulated.
	RebuildBatchSize int
	MaxOpenConns     int
}

// DefaultOptions returns the production settings.
func DefaultOptions() *Options {
	return &Options{
		MaxAttempts:      3,
		RetryBackoff:     time.Second,
		RebuildBatchSize: 1000,
		MaxOpenConns:     10,
	}
}

// Database manages all storage operations for the subtitle indexer.
type Database struct {
	db      *sql.DB
	dbPath  string
	opts    Options
	mu      sync.RWMutex
	rebuild singleflight.Group
}

// New opens (creating if needed) the database FILE at dbPath and applies the
// schema. The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	o := DefaultOptions()
	if opts != nil {
		if opts.MaxAttempts > 0 {
			o.MaxAttempts = opts.MaxAttempts
		}
		if opts.RetryBackoff > 0 {
			o.RetryBackoff = opts.RetryBackoff
		}
		if opts.RebuildBatchSize > 0 {
			o.RebuildBatchSize = opts.RebuildBatchSize
		}
		if opts.MaxOpenConns > 0 {
			o.MaxOpenConns = opts.MaxOpenConns
		}
	}

	// busy_timeout absorbs short lock waits before SQLITE_BUSY reaches withRetry.
	// _txlock=immediate takes the write lock at BEGIN so contention surfaces
	// before any statement in the transaction has run.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1&_txlock=immediate&_cache_size=10000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxOpenConns / 2)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
		opts:   *o,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL DEFAULT 0,
		mtime INTEGER NOT NULL DEFAULT 0,
		has_subtitle INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_media_has_subtitle ON media(has_subtitle);

	CREATE TABLE IF NOT EXISTS subtitles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		start_text TEXT NOT NULL,
		end_text TEXT NOT NULL,
		content TEXT NOT NULL,
		lang TEXT NOT NULL DEFAULT 'en',
		CHECK (start_time <= end_time)
	);

	CREATE INDEX IF NOT EXISTS idx_subtitles_media_id ON subtitles(media_id);
	CREATE INDEX IF NOT EXISTS idx_subtitles_media_start ON subtitles(media_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_subtitles_lang ON subtitles(lang);

	-- Shadow index over cue content. Inserts are written explicitly by
	-- InsertCue in the same transaction as the cue row.
	CREATE VIRTUAL TABLE IF NOT EXISTS subtitles_fts USING fts5(
		content,
		content='subtitles',
		content_rowid='id',
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER IF NOT EXISTS subtitles_ad AFTER DELETE ON subtitles BEGIN
		INSERT INTO subtitles_fts(subtitles_fts, rowid, content) VALUES('delete', old.id, old.content);
	END;

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

func (d *Database) runMigrations(ctx context.Context) error {
	// Databases created before cue language support lack subtitles.lang.
	var langExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('subtitles')
		WHERE name='lang'
	`).Scan(&langExists)
	if err != nil {
		return fmt.Errorf("failed to check for lang column: %w", err)
	}

	if !langExists {
		logging.Info("Migrating database: adding lang column to subtitles table")
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE subtitles ADD COLUMN lang TEXT NOT NULL DEFAULT 'en'`); err != nil {
			return fmt.Errorf("failed to add lang column: %w", err)
		}
		logging.Info("Migration complete: lang column added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// BeginBatch starts a write transaction for callers that group several
// inserts atomically. Finish it with EndBatch.
func (d *Database) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	var tx *sql.Tx
	err := d.withRetry(ctx, "begin_batch", func() error {
		var err error
		tx, err = d.db.BeginTx(ctx, nil)
		return err
	})
	return tx, err
}

// EndBatch commits tx, or rolls it back when err is non-nil.
func (d *Database) EndBatch(tx *sql.Tx, started time.Time, err error) error {
	duration := time.Since(started).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// Vacuum reclaims space after large deletions.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("Database file %s is read-only! Mode: %v", path, info.Mode())
		if suffix == "" {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", path, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", path)
		}
	}

	return nil
}
