package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IsTransient reports whether err belongs to the locked/busy/corrupt class
// that is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCorrupt:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "malformed")
}

// withRetry runs fn, retrying transient errors with linearly growing
// backoff (attempt × RetryBackoff) up to MaxAttempts. Other errors are
// returned immediately.
func (d *Database) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == d.opts.MaxAttempts {
			break
		}

		metrics.DBRetriesTotal.WithLabelValues(op).Inc()
		wait := time.Duration(attempt) * d.opts.RetryBackoff
		logging.Warn("Database %s failed (attempt %d/%d), retrying in %v: %v", op, attempt, d.opts.MaxAttempts, wait, err)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}

	logging.Error("Database %s failed after %d attempts: %v", op, d.opts.MaxAttempts, err)
	return err
}
