package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// FTSCounts returns the number of cues and the number of documents in the
// full-text index. The docsize shadow table is counted because counting the
// virtual table itself reads through to the content table.
func (d *Database) FTSCounts(ctx context.Context) (cues, indexed int64, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ftsCounts(ctx)
}

func (d *Database) ftsCounts(ctx context.Context) (cues, indexed int64, err error) {
	err = d.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM subtitles), (SELECT COUNT(*) FROM subtitles_fts_docsize)
	`).Scan(&cues, &indexed)
	return cues, indexed, err
}

// EnsureFTSConsistency rebuilds the full-text index only when its entry
// count has drifted from the cue table.
func (d *Database) EnsureFTSConsistency(ctx context.Context) (*RebuildResult, error) {
	return d.RebuildFTS(ctx, false)
}

// RebuildFTS compares cue and index counts and, when they differ or force
// is set, clears the index and repopulates it from the cue table in batches
// inside one transaction, then optimizes it. Concurrent calls with the same
// force flag share one rebuild.
func (d *Database) RebuildFTS(ctx context.Context, force bool) (*RebuildResult, error) {
	key := "fts"
	if force {
		key = "fts-force"
	}
	v, err, _ := d.rebuild.Do(key, func() (any, error) {
		return d.rebuildFTS(ctx, force)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*RebuildResult)
	return &res, nil
}

func (d *Database) rebuildFTS(ctx context.Context, force bool) (result *RebuildResult, err error) {
	start := time.Now()
	defer func() { recordQuery("rebuild_fts", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	cues, indexed, err := d.ftsCounts(ctx)
	if err != nil {
		metrics.FTSRebuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to count index entries: %w", err)
	}

	if !force && cues == indexed {
		logging.Debug("Full-text index consistent (%d entries), no rebuild needed", indexed)
		metrics.FTSRebuildsTotal.WithLabelValues("skipped").Inc()
		metrics.FTSEntries.Set(float64(indexed))
		return &RebuildResult{OK: true, IndexedCount: indexed, TotalCount: cues}, nil
	}

	logging.Info("Rebuilding full-text index (cues=%d, indexed=%d, force=%v)", cues, indexed, force)

	err = d.withRetry(ctx, "rebuild_fts", func() error {
		return d.repopulateFTS(ctx)
	})
	if err != nil {
		metrics.FTSRebuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to rebuild full-text index: %w", err)
	}

	if _, optErr := d.db.ExecContext(ctx, `INSERT INTO subtitles_fts(subtitles_fts) VALUES('optimize')`); optErr != nil {
		logging.Warn("Full-text index optimize failed: %v", optErr)
	}

	cues, indexed, err = d.ftsCounts(ctx)
	if err != nil {
		metrics.FTSRebuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to verify rebuilt index: %w", err)
	}

	result = &RebuildResult{
		OK:           cues == indexed,
		Rebuilt:      true,
		IndexedCount: indexed,
		TotalCount:   cues,
	}

	duration := time.Since(start)
	metrics.FTSRebuildDuration.Observe(duration.Seconds())
	metrics.FTSEntries.Set(float64(indexed))

	if !result.OK {
		metrics.FTSRebuildsTotal.WithLabelValues("error").Inc()
		logging.Error("Full-text index rebuild finished with mismatched counts: indexed=%d, cues=%d", indexed, cues)
		return result, nil
	}

	metrics.FTSRebuildsTotal.WithLabelValues("success").Inc()
	logging.Info("Full-text index rebuilt: %d entries in %v", indexed, duration.Round(time.Millisecond))

	if err := d.setMetadataLocked(ctx, metaFTSLastRebuild, time.Now().UTC().Format(time.RFC3339)); err != nil {
		logging.Warn("Failed to record index rebuild time: %v", err)
	}
	if err := d.setMetadataLocked(ctx, metaFTSLastCount, strconv.FormatInt(indexed, 10)); err != nil {
		logging.Warn("Failed to record index rebuild count: %v", err)
	}

	return result, nil
}

// repopulateFTS runs the delete-all and batched copy in one transaction.
func (d *Database) repopulateFTS(ctx context.Context) error {
	txStart := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO subtitles_fts(subtitles_fts) VALUES('delete-all')`); err != nil {
		return d.EndBatch(tx, txStart, err)
	}

	var lastID int64
	batches := 0
	for {
		var upper sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT MAX(id) FROM (SELECT id FROM subtitles WHERE id > ? ORDER BY id LIMIT ?)
		`, lastID, d.opts.RebuildBatchSize).Scan(&upper)
		if err != nil {
			return d.EndBatch(tx, txStart, err)
		}
		if !upper.Valid {
			break
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subtitles_fts(rowid, content)
			SELECT id, content FROM subtitles WHERE id > ? AND id <= ? ORDER BY id
		`, lastID, upper.Int64); err != nil {
			return d.EndBatch(tx, txStart, err)
		}

		lastID = upper.Int64
		batches++
		if batches%50 == 0 {
			logging.Debug("Full-text rebuild progress: %d batches, last id %d", batches, lastID)
		}
	}

	return d.EndBatch(tx, txStart, nil)
}
