package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"subtitle-indexer/internal/logging"
)

// DefaultLang is stored for cues without a detected language.
const DefaultLang = "en"

// ErrInvalidCue is returned for cues whose end precedes their start.
var ErrInvalidCue = errors.New("invalid cue")

// InsertCue writes cue and its full-text index entry through exec. Pass a
// transaction from BeginBatch to group inserts. The caller is responsible
// for serializing writers.
func (d *Database) InsertCue(ctx context.Context, exec Execer, cue *SubtitleCue) (int64, error) {
	if cue.EndMS < cue.StartMS {
		return 0, fmt.Errorf("%w: end %d before start %d", ErrInvalidCue, cue.EndMS, cue.StartMS)
	}
	if cue.Lang == "" {
		cue.Lang = DefaultLang
	}

	res, err := exec.ExecContext(ctx, `
		INSERT INTO subtitles (media_id, start_time, end_time, start_text, end_text, content, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cue.MediaID, cue.StartMS, cue.EndMS, cue.StartText, cue.EndText, cue.Content, cue.Lang)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := exec.ExecContext(ctx, `INSERT INTO subtitles_fts(rowid, content) VALUES (?, ?)`, id, cue.Content); err != nil {
		return 0, err
	}

	cue.ID = id
	return id, nil
}

// InsertCues writes cues in one transaction and returns how many were
// stored. A cue rejected with a non-transient error is logged and skipped.
// A transient error rolls the whole batch back and is returned, so the
// caller can retry the batch.
func (d *Database) InsertCues(ctx context.Context, cues []SubtitleCue) (written int, err error) {
	if len(cues) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { recordQuery("insert_cues", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.BeginBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cue batch: %w", err)
	}

	for i := range cues {
		if _, insErr := d.InsertCue(ctx, tx, &cues[i]); insErr != nil {
			if IsTransient(insErr) {
				return 0, d.EndBatch(tx, start, insErr)
			}
			logging.Warn("Skipping cue %s for media %d: %v", cues[i].StartText, cues[i].MediaID, insErr)
			continue
		}
		written++
	}

	if err = d.EndBatch(tx, start, nil); err != nil {
		return 0, err
	}
	return written, nil
}

// ClearSubtitlesForMedia removes every cue of a media file and clears its
// has_subtitle flag. The delete trigger keeps the full-text index in step.
func (d *Database) ClearSubtitlesForMedia(ctx context.Context, mediaID int64) (removed int64, err error) {
	start := time.Now()
	defer func() { recordQuery("clear_subtitles", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.withRetry(ctx, "clear_subtitles", func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM subtitles WHERE media_id = ?`, mediaID)
		if err == nil {
			removed, err = res.RowsAffected()
		}
		if err == nil {
			_, err = tx.ExecContext(ctx, `UPDATE media SET has_subtitle = 0 WHERE id = ?`, mediaID)
		}
		return d.EndBatch(tx, start, err)
	})
	return removed, err
}

// SubtitlesForMedia returns the cues of one media file in time order.
func (d *Database) SubtitlesForMedia(ctx context.Context, mediaID int64) (cues []SubtitleCue, err error) {
	start := time.Now()
	defer func() { recordQuery("subtitles_for_media", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, media_id, start_time, end_time, start_text, end_text, content, lang
		FROM subtitles
		WHERE media_id = ?
		ORDER BY start_time, id
	`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCues(rows)
}

// RemoveDuplicateSubtitles deletes cues that repeat the media, start time
// and content of an earlier cue, keeping the lowest id.
func (d *Database) RemoveDuplicateSubtitles(ctx context.Context) (int64, error) {
	return d.execCount(ctx, "remove_duplicates", `
		DELETE FROM subtitles
		WHERE id NOT IN (
			SELECT MIN(id) FROM subtitles GROUP BY media_id, start_time, content
		)
	`)
}

// CleanupOrphanedSubtitles deletes cues whose media row no longer exists.
// These only appear in databases written with foreign keys disabled.
func (d *Database) CleanupOrphanedSubtitles(ctx context.Context) (int64, error) {
	return d.execCount(ctx, "cleanup_orphans", `
		DELETE FROM subtitles WHERE media_id NOT IN (SELECT id FROM media)
	`)
}

// execCount runs a write statement with retry and returns the affected rows.
func (d *Database) execCount(ctx context.Context, op, query string, args ...any) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.withRetry(ctx, op, func() error {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanCues(rows *sql.Rows) ([]SubtitleCue, error) {
	var cues []SubtitleCue
	for rows.Next() {
		var c SubtitleCue
		if err := rows.Scan(&c.ID, &c.MediaID, &c.StartMS, &c.EndMS, &c.StartText, &c.EndText, &c.Content, &c.Lang); err != nil {
			return nil, err
		}
		cues = append(cues, c)
	}
	return cues, rows.Err()
}
