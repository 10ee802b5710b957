package database

import (
	"context"
	"os"
	"time"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// Stats summarizes media, cue and index counts.
func (d *Database) Stats(ctx context.Context) (stats *Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats = &Stats{Languages: make(map[string]int64)}

	err = d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN has_subtitle = 1 THEN 1 ELSE 0 END), 0)
		FROM media
	`).Scan(&stats.MediaTotal, &stats.MediaWithSubtitles)
	if err != nil {
		return nil, err
	}
	stats.MediaWithoutSubtitles = stats.MediaTotal - stats.MediaWithSubtitles

	if stats.Cues, stats.FTSEntries, err = d.ftsCounts(ctx); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `SELECT lang, COUNT(*) FROM subtitles GROUP BY lang`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		var n int64
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		stats.Languages[lang] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(d.dbPath); statErr == nil {
		stats.DBSizeBytes = info.Size()
	}

	stats.LastRebuild, _ = d.timeLocked(ctx, metaFTSLastRebuild)
	stats.LastIndexCompleted, _ = d.timeLocked(ctx, metaLastIndexCompleted)

	return stats, nil
}

// CollectorStats implements metrics.StatsProvider.
func (d *Database) CollectorStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	stats, err := d.Stats(ctx)
	if err != nil {
		logging.Warn("Failed to collect database stats: %v", err)
		return metrics.Stats{}
	}

	return metrics.Stats{
		MediaWithSubtitles:    stats.MediaWithSubtitles,
		MediaWithoutSubtitles: stats.MediaWithoutSubtitles,
		Cues:                  stats.Cues,
		FTSEntries:            stats.FTSEntries,
		DBSizeBytes:           stats.DBSizeBytes,
		OpenConnections:       d.db.Stats().OpenConnections,
	}
}
