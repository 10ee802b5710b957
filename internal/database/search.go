package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
	"subtitle-indexer/internal/textutil"
)

const (
	// DefaultPerPage is used when a query does not set PerPage.
	DefaultPerPage = 50
	// MaxPerPage caps PerPage.
	MaxPerPage = 1000
)

// ErrInvalidQuery is returned for filters that cannot be parsed.
var ErrInvalidQuery = errors.New("invalid search query")

// unsafeSequences are replaced by a space in user queries before they reach SQL.
var unsafeSequences = []string{`"`, `'`, `;`, `--`, `/*`, `*/`, `\`}

// SanitizeQuery replaces quoting and comment sequences in a search string
// with spaces, so "don't" becomes "don t".
func SanitizeQuery(q string) string {
	for _, s := range unsafeSequences {
		q = strings.ReplaceAll(q, s, " ")
	}
	return strings.TrimSpace(q)
}

// normalize applies defaults and caps to paging and mode.
func (q *SearchQuery) normalize() {
	q.Query = SanitizeQuery(q.Query)
	if q.Mode != SearchRanked {
		q.Mode = SearchExact
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
}

// filter builds the FROM/WHERE clause and its arguments for a normalized query.
func (q *SearchQuery) filter() (string, []any, error) {
	var (
		from  string
		where []string
		args  []any
	)

	if q.Mode == SearchRanked {
		from = `subtitles_fts
			JOIN subtitles s ON s.id = subtitles_fts.rowid
			JOIN media m ON m.id = s.media_id`
		where = append(where, "subtitles_fts MATCH ?")
		args = append(args, ftsTerms(q.Query))
	} else {
		from = `subtitles s
			JOIN media m ON m.id = s.media_id`
		where = append(where, `s.content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Query)+"%")
	}

	if q.Lang != "" {
		where = append(where, "s.lang = ?")
		args = append(args, q.Lang)
	}

	if q.StartTime != "" {
		ms, err := textutil.ParseTimestamp(q.StartTime)
		if err != nil {
			return "", nil, fmt.Errorf("%w: start_time: %v", ErrInvalidQuery, err)
		}
		where = append(where, "s.end_time >= ?")
		args = append(args, ms)
	}

	if q.EndTime != "" {
		ms, err := textutil.ParseTimestamp(q.EndTime)
		if err != nil {
			return "", nil, fmt.Errorf("%w: end_time: %v", ErrInvalidQuery, err)
		}
		where = append(where, "s.start_time <= ?")
		args = append(args, ms)
	}

	return "FROM " + from + " WHERE " + strings.Join(where, " AND "), args, nil
}

// Search returns one page of cues matching q, joined with their media path.
func (d *Database) Search(ctx context.Context, q SearchQuery) (result *SearchResult, err error) {
	start := time.Now()
	defer func() { recordQuery("search", start, err) }()

	q.normalize()

	result = &SearchResult{
		Hits:    []SearchHit{},
		Query:   q.Query,
		Mode:    q.Mode,
		Page:    q.Page,
		PerPage: q.PerPage,
	}
	if q.Query == "" {
		return result, nil
	}

	metrics.SearchQueriesTotal.WithLabelValues(string(q.Mode)).Inc()

	filter, args, err := q.filter()
	if err != nil {
		return nil, err
	}

	order := "ORDER BY m.path, s.start_time"
	if q.Mode == SearchRanked {
		order = "ORDER BY bm25(subtitles_fts), m.path, s.start_time"
	}

	query := `
		SELECT s.id, s.media_id, s.start_time, s.end_time, s.start_text, s.end_text, s.content, s.lang, m.path
		` + filter + `
		` + order + `
		LIMIT ? OFFSET ?`

	d.mu.RLock()
	defer d.mu.RUnlock()

	total, err := d.estimateTotal(ctx, filter, args)
	if err != nil {
		return nil, err
	}
	result.Total = total
	result.TotalPages = int(math.Ceil(float64(total) / float64(q.PerPage)))

	pageArgs := append(append([]any{}, args...), q.PerPage, (q.Page-1)*q.PerPage)
	rows, err := d.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.MediaID, &h.StartMS, &h.EndMS, &h.StartText, &h.EndText, &h.Content, &h.Lang, &h.MediaPath); err != nil {
			return nil, err
		}
		result.Hits = append(result.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metrics.SearchResultsReturned.Observe(float64(len(result.Hits)))
	logging.Debug("Search %q (%s) page %d: %d of %d results in %v",
		q.Query, q.Mode, q.Page, len(result.Hits), total, time.Since(start))

	return result, nil
}

// EstimateTotal counts the cues matching q's filters, ignoring paging.
func (d *Database) EstimateTotal(ctx context.Context, q SearchQuery) (total int64, err error) {
	start := time.Now()
	defer func() { recordQuery("estimate_total", start, err) }()

	q.normalize()
	if q.Query == "" {
		return 0, nil
	}

	filter, args, err := q.filter()
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.estimateTotal(ctx, filter, args)
}

func (d *Database) estimateTotal(ctx context.Context, filter string, args []any) (int64, error) {
	var total int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) "+filter, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return total, nil
}

// ftsTerms quotes each word of a sanitized query as its own FTS5 string, so
// "hello friend" becomes "hello" "friend" and matches the words in any order.
func ftsTerms(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

func escapeLike(q string) string {
	q = strings.ReplaceAll(q, `%`, `\%`)
	return strings.ReplaceAll(q, `_`, `\_`)
}
