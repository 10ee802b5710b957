package database

import "time"

// MediaFile is one media file registered by the indexer.
type MediaFile struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     int64     `json:"mtime"`
	HasSubtitle bool      `json:"has_subtitle"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubtitleCue is one subtitle entry belonging to a media file.
type SubtitleCue struct {
	ID        int64  `json:"id"`
	MediaID   int64  `json:"media_id"`
	StartMS   int64  `json:"start_time"`
	EndMS     int64  `json:"end_time"`
	StartText string `json:"start_time_text"`
	EndText   string `json:"end_time_text"`
	Content   string `json:"content"`
	Lang      string `json:"lang"`
}

// SearchMode selects how a query is matched against cue content.
type SearchMode string

const (
	// SearchExact matches the query as a case-insensitive substring.
	SearchExact SearchMode = "exact"
	// SearchRanked matches through the full-text index ordered by bm25.
	SearchRanked SearchMode = "ranked"
)

// SearchQuery holds the filters shared by Search and EstimateTotal.
type SearchQuery struct {
	Query string     `json:"query"`
	Lang  string     `json:"lang,omitempty"`
	Mode  SearchMode `json:"mode"`
	// StartTime and EndTime are "HH:MM:SS" bounds on the cue time range.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Page      int    `json:"page"`
	PerPage   int    `json:"per_page"`
}

// SearchHit is a cue joined with the path of its media file.
type SearchHit struct {
	SubtitleCue
	MediaPath string `json:"media_path"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Hits       []SearchHit `json:"results"`
	Query      string      `json:"query"`
	Mode       SearchMode  `json:"mode"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

// RebuildResult reports the outcome of a full-text index rebuild.
type RebuildResult struct {
	OK           bool  `json:"ok"`
	Rebuilt      bool  `json:"rebuilt"`
	IndexedCount int64 `json:"indexed_count"`
	TotalCount   int64 `json:"total_count"`
}

// Stats summarizes the store contents.
type Stats struct {
	MediaTotal            int64            `json:"media_total"`
	MediaWithSubtitles    int64            `json:"media_with_subtitles"`
	MediaWithoutSubtitles int64            `json:"media_without_subtitles"`
	Cues                  int64            `json:"subtitle_count"`
	FTSEntries            int64            `json:"fts_count"`
	Languages             map[string]int64 `json:"languages"`
	DBSizeBytes           int64            `json:"db_size_bytes"`
	LastRebuild           time.Time        `json:"last_fts_rebuild,omitempty"`
	LastIndexCompleted    time.Time        `json:"last_index_completed,omitempty"`
}
