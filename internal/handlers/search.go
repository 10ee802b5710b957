package handlers

import (
	"errors"
	"net/http"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/logging"
)

// EstimateResponse is returned by the estimate endpoint.
type EstimateResponse struct {
	Query string `json:"query"`
	Total int64  `json:"total"`
}

func parseSearchQuery(r *http.Request) database.SearchQuery {
	q := r.URL.Query()
	return database.SearchQuery{
		Query:     q.Get("q"),
		Lang:      q.Get("lang"),
		Mode:      database.SearchMode(q.Get("mode")),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", database.DefaultPerPage),
	}
}

// Search returns one page of matching cues. An empty q yields an empty page.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	result, err := h.db.Search(r.Context(), parseSearchQuery(r))
	if err != nil {
		h.searchError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, result)
}

// EstimateSearch returns the number of cues matching the filters.
func (h *Handlers) EstimateSearch(w http.ResponseWriter, r *http.Request) {
	q := parseSearchQuery(r)
	total, err := h.db.EstimateTotal(r.Context(), q)
	if err != nil {
		h.searchError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, EstimateResponse{Query: database.SanitizeQuery(q.Query), Total: total})
}

func (h *Handlers) searchError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrInvalidQuery) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.Error("Search failed: %v", err)
	writeJSONError(w, "search failed", http.StatusInternalServerError)
}
