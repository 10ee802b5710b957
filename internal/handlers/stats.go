package handlers

import (
	"net/http"

	"subtitle-indexer/internal/logging"
)

// GetStats returns media, cue, language and index counts.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		logging.Error("Failed to collect stats: %v", err)
		writeJSONError(w, "failed to collect stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, stats)
}
