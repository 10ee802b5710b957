package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/logging"
)

// MediaSubtitles is returned by GetMediaSubtitles.
type MediaSubtitles struct {
	Media     *database.MediaFile    `json:"media"`
	Subtitles []database.SubtitleCue `json:"subtitles"`
	Count     int                    `json:"count"`
}

// GetMediaSubtitles lists the cues of one media file in start-time order.
func (h *Handlers) GetMediaSubtitles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}

	m, err := h.db.GetMediaByID(r.Context(), id)
	if errors.Is(err, database.ErrMediaNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to load media %d: %v", id, err)
		writeJSONError(w, "failed to load media", http.StatusInternalServerError)
		return
	}

	cues, err := h.db.SubtitlesForMedia(r.Context(), id)
	if err != nil {
		logging.Error("Failed to load subtitles for media %d: %v", id, err)
		writeJSONError(w, "failed to load subtitles", http.StatusInternalServerError)
		return
	}
	if cues == nil {
		cues = []database.SubtitleCue{}
	}

	writeJSONStatus(w, http.StatusOK, MediaSubtitles{Media: m, Subtitles: cues, Count: len(cues)})
}
