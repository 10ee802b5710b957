package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"subtitle-indexer/internal/startup"
	"subtitle-indexer/internal/status"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Indexing bool   `json:"indexing"`
	Paused   bool   `json:"paused"`
	Phase    string `json:"phase"`

	LastIndexed string `json:"lastIndexed,omitempty"`
	LastError   string `json:"lastError,omitempty"`

	// Progress info
	FilesProcessed int64 `json:"filesProcessed"`
	FilesTotal     int64 `json:"filesTotal"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Stats summary
	MediaTotal int64 `json:"mediaTotal,omitempty"`
	Cues       int64 `json:"subtitleCount,omitempty"`
}

// HealthCheck reports the service status. It is degraded after a failed
// run and unhealthy when the database cannot be read.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.indexer.Status()

	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		Indexing:       snap.IsIndexing,
		Paused:         snap.IsPaused,
		Phase:          string(snap.Phase),
		LastError:      snap.LastError,
		FilesProcessed: snap.ProcessedFiles,
		FilesTotal:     snap.TotalFiles,
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if snap.Phase == status.PhaseFailed {
		response.Status = statusDegraded
	}

	stats, err := h.db.Stats(r.Context())
	if err != nil {
		response.Status = statusUnhealthy
		response.Ready = false
		response.LastError = err.Error()
	} else {
		response.MediaTotal = stats.MediaTotal
		response.Cues = stats.Cues
		if !stats.LastIndexCompleted.IsZero() {
			response.LastIndexed = stats.LastIndexCompleted.Format(time.RFC3339)
		}
	}

	code := http.StatusOK
	if !response.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the database answers and the media
// directory is present.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.Stats(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "database unavailable",
		})
		return
	}
	if info, err := os.Stat(h.mediaDir); err != nil || !info.IsDir() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "media directory unavailable",
		})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
