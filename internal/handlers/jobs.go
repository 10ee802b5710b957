package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/jobs"
)

// defaultJobLimit bounds the completed jobs listed when no limit is given.
const defaultJobLimit = 50

// JobList is returned by ListJobs.
type JobList struct {
	Active    []jobs.Job `json:"active,omitempty"`
	Completed []jobs.Job `json:"completed,omitempty"`
}

// ListJobs lists jobs. ?state=active or ?state=completed selects one set;
// both are returned by default.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultJobLimit)

	var list JobList
	switch r.URL.Query().Get("state") {
	case "":
		list.Active = h.jobs.Active()
		list.Completed = h.jobs.Completed(limit)
	case "active":
		list.Active = h.jobs.Active()
	case "completed":
		list.Completed = h.jobs.Completed(limit)
	default:
		writeJSONError(w, "state must be active or completed", http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusOK, list)
}

// GetJob returns one job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSONStatus(w, http.StatusOK, job)
}

// CancelJob cancels a pending or running job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := h.jobs.Cancel(mux.Vars(r)["id"])
	switch {
	case err == nil:
		writeResult(w, indexer.Result{Accepted: true})
	case errors.Is(err, jobs.ErrJobNotFound):
		reject(w, http.StatusNotFound, err.Error())
	default:
		reject(w, http.StatusConflict, err.Error())
	}
}
