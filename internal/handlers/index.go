package handlers

import (
	"context"
	"fmt"
	"net/http"

	"subtitle-indexer/internal/indexer"
)

// JobTypeRebuild is the job type of full-text index rebuilds.
const JobTypeRebuild = "fts_rebuild"

// JobAccepted is returned by endpoints that start a job.
type JobAccepted struct {
	indexer.Result
	JobID string `json:"job_id,omitempty"`
}

// StartIndexing starts a run, or resumes a paused one.
// ?incremental=true skips media that is already indexed.
func (h *Handlers) StartIndexing(w http.ResponseWriter, r *http.Request) {
	incremental, err := queryBool(r, "incremental", false)
	if err != nil {
		reject(w, http.StatusBadRequest, "incremental must be a boolean")
		return
	}
	writeResult(w, h.indexer.Start(incremental))
}

// PauseIndexing holds the run after in-flight files finish.
func (h *Handlers) PauseIndexing(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, h.indexer.Pause())
}

// ResumeIndexing continues a paused run.
func (h *Handlers) ResumeIndexing(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, h.indexer.Resume())
}

// StopIndexing ends the run after in-flight files finish.
func (h *Handlers) StopIndexing(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, h.indexer.Stop())
}

// ResetIndexStatus returns an idle, finished or abandoned status to idle.
func (h *Handlers) ResetIndexStatus(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, h.indexer.ResetStatus())
}

// GetIndexStatus returns the status snapshot with progress and ETA.
func (h *Handlers) GetIndexStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, h.indexer.Status())
}

// RebuildIndex reconciles the full-text index as a background job and
// returns its id. ?force=true rebuilds even when the counts agree.
func (h *Handlers) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force", false)
	if err != nil {
		reject(w, http.StatusBadRequest, "force must be a boolean")
		return
	}
	if h.indexer.Busy() {
		reject(w, http.StatusConflict, "cannot rebuild the index while indexing is running")
		return
	}

	id := h.jobs.Go(JobTypeRebuild, map[string]any{"force": force}, nil, func(ctx context.Context, _ string) (any, error) {
		res, err := h.indexer.RebuildIndex(ctx, force)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return res, fmt.Errorf("index still inconsistent after rebuild: %d of %d cues indexed", res.IndexedCount, res.TotalCount)
		}
		return res, nil
	})

	writeJSONStatus(w, http.StatusAccepted, JobAccepted{Result: indexer.Result{Accepted: true}, JobID: id})
}
