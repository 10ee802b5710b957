package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/logging"
)

// Maintenance operations accepted by RunMaintenance.
const (
	MaintenanceDedupe  = "dedupe"
	MaintenanceOrphans = "orphans"
	MaintenanceMissing = "missing"
)

// MaintenanceResult is the result of a finished maintenance job.
type MaintenanceResult struct {
	Op      string `json:"op"`
	Removed int64  `json:"removed"`
}

func (h *Handlers) maintenanceOp(op string) func(ctx context.Context) (int64, error) {
	switch op {
	case MaintenanceDedupe:
		return h.db.RemoveDuplicateSubtitles
	case MaintenanceOrphans:
		return h.db.CleanupOrphanedSubtitles
	case MaintenanceMissing:
		return h.db.RemoveMissingMedia
	default:
		return nil
	}
}

// RunMaintenance starts a storage cleanup job. It is rejected while an
// indexing run is active since both write the same tables.
func (h *Handlers) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	op := mux.Vars(r)["op"]
	fn := h.maintenanceOp(op)
	if fn == nil {
		reject(w, http.StatusNotFound, "unknown maintenance operation: "+op)
		return
	}
	if h.indexer.Busy() {
		reject(w, http.StatusConflict, "cannot run maintenance while indexing is running")
		return
	}

	id := h.jobs.Go("maintenance_"+op, nil, nil, func(ctx context.Context, _ string) (any, error) {
		removed, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		logging.Info("Maintenance %s removed %d rows", op, removed)
		return MaintenanceResult{Op: op, Removed: removed}, nil
	})

	writeJSONStatus(w, http.StatusAccepted, JobAccepted{Result: indexer.Result{Accepted: true}, JobID: id})
}
