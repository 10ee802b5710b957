package handlers

import (
	"time"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/jobs"
	"subtitle-indexer/internal/startup"
)

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	db        *database.Database
	indexer   *indexer.Orchestrator
	jobs      *jobs.Manager
	mediaDir  string
	startTime time.Time
}

// New creates the handler set.
func New(db *database.Database, idx *indexer.Orchestrator, jm *jobs.Manager, config *startup.Config) *Handlers {
	return &Handlers{
		db:        db,
		indexer:   idx,
		jobs:      jm,
		mediaDir:  config.MediaDir,
		startTime: time.Now(),
	}
}
