package metrics

import (
	"time"

	"subtitle-indexer/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	CollectorStats() Stats
}

// Stats holds the current store statistics
type Stats struct {
	MediaWithSubtitles    int64
	MediaWithoutSubtitles int64
	Cues                  int64
	FTSEntries            int64
	DBSizeBytes           int64
	OpenConnections       int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.CollectorStats()

	MediaFilesTotal.WithLabelValues("true").Set(float64(stats.MediaWithSubtitles))
	MediaFilesTotal.WithLabelValues("false").Set(float64(stats.MediaWithoutSubtitles))
	SubtitleCuesTotal.Set(float64(stats.Cues))
	FTSEntries.Set(float64(stats.FTSEntries))
	DBSizeBytes.Set(float64(stats.DBSizeBytes))
	DBConnectionsOpen.Set(float64(stats.OpenConnections))

	logging.Debug("Metrics collected: media=%d/%d, cues=%d, fts=%d",
		stats.MediaWithSubtitles, stats.MediaWithoutSubtitles, stats.Cues, stats.FTSEntries)
}
