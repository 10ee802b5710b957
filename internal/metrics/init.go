package metrics

// Strategy and phase names are duplicated here rather than imported to keep
// this package free of internal dependencies.
var (
	strategyLabels = []string{"standard", "batch", "parallel", "delayed_language"}
	phaseLabels    = []string{"completed", "stopped", "failed"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, strategy := range strategyLabels {
		for _, phase := range phaseLabels {
			IndexerRunsTotal.WithLabelValues(strategy, phase)
		}
	}

	for _, status := range []string{"success", "error", "skipped", "filtered"} {
		IndexerFilesProcessed.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error", "skipped"} {
		FTSRebuildsTotal.WithLabelValues(status)
	}

	for _, mode := range []string{"exact", "ranked"} {
		SearchQueriesTotal.WithLabelValues(mode)
	}

	for _, has := range []string{"true", "false"} {
		MediaFilesTotal.WithLabelValues(has)
	}

	for _, op := range []string{"stat", "read"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}
