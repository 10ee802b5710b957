package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/mediatypes"
	"subtitle-indexer/internal/startup"
	"subtitle-indexer/internal/status"
	"subtitle-indexer/internal/subtitle"
)

const progressInterval = time.Second

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the media directory and index subtitles in the foreground",
		Long: "Runs one indexing pass without the server. Interrupting the command " +
			"stops the run after the files in progress finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDatabase(cmd.Context(), func(cfg *startup.Config, db *database.Database) error {
				return runIndex(cmd, cfg, db, incremental)
			})
		},
	}

	cmd.Flags().BoolVarP(&incremental, "incremental", "i", false, "Skip media files that are already indexed")
	cmd.Flags().StringVar(&ctx.flags.strategy, "strategy", "", "Indexing strategy (standard, batch, parallel, delayed_language)")
	cmd.Flags().IntVar(&ctx.flags.workers, "workers", 0, "Worker count for the parallel strategy")
	return cmd
}

func runIndex(cmd *cobra.Command, cfg *startup.Config, db *database.Database, incremental bool) error {
	st := status.NewStore(cfg.StatusPath, nil)
	defer st.Close()

	if err := checkNoActiveRun(st); err != nil {
		return err
	}

	idx, err := indexer.New(db, st, cliIndexerConfig(cfg))
	if err != nil {
		return err
	}
	defer idx.Close()

	if res := idx.Start(incremental); !res.Accepted {
		return fmt.Errorf("indexing not started: %s", res.Reason)
	}

	done := make(chan struct{})
	go func() {
		idx.Wait()
		close(done)
	}()

	stderr := cmd.ErrOrStderr()
	live := isTerminal(stderr)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	interrupted := false
	cancelled := cmd.Context().Done()
loop:
	for {
		select {
		case <-done:
			break loop
		case <-cancelled:
			interrupted = true
			cancelled = nil
			fmt.Fprintln(stderr, "\nStopping after files in progress finish...")
			idx.Stop()
		case <-ticker.C:
			if live {
				fmt.Fprintf(stderr, "\r\x1b[K%s", progressLine(idx.Status()))
			}
		}
	}
	if live {
		fmt.Fprint(stderr, "\r\x1b[K")
	}

	snap := idx.Status()
	printRunSummary(cmd.OutOrStdout(), snap)

	switch {
	case snap.Phase == status.PhaseFailed:
		return fmt.Errorf("indexing failed: %s", snap.LastError)
	case interrupted:
		return context.Canceled
	}
	return nil
}

func cliIndexerConfig(cfg *startup.Config) indexer.Config {
	return indexer.Config{
		MediaDir:          cfg.MediaDir,
		Strategy:          cfg.Index.Strategy,
		MaxWorkers:        cfg.Index.Workers,
		MinEnglishRatio:   cfg.Index.MinEnglishRatio,
		MediaExtensions:   mediatypes.NewExtensionSet(cfg.Index.MediaExtensions...),
		SubtitleExtension: cfg.Index.SubtitleExtension,
		Processor: subtitle.Options{
			MaxProcessingTime: cfg.Index.MaxProcessingTime.Duration,
			DetectLanguage:    cfg.Index.DetectLanguage,
		},
	}
}

func progressLine(snap status.Snapshot) string {
	line := fmt.Sprintf("[%3d%%] %s/%s files, %s cues",
		snap.ProgressPercent,
		humanize.Comma(snap.ProcessedFiles),
		humanize.Comma(snap.TotalFiles),
		humanize.Comma(snap.SubtitleCount))
	if snap.ETA != "" {
		line += ", ETA " + snap.ETA
	}
	return line
}

func printRunSummary(w io.Writer, snap status.Snapshot) {
	elapsed := ""
	if !snap.StartTime.IsZero() && !snap.LastUpdated.IsZero() {
		elapsed = status.FormatClock(snap.LastUpdated.Sub(snap.StartTime))
	}
	rows := [][]string{
		{"Phase", colorPhase(w, string(snap.Phase))},
		{"Mode", string(snap.Mode)},
		{"Strategy", snap.Strategy},
		{"Files", fmt.Sprintf("%s / %s", humanize.Comma(snap.ProcessedFiles), humanize.Comma(snap.TotalFiles))},
		{"Cues", humanize.Comma(snap.SubtitleCount)},
		{"Retries", humanize.Comma(int64(snap.RetryCount))},
		{"Elapsed", elapsed},
	}
	if snap.LastError != "" {
		rows = append(rows, []string{"Last error", snap.LastError})
	}
	fmt.Fprintln(w, renderTable([]string{"Run", "Value"}, rows, nil))
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconcile or rebuild the full-text search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDatabase(cmd.Context(), func(cfg *startup.Config, db *database.Database) error {
				st := status.NewStore(cfg.StatusPath, nil)
				defer st.Close()
				if err := checkNoActiveRun(st); err != nil {
					return errors.Join(indexer.ErrRunning, err)
				}

				res, err := db.RebuildFTS(cmd.Context(), force)
				if err != nil {
					return fmt.Errorf("rebuild search index: %w", err)
				}
				out := cmd.OutOrStdout()
				switch {
				case !res.OK:
					return fmt.Errorf("search index inconsistent after rebuild: %d of %d cues indexed",
						res.IndexedCount, res.TotalCount)
				case res.Rebuilt:
					fmt.Fprintf(out, "Search index rebuilt: %s cues indexed\n", humanize.Comma(res.IndexedCount))
				default:
					fmt.Fprintf(out, "Search index already consistent: %s cues indexed\n", humanize.Comma(res.IndexedCount))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Rebuild even when the index matches the cue table")
	return cmd
}
