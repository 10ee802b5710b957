package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/startup"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show media, cue and search index counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDatabase(cmd.Context(), func(_ *startup.Config, db *database.Database) error {
				stats, err := db.Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("load stats: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd, stats)
				}
				printStats(cmd, stats)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print stats as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, stats *database.Stats) {
	out := cmd.OutOrStdout()

	rows := [][]string{
		{"Media files", humanize.Comma(stats.MediaTotal)},
		{"  with subtitles", humanize.Comma(stats.MediaWithSubtitles)},
		{"  without subtitles", humanize.Comma(stats.MediaWithoutSubtitles)},
		{"Subtitle cues", humanize.Comma(stats.Cues)},
		{"Search index entries", humanize.Comma(stats.FTSEntries)},
		{"Index consistent", yesNo(stats.Cues == stats.FTSEntries)},
		{"Database size", humanize.IBytes(uint64(max(stats.DBSizeBytes, 0)))},
		{"Last indexed", relativeTime(stats.LastIndexCompleted)},
		{"Last index rebuild", relativeTime(stats.LastRebuild)},
	}
	fmt.Fprintln(out, renderTable([]string{"Store", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(stats.Languages) == 0 {
		return
	}
	langs := make([]string, 0, len(stats.Languages))
	for lang := range stats.Languages {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if stats.Languages[langs[i]] != stats.Languages[langs[j]] {
			return stats.Languages[langs[i]] > stats.Languages[langs[j]]
		}
		return langs[i] < langs[j]
	})
	langRows := make([][]string, 0, len(langs))
	for _, lang := range langs {
		langRows = append(langRows, []string{lang, humanize.Comma(stats.Languages[lang])})
	}
	fmt.Fprintln(out, renderTable([]string{"Language", "Cues"}, langRows, []columnAlignment{alignLeft, alignRight}))
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
