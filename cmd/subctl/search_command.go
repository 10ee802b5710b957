package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/startup"
)

const maxContentWidth = 80

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		q        database.SearchQuery
		mode     string
		jsonOut  bool
		estimate bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search indexed subtitle cues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Query = strings.Join(args, " ")
			switch database.SearchMode(mode) {
			case database.SearchExact, database.SearchRanked:
				q.Mode = database.SearchMode(mode)
			default:
				return fmt.Errorf("invalid --mode %q (want exact or ranked)", mode)
			}

			return ctx.withDatabase(cmd.Context(), func(_ *startup.Config, db *database.Database) error {
				if estimate {
					total, err := db.EstimateTotal(cmd.Context(), q)
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(cmd, map[string]any{"query": database.SanitizeQuery(q.Query), "total": total})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s matching cues\n", humanize.Comma(total))
					return nil
				}

				result, err := db.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				printSearchResult(cmd, result)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&mode, "mode", string(database.SearchExact), "Match mode: exact or ranked")
	flags.StringVar(&q.Lang, "lang", "", "Only return cues in this language code")
	flags.StringVar(&q.StartTime, "start", "", "Only cues ending at or after HH:MM:SS")
	flags.StringVar(&q.EndTime, "end", "", "Only cues starting at or before HH:MM:SS")
	flags.IntVar(&q.Page, "page", 1, "Result page")
	flags.IntVar(&q.PerPage, "per-page", 20, "Results per page")
	flags.BoolVar(&jsonOut, "json", false, "Print results as JSON")
	flags.BoolVar(&estimate, "count", false, "Only print the number of matching cues")
	return cmd
}

func printSearchResult(cmd *cobra.Command, result *database.SearchResult) {
	out := cmd.OutOrStdout()
	if len(result.Hits) == 0 {
		fmt.Fprintf(out, "No cues match %q\n", result.Query)
		return
	}

	rows := make([][]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		rows = append(rows, []string{
			hit.MediaPath,
			hit.StartText + " - " + hit.EndText,
			hit.Lang,
			truncate(hit.Content, maxContentWidth),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Media", "Time", "Lang", "Text"}, rows, nil))
	fmt.Fprintf(out, "Page %d of %d (%s matches)\n",
		result.Page, max(result.TotalPages, 1), humanize.Comma(result.Total))
}

// truncate shortens s to at most width runes on one line.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
