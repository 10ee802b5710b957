package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		logs    int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current or last indexing run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st := status.NewStore(cfg.StatusPath, nil)
			snap := st.Snapshot()
			if jsonOut {
				return writeJSON(cmd, snap)
			}
			printStatus(cmd, snap, logs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print status as JSON")
	cmd.Flags().IntVarP(&logs, "logs", "n", 10, "Number of recent log lines to show")
	return cmd
}

func printStatus(cmd *cobra.Command, snap status.Snapshot, logs int) {
	out := cmd.OutOrStdout()

	phase := string(snap.Phase)
	if snap.IsIndexing && !status.ProcessAlive(snap.PID) {
		phase += " (owner process gone)"
	}

	rows := [][]string{
		{"Phase", colorPhase(out, phase)},
		{"Indexing", yesNo(snap.IsIndexing)},
		{"Paused", yesNo(snap.IsPaused)},
	}
	if snap.Mode != "" {
		rows = append(rows, []string{"Mode", string(snap.Mode)})
	}
	if snap.Strategy != "" {
		rows = append(rows, []string{"Strategy", snap.Strategy})
	}
	rows = append(rows,
		[]string{"Progress", fmt.Sprintf("%d%% (%s / %s files)", snap.ProgressPercent,
			humanize.Comma(snap.ProcessedFiles), humanize.Comma(snap.TotalFiles))},
		[]string{"Cues", humanize.Comma(snap.SubtitleCount)},
	)
	if snap.ETA != "" {
		rows = append(rows, []string{"ETA", snap.ETA})
	}
	if snap.CurrentFile != "" {
		rows = append(rows, []string{"Current file", snap.CurrentFile})
	}
	if !snap.StartTime.IsZero() {
		rows = append(rows, []string{"Started", humanize.Time(snap.StartTime)})
	}
	if !snap.LastUpdated.IsZero() {
		rows = append(rows, []string{"Updated", humanize.Time(snap.LastUpdated)})
	}
	if snap.StatusMessage != "" {
		rows = append(rows, []string{"Message", snap.StatusMessage})
	}
	if snap.LastError != "" {
		rows = append(rows, []string{"Last error", snap.LastError})
	}
	fmt.Fprintln(out, renderTable([]string{"Indexing", "Value"}, rows, nil))

	if logs <= 0 || len(snap.LogMessages) == 0 {
		return
	}
	lines := snap.LogMessages
	if len(lines) > logs {
		lines = lines[len(lines)-logs:]
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
