package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/startup"
	"subtitle-indexer/internal/status"
)

type maintenanceOp struct {
	name  string
	short string
	noun  string
	run   func(*database.Database, context.Context) (int64, error)
}

var maintenanceOps = []maintenanceOp{
	{
		name:  "dedupe",
		short: "Remove duplicate cues of the same media file",
		noun:  "duplicate cues",
		run:   (*database.Database).RemoveDuplicateSubtitles,
	},
	{
		name:  "orphans",
		short: "Remove cues whose media file row no longer exists",
		noun:  "orphaned cues",
		run:   (*database.Database).CleanupOrphanedSubtitles,
	},
	{
		name:  "missing",
		short: "Remove media files that are gone from disk, with their cues",
		noun:  "missing media files",
		run:   (*database.Database).RemoveMissingMedia,
	},
}

func newMaintenanceCommand(ctx *commandContext) *cobra.Command {
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Clean up the subtitle store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVar(&vacuum, "vacuum", false, "Reclaim disk space afterwards")

	for _, op := range maintenanceOps {
		op := op
		cmd.AddCommand(&cobra.Command{
			Use:   op.name,
			Short: op.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withDatabase(cmd.Context(), func(cfg *startup.Config, db *database.Database) error {
					return runMaintenance(cmd, cfg, db, op, vacuum)
				})
			},
		})
	}
	return cmd
}

func runMaintenance(cmd *cobra.Command, cfg *startup.Config, db *database.Database, op maintenanceOp, vacuum bool) error {
	st := status.NewStore(cfg.StatusPath, nil)
	defer st.Close()
	if err := checkNoActiveRun(st); err != nil {
		return err
	}

	removed, err := op.run(db, cmd.Context())
	if err != nil {
		return fmt.Errorf("%s: %w", op.name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s\n", humanize.Comma(removed), op.noun)

	if vacuum {
		if err := db.Vacuum(cmd.Context()); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database vacuumed")
	}
	return nil
}
