package main

import (
	"github.com/spf13/cobra"

	"subtitle-indexer/internal/logging"
)

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "subctl",
		Short:         "Index and search subtitles from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.verbose {
				logging.SetLevel(logging.LevelDebug)
			} else {
				logging.SetLevel(logging.LevelWarn)
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().StringVar(&flags.mediaDir, "media-dir", "", "Media directory, overrides MEDIA_DIR")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Data directory, overrides DATA_DIR")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newIndexCommand(ctx))
	rootCmd.AddCommand(newRebuildCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newMaintenanceCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
