package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/startup"
	"subtitle-indexer/internal/status"
)

type rootFlags struct {
	configFile string
	mediaDir   string
	dataDir    string
	verbose    bool

	// Set by the index command before the config is loaded.
	strategy string
	workers  int
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *startup.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*startup.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(c.flags.configFile); path != "" {
			if err := os.Setenv("CONFIG_FILE", path); err != nil {
				c.configErr = err
				return
			}
		}
		cfg, err := startup.LoadWithOverrides(startup.Overrides{
			MediaDir: strings.TrimSpace(c.flags.mediaDir),
			DataDir:  strings.TrimSpace(c.flags.dataDir),
			Strategy: strings.TrimSpace(c.flags.strategy),
			Workers:  c.flags.workers,
		})
		if err != nil {
			c.configErr = err
			return
		}
		if err := startup.PrepareDirectories(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withDatabase opens the store for the duration of fn.
func (c *commandContext) withDatabase(ctx context.Context, fn func(*startup.Config, *database.Database) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := database.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return fn(cfg, db)
}

// checkNoActiveRun fails when another live process owns an indexing run.
func checkNoActiveRun(st *status.Store) error {
	if pid, ok := st.LiveOwner(); ok {
		return fmt.Errorf("indexing is already running in process %d", pid)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
