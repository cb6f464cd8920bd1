// Command flexictl administers the Flexidesk user store: schema migrations
// and console accounts.
package main

import (
	"fmt"
	"os"

	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every subcommand, set up before any of them runs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "flexictl",
		Short:         "Flexidesk administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to the configured level")

	root.AddCommand(newMigrateCmd(a), newUserCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log, err := logger.New(logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}
