// Package main implements the casebridge CLI.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/citybenefits/casebridge/internal/config"
	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "casebridge",
	Short: "Registry integration for benefit applications",
	Long: `casebridge mirrors benefit-application lifecycles into the external
case-management registry. It dispatches typed requests in scheduled
batches, receives the registry's asynchronous callbacks, and keeps an
append-only ledger of integration progress per application.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openService loads and validates configuration, then opens the database.
func openService(dbOverride string) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, database, nil
}
