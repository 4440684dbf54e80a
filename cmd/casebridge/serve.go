package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citybenefits/casebridge/internal/auth"
	"github.com/citybenefits/casebridge/internal/batch"
	"github.com/citybenefits/casebridge/internal/config"
	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/decision"
	"github.com/citybenefits/casebridge/internal/ledger"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/citybenefits/casebridge/internal/models"
	"github.com/citybenefits/casebridge/internal/registry"
	"github.com/citybenefits/casebridge/internal/server"
	"github.com/citybenefits/casebridge/internal/tokens"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveFlags struct {
	dbPath   string
	port     int
	schedule string
	limit    int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the callback receiver and attachment endpoint",
	Long: `Serve the inbound HTTP endpoints the registry calls: the asynchronous
result callbacks and the attachment downloads. With --schedule, batch
scans for every request type also run in-process on the given cron
expression.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.dbPath, "db", "", "database path (default from environment)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port (default from environment)")
	serveCmd.Flags().StringVar(&serveFlags.schedule, "schedule", "", "cron expression for in-process batch scans")
	serveCmd.Flags().IntVar(&serveFlags.limit, "limit", 50, "per-type item limit for scheduled scans")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, database, err := openService(serveFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if serveFlags.port != 0 {
		cfg.ListenPort = serveFlags.port
	}

	if err := ensureAPIKey(database); err != nil {
		return err
	}

	srv := &server.Server{
		DB:     database,
		Ledger: ledger.New(database),
		Logger: logger.Named("server"),
	}

	managed := server.NewManagedServer("callback receiver",
		fmt.Sprintf(":%d", cfg.ListenPort), srv.Handler(), logger.Named("server"))

	logger.Info("starting callback receiver", logging.Port(cfg.ListenPort))
	managed.Start()
	if err := managed.WaitForStartup(time.Second); err != nil {
		return err
	}

	var scheduler *cron.Cron
	if serveFlags.schedule != "" {
		scheduler = cron.New()
		driver := newDriver(cfg, database)
		_, err := scheduler.AddFunc(serveFlags.schedule, func() {
			runScheduledScan(driver)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", serveFlags.schedule, err)
		}
		scheduler.Start()
		logger.Info("batch schedule active", zap.String("schedule", serveFlags.schedule))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	managed.Shutdown(context.Background())

	return nil
}

// runScheduledScan runs one batch scan per request type, sequentially.
// A token failure aborts the remaining types; they will be retried on the
// next tick.
func runScheduledScan(driver *batch.Driver) {
	for _, typ := range models.RequestTypes {
		_, err := driver.Run(context.Background(), batch.RunSpec{
			Type:  typ,
			Limit: serveFlags.limit,
		})
		if err != nil {
			logger.Error("scheduled scan failed", logging.RequestType(typ), zap.Error(err))
			return
		}
	}
}

// ensureAPIKey issues the registry's attachment-download key on first run.
// The display form is printed once and never shown again.
func ensureAPIKey(database *sql.DB) error {
	count, err := db.CountAPIKeys(database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count > 0 {
		return nil
	}

	displayKey, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate API key: %w", err)
	}
	if _, err := db.CreateAPIKey(database, prefix, hash); err != nil {
		return fmt.Errorf("create API key: %w", err)
	}

	fmt.Println("=============================================================")
	fmt.Println("ATTACHMENT API KEY CREATED (save this, it will not be shown again):")
	fmt.Println(displayKey)
	fmt.Println("=============================================================")
	return nil
}

// newDriver wires a batch driver from the shared service pieces.
func newDriver(cfg *config.Config, database *sql.DB) *batch.Driver {
	return &batch.Driver{
		DB:     database,
		Tokens: tokens.NewManager(database, cfg, logger.Named("tokens")),
		Client: registry.NewClient(cfg, logger.Named("registry")),
		Ledger: ledger.New(database),
		Applier: &decision.Applier{
			DB:             database,
			StagedPayments: cfg.StagedPayments,
			Logger:         logger.Named("decision"),
		},
		Cfg:    cfg,
		Logger: logger.Named("batch"),
	}
}
