package main

import (
	"os"
	"strings"

	"github.com/citybenefits/casebridge/internal/batch"
	"github.com/citybenefits/casebridge/internal/models"
	"github.com/spf13/cobra"
)

var sendFlags struct {
	dbPath      string
	requestType string
	number      int
	dryRun      bool
}

var sendCmd = &cobra.Command{
	Use:     "send-requests",
	Aliases: []string{"send_requests", "send"},
	Short:   "Run one batch scan for a request type",
	Long: `Select candidate applications for the given request type and dispatch
the matching registry requests. Failed items keep their prior state and
are re-selected on the next run.

Request types: ` + strings.Join(models.RequestTypes, ", "),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendFlags.dbPath, "db", "", "database path (default from environment)")
	sendCmd.Flags().StringVar(&sendFlags.requestType, "request-type", "", "request type to process")
	sendCmd.Flags().IntVar(&sendFlags.number, "number", 50, "maximum number of applications to process")
	sendCmd.Flags().BoolVar(&sendFlags.dryRun, "dry-run", false, "list candidates without dispatching")
	_ = sendCmd.MarkFlagRequired("request-type")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, database, err := openService(sendFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	driver := newDriver(cfg, database)
	driver.Progress = os.Stdout

	_, err = driver.Run(cmd.Context(), batch.RunSpec{
		Type:   sendFlags.requestType,
		Limit:  sendFlags.number,
		DryRun: sendFlags.dryRun,
	})
	return err
}
