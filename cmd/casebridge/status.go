package main

import (
	"fmt"
	"time"

	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/ledger"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	dbPath string
}

var statusCmd = &cobra.Command{
	Use:   "status <application-uuid>",
	Short: "Print an application's integration ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.dbPath, "db", "", "database path (default from environment)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, database, err := openService(statusFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	app, err := db.GetApplicationByUUID(database, args[0])
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("application %s not found", args[0])
	}

	events, err := ledger.New(database).History(app.ID)
	if err != nil {
		return err
	}

	fmt.Printf("application %s  status=%s  case_id=%s  case_guid=%s\n",
		app.UUID, app.Status, orDash(app.CaseID), orDash(app.CaseGUID))

	if len(events) == 0 {
		fmt.Println("No ledger events.")
		return nil
	}

	fmt.Printf("%-19s  %s\n", "TIME", "STATUS")
	for _, e := range events {
		ts := time.Unix(e.CreatedAt, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Printf("%-19s  %s\n", ts, e.Status)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
