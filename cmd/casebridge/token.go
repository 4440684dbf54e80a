package main

import (
	"fmt"
	"time"

	"github.com/citybenefits/casebridge/internal/tokens"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	dbPath string
	code   string
}

var refreshTokenCmd = &cobra.Command{
	Use:   "refresh-token",
	Short: "Refresh the stored registry token",
	Long: `Exchange the stored refresh token for a new token pair. The stored
token is replaced atomically; batch runs abort when it has expired, so
this should run on a schedule comfortably inside the token lifetime.`,
	RunE: runRefreshToken,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Perform the initial authorization_code exchange",
	RunE:  runAuthorize,
}

func init() {
	rootCmd.AddCommand(refreshTokenCmd)
	rootCmd.AddCommand(authorizeCmd)

	refreshTokenCmd.Flags().StringVar(&tokenFlags.dbPath, "db", "", "database path (default from environment)")
	authorizeCmd.Flags().StringVar(&tokenFlags.dbPath, "db", "", "database path (default from environment)")
	authorizeCmd.Flags().StringVar(&tokenFlags.code, "code", "", "authorization code from the registry")
	_ = authorizeCmd.MarkFlagRequired("code")
}

func runRefreshToken(cmd *cobra.Command, args []string) error {
	cfg, database, err := openService(tokenFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	manager := tokens.NewManager(database, cfg, logger.Named("tokens"))
	tok, err := manager.Refresh(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Token refreshed, valid until %s.\n",
		tok.ExpiresAt().Format(time.RFC3339))
	return nil
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	cfg, database, err := openService(tokenFlags.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	manager := tokens.NewManager(database, cfg, logger.Named("tokens"))
	tok, err := manager.Exchange(cmd.Context(), tokenFlags.code)
	if err != nil {
		return err
	}

	fmt.Printf("Token stored, valid until %s.\n",
		tok.ExpiresAt().Format(time.RFC3339))
	return nil
}
