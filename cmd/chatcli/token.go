package main

import (
	"fmt"
	"time"

	"ai-dashboard-client/internal/devserver"

	"github.com/spf13/cobra"
)

var ttl time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for the local development gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Gateway.UserID == "" {
			return fmt.Errorf("--user is required")
		}
		tok, err := devserver.IssueToken(cfg.Dev.JWTSecret, cfg.Gateway.UserID, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
