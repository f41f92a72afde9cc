package main

import (
	"fmt"
	"os"

	"ai-dashboard-client/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	userID   string
	username string
	token    string
	wsURL    string
	apiURL   string
	storeDrv string
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for the AI dashboard chat gateway",
	Long: `A terminal client for the AI dashboard chat gateway.

It keeps one session open, reconnects when the connection drops, and
remembers the active conversation between runs.

Quick Start:
  chatcli token --user alice            # dev token for the local gateway
  chatcli chat --user alice --token ...  # interactive session
  chatcli tail                           # follow events forwarded to NATS`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		flags := cmd.Flags()
		if flags.Changed("user") {
			cfg.Gateway.UserID = userID
		}
		if flags.Changed("username") {
			cfg.Gateway.Username = username
		}
		if flags.Changed("token") {
			cfg.Gateway.Token = token
		}
		if flags.Changed("ws-url") {
			cfg.Gateway.WebSocketURL = wsURL
		}
		if flags.Changed("api-url") {
			cfg.Gateway.APIBaseURL = apiURL
		}
		if flags.Changed("store") {
			cfg.Store.Driver = storeDrv
		}
		return cfg.Validate()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&userID, "user", "u", "", "User id (CHAT_USER_ID)")
	pf.StringVar(&username, "username", "", "Display name (CHAT_USERNAME)")
	pf.StringVarP(&token, "token", "t", "", "Bearer token (CHAT_TOKEN)")
	pf.StringVar(&wsURL, "ws-url", "", "Gateway websocket URL (WS_URL)")
	pf.StringVar(&apiURL, "api-url", "", "History API base URL (API_BASE_URL)")
	pf.StringVar(&storeDrv, "store", "", "Session store: file, redis or memory (SESSION_STORE)")
}
