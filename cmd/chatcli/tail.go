package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/render"
	"ai-dashboard-client/pkg/events"
	pktNats "ai-dashboard-client/pkg/nats"

	"github.com/spf13/cobra"
)

var durable string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow session events forwarded to NATS",
	Long: `Follow the session events another chatcli process forwards to NATS
JetStream (NATS_URL must be set on both sides).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Events.NatsURL == "" {
			return fmt.Errorf("NATS_URL is not set")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
		sub, err := pktNats.NewSubscriber(cfg.Events.NatsURL, sysLogger)
		if err != nil {
			return err
		}
		defer sub.Close()

		renderer := render.New(cmd.OutOrStdout(), nil)
		err = sub.Subscribe(ctx, pktNats.SubjectPrefix+">", durable, func(ctx context.Context, e events.Event) error {
			renderer.Handle(ctx, events.BaseEvent{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
			return nil
		})
		if err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVar(&durable, "durable", "", "Durable consumer name; empty follows new events only")
	rootCmd.AddCommand(tailCmd)
}
