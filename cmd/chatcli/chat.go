package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ai-dashboard-client/internal/bootstrap"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/render"
	"ai-dashboard-client/internal/service"
	"ai-dashboard-client/internal/tracer"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const chatHelp = `commands:
  /new            start a new conversation
  /switch <id>    switch to conversation <id>
  /connect        connect again after giving up
  /disconnect     close the connection
  /status         show connection and conversation
  /quit           exit`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shutdownTracer := tracer.InitTracer("ai-dashboard-chatcli")
		defer shutdownTracer(context.Background())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Console stays readable: logs go to the file only.
		container, err := bootstrap.NewContainer(cfg, bootstrap.WithLogger(logger.NewIsolatedLogger(cfg.App.LogFilePath)))
		if err != nil {
			return err
		}
		defer container.Close()

		session := container.SessionService
		renderer := render.New(cmd.OutOrStdout(), session.Snapshot)
		if err := container.ConsumerService.Consume(ctx, renderer.Handle); err != nil {
			return fmt.Errorf("subscribe to session events: %w", err)
		}

		if err := session.Start(ctx); err != nil {
			return err
		}
		if err := session.Connect(ctx); err != nil {
			color.Red("connect failed: %v", err)
		}

		color.New(color.Faint).Fprintln(cmd.OutOrStdout(), "type /help for commands")
		return repl(ctx, cmd, session)
	},
}

func repl(ctx context.Context, cmd *cobra.Command, session service.ISessionService) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runLine(ctx, cmd, session, strings.TrimSpace(line))
			if err != nil {
				color.Red("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func runLine(ctx context.Context, cmd *cobra.Command, session service.ISessionService, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := session.Submit(ctx, line)
		if errors.Is(err, service.ErrNotConnected) {
			return false, errors.New("not connected, message not sent (use /connect)")
		}
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(cmd.OutOrStdout(), chatHelp)
	case "/new":
		return false, session.NewConversation()
	case "/switch":
		if len(fields) != 2 {
			return false, errors.New("usage: /switch <conversation-id>")
		}
		return false, session.SelectConversation(fields[1])
	case "/connect":
		return false, session.Connect(ctx)
	case "/disconnect":
		return false, session.Disconnect()
	case "/status":
		state, err := session.State()
		if err != nil {
			return false, err
		}
		id, err := session.ConversationID()
		if err != nil {
			return false, err
		}
		if id == "" {
			id = "(new)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connection: %s\nconversation: %s\n", state, id)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
