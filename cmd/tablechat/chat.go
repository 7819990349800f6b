package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"tablechat/internal/app"
	"tablechat/internal/dialogue"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the booking assistant in the terminal",
	Long:  `Reads one message per line from stdin. /reset starts over, /quit or exit leaves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := app.Bootstrap(app.ConfigPath(configFlag(cmd)), "chat")
		if err != nil {
			return err
		}
		if closer != nil {
			defer (func() { _ = closer.Close() })()
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
			logger = logger.Level(zerolog.WarnLevel)
		}

		a, err := app.Build(cmd.Context(), cfg, &logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		return repl(cmd.Context(), a.Engine, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID)
	},
}

type turnEngine interface {
	HandleTurn(ctx context.Context, message, sessionID string) (dialogue.Reply, error)
	Reset(ctx context.Context, sessionID string) bool
	ResetReply() string
}

func repl(ctx context.Context, engine turnEngine, in io.Reader, out io.Writer, sessionID string) error {
	fmt.Fprintln(out, "--- tablechat (type /quit to leave) ---")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		case "/reset":
			if sessionID != "" {
				engine.Reset(ctx, sessionID)
			}
			fmt.Fprintln(out, engine.ResetReply())
			continue
		}

		reply, err := engine.HandleTurn(ctx, line, sessionID)
		if err != nil {
			return err
		}
		sessionID = reply.SessionID
		fmt.Fprintln(out, reply.Text)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "Resume a session id (a new one is generated otherwise)")
	chatCmd.Flags().BoolP("verbose", "v", false, "Keep info and debug logs")
}
