package main

import (
	"os"
	"os/signal"
	"syscall"

	"tablechat/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP chat API",
	Long:  `Starts the chat API. With --bot the Telegram transport runs in the same process over the same sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withBot, _ := cmd.Flags().GetBool("bot")
		return serve(cmd, true, withBot, "serve")
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start the Telegram bot only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, false, true, "bot")
	},
}

func serve(cmd *cobra.Command, withHTTP, withBot bool, component string) error {
	cfg, logger, closer, err := app.Bootstrap(app.ConfigPath(configFlag(cmd)), component)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return app.Serve(ctx, a, cfg, withHTTP, withBot, &logger)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(botCmd)
	serveCmd.Flags().Bool("bot", false, "Also run the Telegram bot")
}
