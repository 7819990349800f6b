package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tablechat/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := app.Bootstrap(app.ConfigPath(""), "api-main")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("build engine")
		return err
	}
	defer a.Close()

	return app.Serve(ctx, a, cfg, true, false, &logger)
}
