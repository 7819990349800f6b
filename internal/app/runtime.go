package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"tablechat/internal/api"
	"tablechat/internal/bot"
	"tablechat/internal/config"
	"tablechat/internal/domain"
	"tablechat/internal/logging"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var dialTelegram = func(cfg config.TelegramConfig) (domain.TelegramSender, error) {
	return bot.Connect(cfg)
}

// ConfigPath picks the explicit path, then $CONFIG_PATH, then the default.
func ConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// Bootstrap loads configuration and builds the process logger.
func Bootstrap(configPath, component string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", component).Logger()
	return cfg, logger, closer, nil
}

// Serve runs the HTTP API, and the Telegram bot when withBot is set, plus the
// metrics endpoint, until ctx is cancelled or one of them fails.
func Serve(ctx context.Context, a *App, cfg *config.Config, withHTTP, withBot bool, logger *zerolog.Logger) error {
	if !withHTTP && !withBot {
		return errors.New("nothing to serve")
	}

	// бот подключаем до старта серверов: ошибка здесь не должна оставить HTTP висеть
	var tg domain.TelegramSender
	if withBot {
		if err := cfg.ValidateTelegram(); err != nil {
			return err
		}
		var err error
		if tg, err = dialTelegram(cfg.Telegram); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		g.Go(func() error { return serveMetrics(ctx, cfg.Monitoring.PrometheusPort, logger) })
	}

	if withHTTP {
		httpServer := api.NewHTTPServer(cfg.API, a.Engine, a.Oracle, logger)
		g.Go(httpServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		logger.Info().Str("addr", httpServer.Addr()).Msg("API server started")
	}

	if tg != nil {
		botLogger := logger.With().Str("component", "telegram").Logger()
		b := bot.NewBot(tg, a.Engine, &botLogger)
		g.Go(func() error {
			b.Start(ctx)
			b.Stop()
			return nil
		})
	}

	err := g.Wait()
	logger.Info().Msg("servers stopped")
	return err
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
		return err
	}
	return nil
}
