// Package app wires the dialogue engine from configuration. Every transport
// (HTTP, Telegram, the local REPL) starts from Build.
package app

import (
	"context"
	"fmt"
	"io"

	"tablechat/internal/booking"
	"tablechat/internal/config"
	"tablechat/internal/datetime"
	"tablechat/internal/dialogue"
	"tablechat/internal/dispatcher"
	"tablechat/internal/domain"
	"tablechat/internal/events"
	"tablechat/internal/extractor"
	"tablechat/internal/intent"
	"tablechat/internal/metrics"
	"tablechat/internal/oracle"
	"tablechat/internal/prompts"
	"tablechat/internal/ratelimit"
	"tablechat/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App is a fully wired engine plus the resources that must be released.
type App struct {
	Engine  *dialogue.Engine
	Events  *events.EventBus
	Limiter *ratelimit.Failover
	Oracle  string

	closers []io.Closer
	logger  *zerolog.Logger
}

// Build assembles the engine. It never dials the oracle; a missing redis only
// degrades the rate limiter and the booking cache to their local variants.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	a := &App{logger: logger, Oracle: cfg.Oracle.Provider}

	metrics.Register()

	a.Events = events.NewEventBus()
	eventLogger := logger.With().Str("component", "events").Logger()
	a.Events.SubscribeAll(events.LogHandler(&eventLogger))

	set := prompts.Default()
	if cfg.Dialogue.TemplatesPath != "" {
		loaded, err := prompts.Load(cfg.Dialogue.TemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		set = loaded
	}

	policy, err := datetime.ParseHourPolicy(cfg.Dialogue.BareHourPolicy)
	if err != nil {
		return nil, err
	}
	resolver := datetime.NewResolver(
		datetime.WithHourPolicy(policy),
		datetime.WithLocation(cfg.Dialogue.Location()),
	)

	raw, err := oracle.New(cfg.Oracle)
	if err != nil {
		return nil, err
	}
	oracleLogger := logger.With().Str("component", "oracle").Logger()
	llm := oracle.Instrument(raw, &oracleLogger, metrics.IncOracleFailure)

	rdb := a.connectRedis(ctx, cfg.Redis)

	client, err := a.bookingClient(cfg.Booking, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	strategies := []extractor.Strategy{extractor.NewPatternStrategy(resolver)}
	clsOpts := []intent.Option{}
	if llm != nil {
		strategies = append([]extractor.Strategy{
			extractor.NewOracleStrategy(llm, set, resolver, cfg.Oracle.Timeout()),
		}, strategies...)
		clsOpts = append(clsOpts, intent.WithOracle(llm, set, cfg.Oracle.Timeout()))
	}
	ext := extractor.New(logger, strategies, extractor.WithObserver(metrics.IncExtraction))
	cls := intent.New(logger, clsOpts...)

	dispatchLogger := logger.With().Str("component", "dispatcher").Logger()
	disp := dispatcher.New(client, resolver,
		dispatcher.WithEvents(a.Events),
		dispatcher.WithTimeout(cfg.Booking.Timeout()),
		dispatcher.WithLogger(&dispatchLogger),
	)

	dialogueLogger := logger.With().Str("component", "dialogue").Logger()
	machine := dialogue.NewMachine(disp, set, cfg.Dialogue.MaxDispatchAttempts, &dialogueLogger)

	store := session.NewStore(
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithLogger(logger),
		session.WithResizeHook(metrics.SetSessions),
	)

	var primary domain.RateLimiter = ratelimit.NewMemory()
	if rdb != nil {
		primary = ratelimit.NewRedis(rdb)
	}
	a.Limiter = ratelimit.NewFailover(primary, ratelimit.NewMemory(), logger)

	a.Engine = dialogue.NewEngine(store, ext, cls, machine, resolver,
		dialogue.WithLogger(&dialogueLogger),
		dialogue.WithPrompts(set),
		dialogue.WithEvents(a.Events),
		dialogue.WithRateLimit(a.Limiter, cfg.Sessions.RateLimitMessages, cfg.Sessions.Window()),
		dialogue.WithHistoryLimit(cfg.Sessions.HistoryLimit),
	)

	logger.Info().
		Str("oracle", cfg.Oracle.Provider).
		Str("hour_policy", policy.String()).
		Bool("redis", rdb != nil).
		Int("max_sessions", cfg.Sessions.MaxSessions).
		Msg("dialogue engine ready")
	return a, nil
}

func (a *App) connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Address == "" {
		return nil
	}
	rdb := ratelimit.NewRedisClient(cfg)
	if err := ratelimit.Ping(ctx, rdb); err != nil {
		a.logger.Warn().Err(err).Str("addr", cfg.Address).Msg("redis connection failed, continuing without redis")
		_ = rdb.Close()
		return nil
	}
	a.logger.Info().Str("addr", cfg.Address).Msg("redis connected")
	a.closers = append(a.closers, rdb)
	return rdb
}

func (a *App) bookingClient(cfg config.BookingConfig, rdb *redis.Client) (domain.BookingClient, error) {
	bookingLogger := a.logger.With().Str("component", "booking").Logger()
	if cfg.BaseURL == "" {
		ledger, err := booking.OpenLedger(cfg.LedgerPath, &bookingLogger)
		if err != nil {
			return nil, fmt.Errorf("open booking ledger: %w", err)
		}
		a.closers = append(a.closers, ledger)
		a.logger.Info().Str("path", cfg.LedgerPath).Msg("using local booking ledger")
		return ledger, nil
	}

	client := booking.NewClient(cfg, &bookingLogger)
	if rdb != nil && cfg.CacheTTL() > 0 {
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}
	a.logger.Info().Str("base_url", cfg.BaseURL).Str("restaurant", cfg.Restaurant).Msg("using booking service")
	return client, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
