// Package oracle adapts language model backends to domain.Oracle.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablechat/internal/config"
	"tablechat/internal/domain"
)

// New builds the configured oracle. It returns nil when no provider is set,
// in which case callers run on deterministic rules only.
func New(cfg config.OracleConfig) (domain.Oracle, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case config.ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case config.ProviderOpenAI:
		return NewOpenAICompatible(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// bounded runs call under timeout and maps failures onto the oracle sentinels.
func bounded(ctx context.Context, timeout time.Duration, call func(context.Context) (string, error)) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := call(ctx)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %v", domain.ErrOracleTimeout, err)
	}
	if errors.Is(err, domain.ErrOracleTimeout) || errors.Is(err, domain.ErrOracleUnavailable) {
		return "", err
	}
	return "", fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
}
