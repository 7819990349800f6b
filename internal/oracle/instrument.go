package oracle

import (
	"context"
	"errors"
	"time"

	"tablechat/internal/domain"

	"github.com/rs/zerolog"
)

// Failure kinds reported by Instrument.
const (
	FailureTimeout     = "timeout"
	FailureUnavailable = "unavailable"
)

type instrumented struct {
	next      domain.Oracle
	logger    *zerolog.Logger
	onFailure func(kind string)
}

// Instrument wraps o so every failed call is logged and reported to onFailure.
func Instrument(o domain.Oracle, logger *zerolog.Logger, onFailure func(kind string)) domain.Oracle {
	if o == nil {
		return nil
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &instrumented{next: o, logger: logger, onFailure: onFailure}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, prompt, timeout)
	if err == nil {
		i.logger.Debug().Str("oracle", i.next.Name()).Dur("took", time.Since(start)).Msg("oracle answered")
		return out, nil
	}

	kind := FailureUnavailable
	if errors.Is(err, domain.ErrOracleTimeout) {
		kind = FailureTimeout
	}
	i.logger.Warn().Err(err).Str("oracle", i.next.Name()).Str("kind", kind).Dur("took", time.Since(start)).Msg("oracle call failed")
	if i.onFailure != nil {
		i.onFailure(kind)
	}
	return "", err
}
