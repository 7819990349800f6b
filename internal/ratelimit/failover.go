package ratelimit

import (
	"context"
	"sync"
	"time"

	"tablechat/internal/domain"

	"github.com/rs/zerolog"
)

const recoverAfter = time.Minute

// Failover asks primary until it errors, then uses fallback and retries
// primary once a minute.
type Failover struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	down     bool
	downedAt time.Time
}

func NewFailover(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *Failover {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Failover{primary: primary, fallback: fallback, logger: logger, now: time.Now}
}

func (f *Failover) usePrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down || f.now().Sub(f.downedAt) > recoverAfter
}

func (f *Failover) mark(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if down {
		f.downedAt = f.now()
	} else if f.down {
		f.logger.Info().Msg("primary rate limiter recovered")
	}
	f.down = down
}

func (f *Failover) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if f.usePrimary() {
		allowed, err := f.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			f.mark(false)
			return allowed, nil
		}
		f.logger.Error().Err(err).Msg("primary rate limiter failed, falling back to memory")
		f.mark(true)
	}
	return f.fallback.CheckRateLimit(ctx, key, limit, window)
}

// Down reports whether the fallback is in use.
func (f *Failover) Down() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}
