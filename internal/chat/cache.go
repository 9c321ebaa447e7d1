package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aionmedia/aion/internal/cache"
	"github.com/aionmedia/aion/internal/observability"
)

// bestEffortCache swallows every cache failure: errors become misses or skipped writes.
type bestEffortCache struct {
	store   cache.Store
	timeout time.Duration
	metrics *observability.Metrics
}

func (c bestEffortCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c bestEffortCache) get(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	v, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("cache get failed, treating as miss")
		c.metrics.ObserveCache("get", "error")
		return "", false
	case !ok:
		c.metrics.ObserveCache("get", "miss")
		return "", false
	default:
		c.metrics.ObserveCache("get", "hit")
		return v, true
	}
}

func (c bestEffortCache) set(ctx context.Context, key, value string, ttl time.Duration) {
	if c.store == nil {
		return
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		log.Warn().Err(err).Msg("cache set failed, skipping")
		c.metrics.ObserveCache("set", "error")
		return
	}
	c.metrics.ObserveCache("set", "ok")
}

func (c bestEffortCache) del(ctx context.Context, key string) {
	if c.store == nil {
		return
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.store.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Msg("cache delete failed, skipping")
		c.metrics.ObserveCache("delete", "error")
		return
	}
	c.metrics.ObserveCache("delete", "ok")
}
