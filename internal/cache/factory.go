package cache

import (
	"context"
	"strings"
)

// NewStore creates a redis-backed cache when configured, otherwise an in-process LRU.
func NewStore(ctx context.Context, redisURL string, localSize int) (Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewLocalStore(localSize)
	}
	return NewRedisStore(ctx, redisURL)
}
