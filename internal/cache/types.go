package cache

import (
	"context"
	"time"
)

// Store is a best-effort key/value cache. Callers treat every error as a miss or a no-op.
type Store interface {
	// Get reports ok=false on a miss. A miss is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
