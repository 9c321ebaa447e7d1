package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalStore is a size-bounded in-process cache for dev setups without Redis.
type LocalStore struct {
	entries *lru.Cache[string, localEntry]
	now     func() time.Time
}

func NewLocalStore(size int) (*LocalStore, error) {
	if size <= 0 {
		size = 4096
	}
	entries, err := lru.New[string, localEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LocalStore{entries: entries, now: time.Now}, nil
}

func (s *LocalStore) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.entries.Remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := localEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries.Add(key, e)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

func (s *LocalStore) Close() error {
	s.entries.Purge()
	return nil
}
