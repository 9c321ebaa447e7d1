package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aionmedia/aion/internal/cache"
	"github.com/aionmedia/aion/internal/encryption"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/observability"
)

const (
	factCacheTTL  = 7 * 24 * time.Hour
	maxFactKeyLen = 500
)

// Facts manages per-user memory facts. Values are encrypted at rest and mirrored
// in plaintext to the cache for other readers; reads always go to the store.
type Facts struct {
	store  memory.Store
	cache  bestEffortCache
	cipher encryption.Cipher
}

func NewFacts(store memory.Store, cacheStore cache.Store, cipher encryption.Cipher, metrics *observability.Metrics, cacheTimeout time.Duration) *Facts {
	return &Facts{
		store:  store,
		cache:  bestEffortCache{store: cacheStore, timeout: cacheTimeout, metrics: metrics},
		cipher: cipher,
	}
}

func (f *Facts) Upsert(ctx context.Context, userID, key, value string, factContext map[string]any) error {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateFactKey(userID, key); err != nil {
		return err
	}
	if value == "" {
		return &ValidationError{Field: "value", Reason: "must not be empty"}
	}

	sealed, err := f.cipher.Encrypt(value)
	if err != nil {
		return storageErr("encrypt memory fact", err)
	}
	if err := f.store.UpsertFact(ctx, memory.Fact{
		UserID:  userID,
		Key:     key,
		Value:   sealed,
		Context: factContext,
	}); err != nil {
		return storageErr("upsert memory fact", err)
	}
	f.cache.set(ctx, FactCacheKey(userID, key), value, factCacheTTL)
	return nil
}

func (f *Facts) Get(ctx context.Context, userID, key string) (memory.Fact, error) {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateFactKey(userID, key); err != nil {
		return memory.Fact{}, err
	}
	fact, err := f.store.GetFact(ctx, userID, key)
	if errors.Is(err, memory.ErrNotFound) {
		return memory.Fact{}, ErrNotFound
	}
	if err != nil {
		return memory.Fact{}, storageErr("get memory fact", err)
	}
	return f.open(fact)
}

// List returns every fact of the user, most recently updated first.
func (f *Facts) List(ctx context.Context, userID string) ([]memory.Fact, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	facts, err := f.store.ListFacts(ctx, userID, 0)
	if err != nil {
		return nil, storageErr("list memory facts", err)
	}
	out := make([]memory.Fact, 0, len(facts))
	for _, fact := range facts {
		opened, err := f.open(fact)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (f *Facts) Delete(ctx context.Context, userID, key string) error {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateFactKey(userID, key); err != nil {
		return err
	}
	if err := f.store.DeleteFact(ctx, userID, key); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("delete memory fact", err)
	}
	f.cache.del(ctx, FactCacheKey(userID, key))
	return nil
}

func (f *Facts) open(fact memory.Fact) (memory.Fact, error) {
	plain, err := f.cipher.Decrypt(fact.Value)
	if err != nil {
		return memory.Fact{}, storageErr("decrypt memory fact", err)
	}
	fact.Value = plain
	if fact.Context == nil {
		fact.Context = map[string]any{}
	}
	return fact, nil
}

func validateFactKey(userID, key string) error {
	if userID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(key) > maxFactKeyLen {
		return &ValidationError{Field: "key", Reason: "exceeds 500 characters"}
	}
	return nil
}
