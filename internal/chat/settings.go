package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/aionmedia/aion/internal/memory"
)

// Settings stores plaintext per-user configuration entries, e.g. GEMINI_MODEL.
type Settings struct {
	store memory.Store
}

func NewSettings(store memory.Store) *Settings {
	return &Settings{store: store}
}

func (s *Settings) Save(ctx context.Context, userID, key, value string) error {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateSettingKey(userID, key); err != nil {
		return err
	}
	if err := s.store.UpsertSetting(ctx, memory.Setting{UserID: userID, Key: key, Value: value}); err != nil {
		return storageErr("upsert setting", err)
	}
	return nil
}

func (s *Settings) Get(ctx context.Context, userID, key string) (memory.Setting, error) {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateSettingKey(userID, key); err != nil {
		return memory.Setting{}, err
	}
	setting, err := s.store.GetSetting(ctx, userID, key)
	if errors.Is(err, memory.ErrNotFound) {
		return memory.Setting{}, ErrNotFound
	}
	if err != nil {
		return memory.Setting{}, storageErr("get setting", err)
	}
	return setting, nil
}

func (s *Settings) List(ctx context.Context, userID string) ([]memory.Setting, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	settings, err := s.store.ListSettings(ctx, userID)
	if err != nil {
		return nil, storageErr("list settings", err)
	}
	return settings, nil
}

func (s *Settings) Delete(ctx context.Context, userID, key string) error {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if err := validateSettingKey(userID, key); err != nil {
		return err
	}
	if err := s.store.DeleteSetting(ctx, userID, key); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("delete setting", err)
	}
	return nil
}

func validateSettingKey(userID, key string) error {
	if userID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	return nil
}
