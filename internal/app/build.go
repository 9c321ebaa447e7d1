package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/aionmedia/aion/internal/cache"
	"github.com/aionmedia/aion/internal/chat"
	"github.com/aionmedia/aion/internal/config"
	"github.com/aionmedia/aion/internal/encryption"
	"github.com/aionmedia/aion/internal/gemini"
	"github.com/aionmedia/aion/internal/httpapi"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/observability"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *chat.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release the database pool and cache client.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	cipher, err := encryption.NewAEADCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption init failed: %w", err)
	}

	client, err := NewGeminiClient(cfg)
	if err != nil {
		return nil, err
	}

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	cacheStore, err := cache.NewStore(ctx, cfg.RedisURL, cfg.LocalCacheSize)
	if err != nil {
		_ = memoryStore.Close()
		return nil, fmt.Errorf("cache init failed: %w", err)
	}

	orchestrator := chat.NewOrchestrator(memoryStore, cacheStore, client, cipher, metrics, chat.Options{
		DefaultModel:      cfg.GeminiModel,
		DefaultCredential: cfg.GeminiAPIKey,
		RequireCredential: cfg.GeminiMode != "mock",
		CacheTimeout:      cfg.CacheTimeout,
	})

	api := httpapi.New(cfg, httpapi.Services{
		Chat:     orchestrator,
		Facts:    chat.NewFacts(memoryStore, cacheStore, cipher, metrics, cfg.CacheTimeout),
		Settings: chat.NewSettings(memoryStore),
		Ready:    memoryStore.Ping,
	}, metrics)

	log.Info().
		Str("gemini_mode", cfg.GeminiMode).
		Str("gemini_model", cfg.GeminiModel).
		Bool("postgres", cfg.DatabaseURL != "").
		Bool("redis", cfg.RedisURL != "").
		Msg("services wired")

	cleanup := func() error {
		return errors.Join(cacheStore.Close(), memoryStore.Close())
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

// NewGeminiClient builds the model client selected by GEMINI_MODE.
func NewGeminiClient(cfg config.Config) (gemini.Client, error) {
	client, err := gemini.NewClient(gemini.Config{
		Mode:    cfg.GeminiMode,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GeminiTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	return client, nil
}
