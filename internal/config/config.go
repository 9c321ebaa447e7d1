package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":5000"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"aion"`

	FrontendURL    string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AllowAnyOrigin bool   `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisURL       string        `env:"REDIS_URL"`
	CacheTimeout   time.Duration `env:"CACHE_TIMEOUT" envDefault:"500ms"`
	LocalCacheSize int           `env:"LOCAL_CACHE_SIZE" envDefault:"4096"`

	EncryptionKey string `env:"ENCRYPTION_KEY"`

	GeminiMode    string        `env:"GEMINI_MODE" envDefault:"http"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"aion-chat"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.GeminiMode = strings.ToLower(strings.TrimSpace(cfg.GeminiMode))
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.EncryptionKey) < 16 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 16 characters")
	}
	switch c.GeminiMode {
	case "http", "mock":
	default:
		return fmt.Errorf("invalid GEMINI_MODE: %q (expected http|mock)", c.GeminiMode)
	}
	if strings.TrimSpace(c.GeminiModel) == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.GeminiTimeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if c.CacheTimeout <= 0 {
		return fmt.Errorf("CACHE_TIMEOUT must be positive")
	}
	if c.LocalCacheSize <= 0 {
		return fmt.Errorf("LOCAL_CACHE_SIZE must be positive")
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	return nil
}
