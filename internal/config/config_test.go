package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":5000", cfg.BindAddr)
	require.Equal(t, "http", cfg.GeminiMode)
	require.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	require.Equal(t, 60*time.Second, cfg.GeminiTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.CacheTimeout)
	require.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	require.Empty(t, cfg.DatabaseURL)
	require.Empty(t, cfg.RedisURL)
}

func TestLoadUsesExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123")
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("GEMINI_MODE", " MOCK ")
	t.Setenv("GEMINI_MODEL", "gemini-1.5-pro")
	t.Setenv("REDIS_URL", " redis://localhost:6379/2 ")
	t.Setenv("CACHE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9191", cfg.BindAddr)
	require.Equal(t, "mock", cfg.GeminiMode)
	require.Equal(t, "gemini-1.5-pro", cfg.GeminiModel)
	require.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	require.Equal(t, 2*time.Second, cfg.CacheTimeout)
}

func TestLoadRejectsMissingEncryptionKey(t *testing.T) {
	setCoreEnvEmpty(t)

	_, err := Load()
	require.ErrorContains(t, err, "ENCRYPTION_KEY")
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ENCRYPTION_KEY", "short")

	_, err := Load()
	require.ErrorContains(t, err, "at least 16")
}

func TestLoadRejectsUnknownGeminiMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123")
	t.Setenv("GEMINI_MODE", "grpc")

	_, err := Load()
	require.ErrorContains(t, err, "GEMINI_MODE")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123")
	t.Setenv("GEMINI_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"FRONTEND_URL",
		"DATABASE_URL",
		"REDIS_URL",
		"CACHE_TIMEOUT",
		"LOCAL_CACHE_SIZE",
		"ENCRYPTION_KEY",
		"GEMINI_MODE",
		"GEMINI_API_KEY",
		"GEMINI_MODEL",
		"GEMINI_BASE_URL",
		"GEMINI_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_SERVICE_NAME",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
