package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aionmedia/aion/internal/app"
	"github.com/aionmedia/aion/internal/config"
	"github.com/aionmedia/aion/internal/gemini"
	"github.com/aionmedia/aion/internal/observability"
	"github.com/aionmedia/aion/internal/policy"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func buildRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "aion",
		Short: "Chat service backed by Gemini with persisted history and per-user memory",
		Long: strings.TrimSpace(`aion serves a JSON and websocket chat API. Each turn is stored
encrypted in Postgres (or in memory), enriched with the user's memory facts,
answered by Gemini and cached in Redis (or an in-process LRU).`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")

	root.AddCommand(newServeCommand())
	root.AddCommand(newCheckModelCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// loadEnvFile never overrides variables already set; a missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	observability.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP and websocket chat API",
		Example: "  aion serve\n  GEMINI_MODE=mock aion serve --env-file dev.env",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-listenErr:
		if ok {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func newCheckModelCommand() *cobra.Command {
	var (
		model   string
		message string
	)

	cmd := &cobra.Command{
		Use:   "check-model",
		Short: "Send one prompt to Gemini to verify the API key and model",
		Example: strings.Join([]string{
			"  aion check-model",
			"  aion check-model --model gemini-1.5-pro --message \"Say hi\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.GeminiMode != "mock" && cfg.GeminiAPIKey == "" {
				return errors.New("GEMINI_API_KEY is not set")
			}
			if strings.TrimSpace(model) == "" {
				model = cfg.GeminiModel
			}

			client, err := app.NewGeminiClient(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			start := time.Now()
			reply, err := client.Generate(ctx, gemini.GenerateRequest{
				Model:      model,
				Credential: cfg.GeminiAPIKey,
				Message:    message,
			})
			if err != nil {
				return fmt.Errorf("model %s: %s", model, policy.RedactSecrets(err.Error()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s answered in %s:\n%s\n", model, time.Since(start).Round(time.Millisecond), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model to test (defaults to GEMINI_MODEL)")
	cmd.Flags().StringVarP(&message, "message", "m", "Reply with a short greeting.", "Prompt to send")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aion %s\n", version)
		},
	}
}
