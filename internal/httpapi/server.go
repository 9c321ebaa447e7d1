package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aionmedia/aion/internal/chat"
	"github.com/aionmedia/aion/internal/config"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/observability"
	"github.com/aionmedia/aion/internal/policy"
	"github.com/aionmedia/aion/internal/protocol"
)

const maxBodyBytes = 1 << 20

// ChatService runs turns and manages conversations.
type ChatService interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
	History(ctx context.Context, conversationID string) ([]memory.Message, error)
	ListConversations(ctx context.Context, userID string) ([]memory.Conversation, error)
	CreateConversation(ctx context.Context, userID, title string) (memory.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

type FactService interface {
	Upsert(ctx context.Context, userID, key, value string, factContext map[string]any) error
	Get(ctx context.Context, userID, key string) (memory.Fact, error)
	List(ctx context.Context, userID string) ([]memory.Fact, error)
	Delete(ctx context.Context, userID, key string) error
}

type SettingService interface {
	Save(ctx context.Context, userID, key, value string) error
	Get(ctx context.Context, userID, key string) (memory.Setting, error)
	List(ctx context.Context, userID string) ([]memory.Setting, error)
	Delete(ctx context.Context, userID, key string) error
}

// Services bundles the handlers' dependencies. Ready is optional and backs /readyz.
type Services struct {
	Chat     ChatService
	Facts    FactService
	Settings SettingService
	Ready    func(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	svc      Services
	metrics  *observability.Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc Services, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				frontend, err := url.Parse(cfg.FrontendURL)
				return err == nil && strings.EqualFold(u.Host, frontend.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/chat/history/{conversationId}", s.handleHistory)
		r.Get("/chat/ws", s.handleChatWS)

		r.Post("/memory", s.handleSaveMemory)
		r.Get("/memory/{userId}", s.handleGetMemory)
		r.Delete("/memory/{userId}/{key}", s.handleDeleteMemory)

		r.Post("/config", s.handleSaveConfig)
		r.Get("/config/{userId}", s.handleGetConfig)
		r.Delete("/config/{userId}/{key}", s.handleDeleteConfig)

		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{userId}", s.handleListConversations)
		r.Delete("/conversations/{conversationId}", s.handleDeleteConversation)
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         3600,
	}
	if s.cfg.AllowAnyOrigin {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = []string{s.cfg.FrontendURL}
		opts.AllowCredentials = true
	}
	return opts
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if route != "/metrics" && route != "/healthz" && route != "/readyz" {
			s.metrics.ObserveHTTP(route, status)
		}

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request completed")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			respondError(w, http.StatusServiceUnavailable, "not_ready", "storage unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// decodeAndValidate reports a 400 itself and returns false when the body is unusable.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(w, r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, protocol.ErrorResponse{Error: message, Code: code})
}

type errorMapping struct {
	status    int
	code      string
	message   string
	retryable bool
}

// classifyError maps the chat error taxonomy onto HTTP semantics.
func classifyError(err error) errorMapping {
	var (
		vErr   *chat.ValidationError
		cfgErr *chat.ConfigurationError
		genErr *chat.GenerationError
	)
	switch {
	case errors.As(err, &vErr):
		return errorMapping{status: http.StatusBadRequest, code: "invalid_request", message: vErr.Error()}
	case errors.Is(err, chat.ErrNotFound):
		return errorMapping{status: http.StatusNotFound, code: "not_found", message: "resource not found"}
	case errors.As(err, &cfgErr):
		return errorMapping{status: http.StatusBadRequest, code: "missing_credential", message: cfgErr.Reason}
	case errors.As(err, &genErr):
		return errorMapping{
			status:    http.StatusBadGateway,
			code:      "generation_failed",
			message:   policy.RedactSecrets(genErr.Error()),
			retryable: genErr.Retryable,
		}
	default:
		return errorMapping{status: http.StatusInternalServerError, code: "storage_error", message: "internal storage error"}
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	m := classifyError(err)
	if m.status >= http.StatusInternalServerError {
		log.Error().
			Str("request_id", middleware.GetReqID(r.Context())).
			Err(errors.New(policy.RedactSecrets(err.Error()))).
			Msg("request failed")
	}
	respondJSON(w, m.status, protocol.ErrorResponse{Error: m.message, Code: m.code, Retryable: m.retryable})
}
