package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aionmedia/aion/internal/cache"
	"github.com/aionmedia/aion/internal/encryption"
	"github.com/aionmedia/aion/internal/gemini"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/observability"
	"github.com/aionmedia/aion/internal/policy"
)

// ModelSettingKey is the per-user configuration entry holding a preferred model.
const ModelSettingKey = "GEMINI_MODEL"

const (
	defaultTurnCacheTTL = time.Hour
	defaultModel        = "gemini-1.5-flash"
)

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	DefaultModel      string
	DefaultCredential string
	// RequireCredential is false only for clients that need no key (the mock client).
	RequireCredential bool
	CacheTimeout      time.Duration
	TurnCacheTTL      time.Duration
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	UserID string
	// ConversationID selects an existing conversation owned by UserID. Empty starts a new one.
	ConversationID string
	Message        string
	Credential     string
	ModelName      string
}

type TurnResult struct {
	Response       string
	ConversationID string
	Cached         bool
}

type cachedTurn struct {
	Response string `json:"response"`
}

// Orchestrator turns user messages into persisted, possibly cached, memory-augmented model calls.
type Orchestrator struct {
	store   memory.Store
	cache   bestEffortCache
	client  gemini.Client
	cipher  encryption.Cipher
	metrics *observability.Metrics
	tracer  trace.Tracer
	opts    Options
}

func NewOrchestrator(
	store memory.Store,
	cacheStore cache.Store,
	client gemini.Client,
	cipher encryption.Cipher,
	metrics *observability.Metrics,
	opts Options,
) *Orchestrator {
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = defaultModel
	}
	if opts.TurnCacheTTL <= 0 {
		opts.TurnCacheTTL = defaultTurnCacheTTL
	}
	return &Orchestrator{
		store:   store,
		cache:   bestEffortCache{store: cacheStore, timeout: opts.CacheTimeout, metrics: metrics},
		client:  client,
		cipher:  cipher,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/aionmedia/aion/internal/chat"),
		opts:    opts,
	}
}

// HandleTurn runs one chat turn. Once validation passes the turn is not cancelled
// by the caller going away; only the model client's own timeout bounds it.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	turnStart := time.Now()
	req.UserID = strings.TrimSpace(req.UserID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)

	if err := validateTurn(req); err != nil {
		return TurnResult{}, err
	}
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		credential = strings.TrimSpace(o.opts.DefaultCredential)
	}
	if credential == "" && o.opts.RequireCredential {
		return TurnResult{}, &ConfigurationError{Reason: "a Gemini API key is required; set it in the app or GEMINI_API_KEY"}
	}

	ctx, span := o.tracer.Start(context.WithoutCancel(ctx), "chat.HandleTurn")
	defer span.End()

	res, err := o.runTurn(ctx, req, credential)
	o.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(turnStart))

	logger := log.With().Str("user_id", req.UserID).Str("conversation_id", res.ConversationID).Logger()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		o.metrics.ObserveTurn("failed")
		logger.Error().Err(errors.New(policy.RedactSecrets(err.Error()))).Msg("chat turn failed")
		return res, err
	}

	span.SetAttributes(
		attribute.String("chat.conversation_id", res.ConversationID),
		attribute.Bool("chat.cached", res.Cached),
	)
	if res.Cached {
		o.metrics.ObserveTurn("cached")
	} else {
		o.metrics.ObserveTurn("generated")
	}
	logger.Info().
		Bool("cached", res.Cached).
		Dur("elapsed", time.Since(turnStart)).
		Str("preview", policy.LogPreview(req.Message, 40)).
		Msg("chat turn completed")
	return res, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, req TurnRequest, credential string) (TurnResult, error) {
	model := o.resolveModel(ctx, req)

	stageStart := time.Now()
	conv, err := o.resolveConversation(ctx, req)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{ConversationID: conv.ID}

	inboundCipher, err := o.cipher.Encrypt(req.Message)
	if err != nil {
		return res, storageErr("encrypt user message", err)
	}
	inbound, err := o.store.SaveMessage(ctx, memory.Message{
		ConversationID: conv.ID,
		Role:           memory.RoleUser,
		Content:        inboundCipher,
	})
	if err != nil {
		return res, storageErr("save user message", err)
	}
	o.metrics.ObserveTurnStage(observability.StageConversation, time.Since(stageStart))

	stageStart = time.Now()
	recent, err := o.store.RecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return res, storageErr("load recent messages", err)
	}
	facts, err := o.store.ListFacts(ctx, req.UserID, factLimit)
	if err != nil {
		return res, storageErr("load memory facts", err)
	}
	o.metrics.ObserveTurnStage(observability.StageContext, time.Since(stageStart))

	stageStart = time.Now()
	fingerprint := TurnFingerprint(req.UserID, req.Message)
	cached, hit := o.lookupCachedTurn(ctx, fingerprint)
	o.metrics.ObserveTurnStage(observability.StageCacheLookup, time.Since(stageStart))
	if hit {
		o.metrics.ObserveTurnIndicator("cache_hit")
		if err := o.saveAssistantMessage(ctx, conv.ID, cached, map[string]any{"cached": true}); err != nil {
			return res, err
		}
		res.Response = cached
		res.Cached = true
		return res, nil
	}
	o.metrics.ObserveTurnIndicator("cache_miss")

	history, err := o.assembleHistory(recent, facts, inbound.ID)
	if err != nil {
		return res, err
	}

	stageStart = time.Now()
	text, err := o.client.Generate(ctx, gemini.GenerateRequest{
		Model:      model,
		Credential: credential,
		History:    history,
		Message:    req.Message,
	})
	o.metrics.ObserveTurnStage(observability.StageGeneration, time.Since(stageStart))
	if err != nil {
		return res, o.generationErr(err)
	}

	stageStart = time.Now()
	if err := o.saveAssistantMessage(ctx, conv.ID, text, nil); err != nil {
		return res, err
	}
	if payload, err := json.Marshal(cachedTurn{Response: text}); err == nil {
		o.cache.set(ctx, fingerprint, string(payload), o.opts.TurnCacheTTL)
	}
	if err := o.store.TouchConversation(ctx, conv.ID); err != nil {
		return res, storageErr("touch conversation", err)
	}
	o.metrics.ObserveTurnStage(observability.StagePersistReply, time.Since(stageStart))

	res.Response = text
	return res, nil
}

func validateTurn(req TurnRequest) error {
	if req.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageRunes {
		return &ValidationError{Field: "message", Reason: "exceeds 10000 characters"}
	}
	return nil
}

// resolveModel picks the request model, then the user's saved preference, then the default.
func (o *Orchestrator) resolveModel(ctx context.Context, req TurnRequest) string {
	if m := strings.TrimSpace(req.ModelName); m != "" {
		return m
	}
	setting, err := o.store.GetSetting(ctx, req.UserID, ModelSettingKey)
	switch {
	case err == nil && strings.TrimSpace(setting.Value) != "":
		return strings.TrimSpace(setting.Value)
	case err != nil && !errors.Is(err, memory.ErrNotFound):
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("model preference lookup failed, using default")
	}
	return o.opts.DefaultModel
}

func (o *Orchestrator) resolveConversation(ctx context.Context, req TurnRequest) (memory.Conversation, error) {
	if req.ConversationID == "" {
		conv, err := o.store.CreateConversation(ctx, req.UserID, conversationTitle(req.Message))
		if err != nil {
			return memory.Conversation{}, storageErr("create conversation", err)
		}
		return conv, nil
	}

	conv, err := o.store.GetConversation(ctx, req.ConversationID)
	if errors.Is(err, memory.ErrNotFound) || (err == nil && conv.UserID != req.UserID) {
		return memory.Conversation{}, &ValidationError{Field: "conversationId", Reason: "conversation not found", Err: ErrNotFound}
	}
	if err != nil {
		return memory.Conversation{}, storageErr("load conversation", err)
	}
	return conv, nil
}

func (o *Orchestrator) lookupCachedTurn(ctx context.Context, fingerprint string) (string, bool) {
	raw, ok := o.cache.get(ctx, fingerprint)
	if !ok {
		return "", false
	}
	var ct cachedTurn
	if err := json.Unmarshal([]byte(raw), &ct); err != nil || ct.Response == "" {
		log.Warn().Err(err).Msg("discarding unreadable cached turn")
		return "", false
	}
	return ct.Response, true
}

func (o *Orchestrator) assembleHistory(recent []memory.Message, facts []memory.Fact, currentID string) ([]gemini.Content, error) {
	lines := make([]factLine, 0, len(facts))
	for _, f := range facts {
		v, err := o.cipher.Decrypt(f.Value)
		if err != nil {
			return nil, storageErr("decrypt memory fact", err)
		}
		lines = append(lines, factLine{key: f.Key, value: v})
	}

	prior := make([]memory.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID == currentID {
			continue
		}
		plain, err := o.cipher.Decrypt(m.Content)
		if err != nil {
			return nil, storageErr("decrypt message", err)
		}
		m.Content = plain
		prior = append(prior, m)
	}
	return buildHistory(buildSystemInstruction(lines), prior), nil
}

func (o *Orchestrator) saveAssistantMessage(ctx context.Context, conversationID, text string, metadata map[string]any) error {
	sealed, err := o.cipher.Encrypt(text)
	if err != nil {
		return storageErr("encrypt assistant message", err)
	}
	if _, err := o.store.SaveMessage(ctx, memory.Message{
		ConversationID: conversationID,
		Role:           memory.RoleAssistant,
		Content:        sealed,
		Metadata:       metadata,
	}); err != nil {
		return storageErr("save assistant message", err)
	}
	return nil
}

func (o *Orchestrator) generationErr(err error) error {
	ge := &GenerationError{Err: err, Retryable: true}
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		ge.StatusCode = apiErr.StatusCode
		ge.Retryable = apiErr.Retryable()
		code := apiErr.Status
		if code == "" {
			code = "http_" + strconv.Itoa(apiErr.StatusCode)
		}
		o.metrics.ObserveProviderError("gemini", code)
	} else {
		o.metrics.ObserveProviderError("gemini", "transport")
	}
	return ge
}
