package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aionmedia/aion/internal/cache"
	"github.com/aionmedia/aion/internal/chat"
	"github.com/aionmedia/aion/internal/config"
	"github.com/aionmedia/aion/internal/encryption"
	"github.com/aionmedia/aion/internal/gemini"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/observability"
)

type failingClient struct {
	err error
}

func (c failingClient) Generate(context.Context, gemini.GenerateRequest) (string, error) {
	return "", c.err
}

type testServerOptions struct {
	client gemini.Client
	chat   chat.Options
}

func newTestServer(t *testing.T, opts testServerOptions) *httptest.Server {
	t.Helper()
	if opts.client == nil {
		opts.client = gemini.NewMockClient()
	}
	cipher, err := encryption.NewAEADCipher("httpapi-test-secret")
	if err != nil {
		t.Fatalf("NewAEADCipher() error = %v", err)
	}
	local, err := cache.NewLocalStore(128)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	store := memory.NewInMemoryStore()

	cfg := config.Config{FrontendURL: "http://localhost:3000"}
	svc := Services{
		Chat:     chat.NewOrchestrator(store, local, opts.client, cipher, nil, opts.chat),
		Facts:    chat.NewFacts(store, local, cipher, nil, 0),
		Settings: chat.NewSettings(store),
		Ready:    store.Ping,
	}
	ts := httptest.NewServer(New(cfg, svc, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s %s response: %v", method, url, err)
	}
	return res, payload
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		res, payload := doJSON(t, http.MethodGet, ts.URL+path, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
		if _, ok := payload["timestamp"]; !ok {
			t.Fatalf("GET %s missing timestamp: %+v", path, payload)
		}
	}
}

func TestReadyzReportsStorageFailure(t *testing.T) {
	svc := Services{Ready: func(context.Context) error { return context.DeadlineExceeded }}
	ts := httptest.NewServer(New(config.Config{}, svc, nil).Router())
	defer ts.Close()

	res, payload := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
	if payload["code"] != "not_ready" {
		t.Fatalf("code = %v, want not_ready", payload["code"])
	}
}

func TestChatTurnAndCachedRepeat(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{
		"userId":  "u1",
		"message": "Hello",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (%+v)", res.StatusCode, http.StatusOK, payload)
	}
	if payload["success"] != true || payload["cached"] != false {
		t.Fatalf("unexpected first reply: %+v", payload)
	}
	if payload["response"] != "I heard you: Hello" {
		t.Fatalf("response = %v", payload["response"])
	}
	conversationID, _ := payload["conversationId"].(string)
	if conversationID == "" {
		t.Fatalf("missing conversationId: %+v", payload)
	}

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{
		"userId":         "u1",
		"message":        "Hello",
		"conversationId": conversationID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if payload["cached"] != true {
		t.Fatalf("repeat cached = %v, want true", payload["cached"])
	}

	res, payload = doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/"+conversationID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", res.StatusCode)
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("history len = %d, want 4", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "Hello" {
		t.Fatalf("unexpected first history entry: %+v", first)
	}
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	cases := []map[string]any{
		{"message": "hi"},
		{"userId": "u1"},
		{"userId": "u1", "message": strings.Repeat("x", 10001)},
		{"userId": "u1", "message": "hi", "conversationId": "not-a-uuid"},
		{"userId": "   ", "message": "hi"},
		// Unknown conversations are rejected as invalid input.
		{"userId": "u1", "message": "hi", "conversationId": uuid.NewString()},
	}
	for _, body := range cases {
		res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat", body)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %+v status = %d, want %d", body, res.StatusCode, http.StatusBadRequest)
		}
		if payload["code"] != "invalid_request" {
			t.Fatalf("body %+v code = %v, want invalid_request", body, payload["code"])
		}
	}
}

func TestChatMissingCredential(t *testing.T) {
	ts := newTestServer(t, testServerOptions{
		client: failingClient{},
		chat:   chat.Options{RequireCredential: true},
	})

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"userId": "u1", "message": "hi"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if payload["code"] != "missing_credential" {
		t.Fatalf("code = %v, want missing_credential", payload["code"])
	}
}

func TestChatGenerationFailure(t *testing.T) {
	ts := newTestServer(t, testServerOptions{
		client: failingClient{err: &gemini.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}},
		chat:   chat.Options{DefaultCredential: "k"},
	})

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"userId": "u1", "message": "hi"})
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
	if payload["code"] != "generation_failed" || payload["retryable"] != true {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestMemoryRoutes(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	for _, value := range []string{"blue", "red"} {
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/memory", map[string]any{
			"userId": "u1", "key": "color", "value": value, "context": map[string]any{"source": "test"},
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("save %s status = %d", value, res.StatusCode)
		}
	}

	_, payload := doJSON(t, http.MethodGet, ts.URL+"/api/memory/u1", nil)
	memories, _ := payload["memories"].([]any)
	if len(memories) != 1 {
		t.Fatalf("memories len = %d, want 1", len(memories))
	}
	if m, _ := memories[0].(map[string]any); m["value"] != "red" {
		t.Fatalf("memory value = %v, want red", m["value"])
	}

	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/memory/u1?key=missing", nil)
	if memories, _ := payload["memories"].([]any); len(memories) != 0 {
		t.Fatalf("missing key memories = %+v, want empty", memories)
	}

	res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/memory", map[string]any{"userId": "u1", "key": strings.Repeat("k", 501), "value": "v"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("long key status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/memory/u1/color", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/memory/u1/color", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestConfigRoutes(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/config", map[string]any{"userId": "u1", "key": "GEMINI_MODEL", "value": "gemini-pro"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", res.StatusCode)
	}

	_, payload := doJSON(t, http.MethodGet, ts.URL+"/api/config/u1?key=GEMINI_MODEL", nil)
	configs, _ := payload["configs"].(map[string]any)
	if configs["GEMINI_MODEL"] != "gemini-pro" {
		t.Fatalf("configs = %+v", configs)
	}

	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/config/u1/GEMINI_MODEL", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/config/u1", nil)
	if configs, _ := payload["configs"].(map[string]any); len(configs) != 0 {
		t.Fatalf("configs after delete = %+v, want empty", configs)
	}
}

func TestConversationRoutes(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/conversations", map[string]any{"userId": "u1", "title": "Trip"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	conv, _ := payload["conversation"].(map[string]any)
	id, _ := conv["id"].(string)
	if id == "" || conv["title"] != "Trip" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"userId": "u1", "message": "plan it", "conversationId": id})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", res.StatusCode)
	}

	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/conversations/u1", nil)
	if convs, _ := payload["conversations"].([]any); len(convs) != 1 {
		t.Fatalf("conversations = %+v, want 1", convs)
	}

	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/conversations/"+id, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/"+id, nil)
	if msgs, _ := payload["messages"].([]any); len(msgs) != 0 {
		t.Fatalf("history after delete = %+v, want empty", msgs)
	}
	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/conversations/"+id, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestPerfLatencyAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics("test_httpapi_" + strings.ReplaceAll(uuid.NewString(), "-", "_"))
	store := memory.NewInMemoryStore()
	cipher, err := encryption.NewAEADCipher("httpapi-test-secret")
	if err != nil {
		t.Fatalf("NewAEADCipher() error = %v", err)
	}
	svc := Services{Chat: chat.NewOrchestrator(store, nil, gemini.NewMockClient(), cipher, metrics, chat.Options{})}
	ts := httptest.NewServer(New(config.Config{}, svc, metrics).Router())
	defer ts.Close()

	if res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"userId": "u1", "message": "hi"}); res.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", res.StatusCode)
	}

	_, payload := doJSON(t, http.MethodGet, ts.URL+"/v1/perf/latency", nil)
	stages, _ := payload["stages"].([]any)
	if len(stages) == 0 {
		t.Fatalf("expected stage stats after a turn: %+v", payload)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	var body bytes.Buffer
	if _, err := body.ReadFrom(res.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(body.String(), "chat_turns_total") {
		t.Fatalf("metrics output missing chat_turns_total")
	}
}

func TestChatWebsocket(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]any{"type": "chat_turn", "requestId": "r1", "userId": "u1", "message": "Hello"}); err != nil {
		t.Fatalf("write chat_turn: %v", err)
	}
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply["type"] != "chat_reply" || reply["requestId"] != "r1" || reply["response"] != "I heard you: Hello" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("write bogus frame: %v", err)
	}
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if event["type"] != "error_event" || event["code"] != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", event)
	}
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, testServerOptions{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial with foreign origin succeeded, want failure")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", res)
	}
}
