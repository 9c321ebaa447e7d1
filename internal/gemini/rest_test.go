package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRESTClientGenerate(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody generateContentRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hola"},{"text":" mundo"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 5*time.Second)
	out, err := c.Generate(context.Background(), GenerateRequest{
		Model:      "models/gemini-1.5-flash",
		Credential: "secret-key",
		History: []Content{
			TextContent(RoleUser, "system instruction"),
			TextContent(RoleModel, "ack"),
		},
		Message: "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "Hola mundo", out)
	require.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", gotPath)
	require.Equal(t, "secret-key", gotKey)

	require.Len(t, gotBody.Contents, 3)
	require.Equal(t, RoleUser, gotBody.Contents[0].Role)
	require.Equal(t, RoleModel, gotBody.Contents[1].Role)
	require.Equal(t, RoleUser, gotBody.Contents[2].Role)
	require.Equal(t, "Hello", gotBody.Contents[2].Parts[0].Text)
}

func TestRESTClientMapsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", Credential: "k", Message: "hi"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)
	require.Equal(t, "Quota exceeded", apiErr.Message)
	require.True(t, apiErr.Retryable())
}

func TestRESTClientBadKeyIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", Credential: "bad", Message: "hi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.False(t, apiErr.Retryable())
	require.Contains(t, apiErr.Error(), "API key not valid.")
}

func TestRESTClientBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", Credential: "k", Message: "hi"})
	require.ErrorContains(t, err, "SAFETY")
}

func TestRESTClientRequiresModel(t *testing.T) {
	c := NewRESTClient("http://example.test", time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Credential: "k", Message: "hi"})
	require.ErrorContains(t, err, "model is required")
}

func TestNewClientModes(t *testing.T) {
	c, err := NewClient(Config{Mode: "mock"})
	require.NoError(t, err)
	require.IsType(t, &MockClient{}, c)

	c, err = NewClient(Config{})
	require.NoError(t, err)
	require.IsType(t, &RESTClient{}, c)

	_, err = NewClient(Config{Mode: "grpc"})
	require.Error(t, err)
}

func TestMockClientReply(t *testing.T) {
	m := NewMockClient()
	out, err := m.Generate(context.Background(), GenerateRequest{
		History: []Content{TextContent(RoleUser, "sys"), TextContent(RoleModel, "ack")},
		Message: "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "I heard you: Hello", out)
	require.EqualValues(t, 1, m.Calls())

	out, err = m.Generate(context.Background(), GenerateRequest{
		History: []Content{
			TextContent(RoleUser, "sys"), TextContent(RoleModel, "ack"),
			TextContent(RoleUser, "earlier"), TextContent(RoleModel, "reply"),
		},
		Message: "Again",
	})
	require.NoError(t, err)
	require.Contains(t, out, "2 earlier messages")
}
