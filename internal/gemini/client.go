// Package gemini calls the Gemini generateContent API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aionmedia/aion/internal/reliability"
)

// Roles accepted by the API in conversation history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// TextContent builds a single-part content entry.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// GenerateRequest is one stateless generation call: prior history plus the new user message.
type GenerateRequest struct {
	Model      string
	Credential string
	History    []Content
	Message    string
}

// Client generates a reply for a conversation.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no error message"
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini http status %d (%s): %s", e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("gemini http status %d: %s", e.StatusCode, msg)
}

// Retryable reports whether a later attempt could succeed. Nothing in the service retries automatically.
func (e *APIError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode) || reliability.IsRetryableProviderStatus(e.Status)
}

// Config controls client construction.
type Config struct {
	Mode    string
	BaseURL string
	Timeout time.Duration
}

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "http"
	}

	switch mode {
	case "http":
		return NewRESTClient(cfg.BaseURL, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported gemini client mode %q", cfg.Mode)
	}
}
