package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// MockClient provides deterministic local replies when Gemini is unavailable.
type MockClient struct {
	calls atomic.Int64
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	c.calls.Add(1)
	return buildMockReply(req), nil
}

// Calls reports how many generations were served.
func (c *MockClient) Calls() int64 { return c.calls.Load() }

func buildMockReply(req GenerateRequest) string {
	base := strings.TrimSpace(req.Message)
	if base == "" {
		base = "(empty message)"
	}

	// The first two history entries are the system instruction and its acknowledgment.
	prior := len(req.History) - 2
	if prior <= 0 {
		return fmt.Sprintf("I heard you: %s", base)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember %d earlier messages.", base, prior)
}
