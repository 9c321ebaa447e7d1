package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// RESTClient talks to the Gemini REST endpoint. Each call is a single attempt.
type RESTClient struct {
	http *resty.Client
}

type generateContentRequest struct {
	Contents []Content `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RESTClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "aion-chat/1.0"),
	}
}

func (c *RESTClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := strings.TrimPrefix(strings.TrimSpace(req.Model), "models/")
	if model == "" {
		return "", fmt.Errorf("gemini model is required")
	}

	contents := make([]Content, 0, len(req.History)+1)
	contents = append(contents, req.History...)
	contents = append(contents, TextContent(RoleUser, req.Message))

	var (
		result  generateContentResponse
		errBody errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", req.Credential).
		SetPathParam("model", model).
		SetBody(generateContentRequest{Contents: contents}).
		SetResult(&result).
		SetError(&errBody).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("send gemini request: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{
			StatusCode: resp.StatusCode(),
			Status:     errBody.Error.Status,
			Message:    errBody.Error.Message,
		}
	}

	return extractText(result)
}

func extractText(res generateContentResponse) (string, error) {
	if len(res.Candidates) == 0 {
		if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini returned no candidates (blocked: %s)", res.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, p := range res.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty candidate (finish reason %q)", res.Candidates[0].FinishReason)
	}
	return out.String(), nil
}
