package reliability

import "strings"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableProviderStatus classifies retryable upstream error statuses
// such as the google.rpc codes returned by the Gemini API.
func IsRetryableProviderStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL", "ABORTED":
		return true
	default:
		return false
	}
}
