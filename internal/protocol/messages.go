package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatTurn   MessageType = "chat_turn"
	TypeChatReply  MessageType = "chat_reply"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message" validate:"required,max=10000"`
	UserID         string `json:"userId" validate:"required"`
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,uuid"`
	APIKey         string `json:"apiKey,omitempty"`
	ModelName      string `json:"modelName,omitempty"`
}

type ChatResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	Cached         bool   `json:"cached"`
}

// ChatTurn is a websocket frame carrying one chat message. RequestID is echoed on the reply.
type ChatTurn struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	ChatRequest
}

type ChatReply struct {
	Type           MessageType `json:"type"`
	RequestID      string      `json:"requestId,omitempty"`
	Response       string      `json:"response"`
	ConversationID string      `json:"conversationId"`
	Cached         bool        `json:"cached"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ErrorResponse is returned by every failing HTTP endpoint.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// StatusResponse acknowledges writes that return no record.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MessageView struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

type HistoryResponse struct {
	Success  bool          `json:"success"`
	Messages []MessageView `json:"messages"`
}

type ConversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateConversationRequest struct {
	UserID string `json:"userId" validate:"required"`
	Title  string `json:"title,omitempty"`
}

type ConversationResponse struct {
	Success      bool             `json:"success"`
	Conversation ConversationView `json:"conversation"`
}

type ConversationsResponse struct {
	Success       bool               `json:"success"`
	Conversations []ConversationView `json:"conversations"`
}

type SaveMemoryRequest struct {
	UserID  string         `json:"userId" validate:"required"`
	Key     string         `json:"key" validate:"required,max=500"`
	Value   string         `json:"value" validate:"required"`
	Context map[string]any `json:"context,omitempty"`
}

type MemoryView struct {
	Key       string         `json:"key"`
	Value     string         `json:"value"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type MemoriesResponse struct {
	Success  bool         `json:"success"`
	Memories []MemoryView `json:"memories"`
}

type SaveConfigRequest struct {
	UserID string `json:"userId" validate:"required"`
	Key    string `json:"key" validate:"required"`
	Value  string `json:"value" validate:"required"`
}

type ConfigsResponse struct {
	Success bool              `json:"success"`
	Configs map[string]string `json:"configs"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatTurn:
		var msg ChatTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.UserID) == "" || msg.Message == "" {
			return nil, errors.New("invalid chat_turn")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
