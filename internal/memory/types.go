package memory

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Conversation is an ordered, user-owned sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single immutable turn entry. Content is stored as ciphertext.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Fact is a user-scoped key/value note. Value is stored as ciphertext.
type Fact struct {
	UserID    string         `json:"user_id"`
	Key       string         `json:"key"`
	Value     string         `json:"value"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Setting is a per-user configuration entry such as the preferred model.
type Setting struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversations, messages, memory facts and settings.
type Store interface {
	CreateConversation(ctx context.Context, userID, title string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, msg Message) (Message, error)
	// RecentMessages returns at most limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	UpsertFact(ctx context.Context, fact Fact) error
	GetFact(ctx context.Context, userID, key string) (Fact, error)
	// ListFacts returns facts most recently updated first. limit <= 0 means no limit.
	ListFacts(ctx context.Context, userID string, limit int) ([]Fact, error)
	DeleteFact(ctx context.Context, userID, key string) error

	UpsertSetting(ctx context.Context, setting Setting) error
	GetSetting(ctx context.Context, userID, key string) (Setting, error)
	ListSettings(ctx context.Context, userID string) ([]Setting, error)
	DeleteSetting(ctx context.Context, userID, key string) error

	Ping(ctx context.Context) error
	Close() error
}
