package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/aionmedia/aion/internal/memory"
)

const conversationListLimit = 50

// History returns every message of a conversation, oldest first, with content decrypted.
// An unknown or deleted conversation has an empty history.
func (o *Orchestrator) History(ctx context.Context, conversationID string) ([]memory.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, &ValidationError{Field: "conversationId", Reason: "must not be empty"}
	}
	msgs, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	for i := range msgs {
		plain, err := o.cipher.Decrypt(msgs[i].Content)
		if err != nil {
			return nil, storageErr("decrypt message", err)
		}
		msgs[i].Content = plain
	}
	return msgs, nil
}

func (o *Orchestrator) ListConversations(ctx context.Context, userID string) ([]memory.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	convs, err := o.store.ListConversations(ctx, userID, conversationListLimit)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	return convs, nil
}

// CreateConversation starts an empty conversation. A blank title becomes "New conversation".
func (o *Orchestrator) CreateConversation(ctx context.Context, userID, title string) (memory.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return memory.Conversation{}, &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	title = conversationTitle(title)
	if title == "" {
		title = "New conversation"
	}
	conv, err := o.store.CreateConversation(ctx, userID, title)
	if err != nil {
		return memory.Conversation{}, storageErr("create conversation", err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation together with its messages.
func (o *Orchestrator) DeleteConversation(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return &ValidationError{Field: "conversationId", Reason: "must not be empty"}
	}
	if err := o.store.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("delete conversation", err)
	}
	return nil
}
