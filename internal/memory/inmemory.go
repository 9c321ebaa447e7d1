package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userKey struct {
	userID string
	key    string
}

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	conversations map[string]Conversation
	messages      map[string][]Message
	facts         map[userKey]Fact
	settings      map[userKey]Setting
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		facts:         make(map[userKey]Fact),
		settings:      make(map[userKey]Setting),
	}
}

func (s *InMemoryStore) CreateConversation(_ context.Context, userID, title string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := Conversation{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return nil
}

func (s *InMemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *InMemoryStore) SaveMessage(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return Message{}, fmt.Errorf("save message: conversation %q: %w", msg.ConversationID, ErrNotFound)
	}
	if !msg.Role.Valid() {
		return Message{}, fmt.Errorf("save message: invalid role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.CreatedAt = s.now()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[conversationID]
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, 0, limit)
	out = append(out, arr[len(arr)-limit:]...)
	return out, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[conversationID]
	out := make([]Message, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) UpsertFact(_ context.Context, fact Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{fact.UserID, fact.Key}
	now := s.now()
	if fact.Context == nil {
		fact.Context = map[string]any{}
	}
	fact.CreatedAt = now
	if prev, ok := s.facts[k]; ok {
		fact.CreatedAt = prev.CreatedAt
	}
	fact.UpdatedAt = now
	s.facts[k] = fact
	return nil
}

func (s *InMemoryStore) GetFact(_ context.Context, userID, key string) (Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[userKey{userID, key}]
	if !ok {
		return Fact{}, ErrNotFound
	}
	return f, nil
}

func (s *InMemoryStore) ListFacts(_ context.Context, userID string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Fact{}
	for k, f := range s.facts {
		if k.userID == userID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeleteFact(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{userID, key}
	if _, ok := s.facts[k]; !ok {
		return ErrNotFound
	}
	delete(s.facts, k)
	return nil
}

func (s *InMemoryStore) UpsertSetting(_ context.Context, setting Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{setting.UserID, setting.Key}
	now := s.now()
	setting.CreatedAt = now
	if prev, ok := s.settings[k]; ok {
		setting.CreatedAt = prev.CreatedAt
	}
	setting.UpdatedAt = now
	s.settings[k] = setting
	return nil
}

func (s *InMemoryStore) GetSetting(_ context.Context, userID, key string) (Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userKey{userID, key}]
	if !ok {
		return Setting{}, ErrNotFound
	}
	return st, nil
}

func (s *InMemoryStore) ListSettings(_ context.Context, userID string) ([]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Setting{}
	for k, st := range s.settings {
		if k.userID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) DeleteSetting(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{userID, key}
	if _, ok := s.settings[k]; !ok {
		return ErrNotFound
	}
	delete(s.settings, k)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
