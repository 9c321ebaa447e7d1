package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chat state in PostgreSQL. Each statement commits on its own.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS memory (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			context JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_user_updated ON memory (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS configurations (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, userID, title string) (Conversation, error) {
	c := Conversation{ID: uuid.NewString(), UserID: userID, Title: title}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_id, title) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.Title,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id=$1`,
		id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id=$1 ORDER BY updated_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Conversation, 0, limit)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Metadata,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	items, err := scanMessages(rows, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return scanMessages(rows, 0)
}

func scanMessages(rows pgx.Rows, capHint int) ([]Message, error) {
	defer rows.Close()
	items := make([]Message, 0, capHint)
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = Role(role)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertFact(ctx context.Context, fact Fact) error {
	if fact.Context == nil {
		fact.Context = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory (user_id, key, value, context) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, key) DO UPDATE SET
			value=EXCLUDED.value,
			context=EXCLUDED.context,
			updated_at=now()`,
		fact.UserID, fact.Key, fact.Value, fact.Context,
	)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFact(ctx context.Context, userID, key string) (Fact, error) {
	var f Fact
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, key, value, context, created_at, updated_at
		 FROM memory WHERE user_id=$1 AND key=$2`,
		userID, key,
	).Scan(&f.UserID, &f.Key, &f.Value, &f.Context, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fact{}, ErrNotFound
	}
	if err != nil {
		return Fact{}, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, userID string, limit int) ([]Fact, error) {
	query := `SELECT user_id, key, value, context, created_at, updated_at
		 FROM memory WHERE user_id=$1 ORDER BY updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	out := []Fact{}
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.UserID, &f.Key, &f.Value, &f.Context, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteFact(ctx context.Context, userID, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memory WHERE user_id=$1 AND key=$2`, userID, key)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertSetting(ctx context.Context, setting Setting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO configurations (user_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		setting.UserID, setting.Key, setting.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, userID, key string) (Setting, error) {
	var st Setting
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, key, value, created_at, updated_at FROM configurations WHERE user_id=$1 AND key=$2`,
		userID, key,
	).Scan(&st.UserID, &st.Key, &st.Value, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Setting{}, ErrNotFound
	}
	if err != nil {
		return Setting{}, fmt.Errorf("get setting: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context, userID string) ([]Setting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, key, value, created_at, updated_at FROM configurations WHERE user_id=$1 ORDER BY key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := []Setting{}
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.UserID, &st.Key, &st.Value, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, userID, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM configurations WHERE user_id=$1 AND key=$2`, userID, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
