package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    user_id TEXT NOT NULL,
    parent_conversation_id TEXT,
    split_from_message_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    reasoning_content TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    completed INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_summaries (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL UNIQUE,
    summarized_content TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    completed INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    model_id TEXT NOT NULL UNIQUE,
    provider_type TEXT NOT NULL,
    vision INTEGER NOT NULL DEFAULT 0,
    reasoning INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_parent ON conversations(parent_conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON conversation_summaries(conversation_id);
`

// SQLiteStore implements Store on a cgo-free sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and if necessary initializes) the database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	// modernc sqlite serializes writes through one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		log.Warn().Err(err).Msg("failed to enable foreign keys")
	}

	return &SQLiteStore{db: db}, nil
}

// OpenMemory opens a throwaway in-memory database, used by tests and the
// demo CLI mode.
func OpenMemory() (*SQLiteStore, error) {
	return Open(":memory:")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---- conversations ----

func (s *SQLiteStore) InsertConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, user_id, parent_conversation_id, split_from_message_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.UserID, nullable(c.ParentConversationID), nullable(c.SplitFromMessageID),
		c.CreatedAt.UnixMicro(), c.UpdatedAt.UnixMicro())
	return errors.Wrap(err, "failed to insert conversation")
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, user_id, parent_conversation_id, split_from_message_id, created_at, updated_at
		 FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &conversation.NotFoundError{Kind: "conversation", ID: id}
	}
	return c, err
}

func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, user_id, parent_conversation_id, split_from_message_id, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return collectConversations(rows)
}

func (s *SQLiteStore) ListChildConversations(ctx context.Context, parentID string) ([]*conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, user_id, parent_conversation_id, split_from_message_id, created_at, updated_at
		 FROM conversations WHERE parent_conversation_id = ?`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list child conversations")
	}
	return collectConversations(rows)
}

func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, id string, title string, at time.Time) error {
	return s.execOne(ctx, "conversation", id,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, at.UnixMicro(), id)
}

func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "conversation", id,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		at.UnixMicro(), id)
}

func (s *SQLiteStore) ClearConversationParent(ctx context.Context, id string) error {
	return s.execOne(ctx, "conversation", id,
		`UPDATE conversations SET parent_conversation_id = NULL, split_from_message_id = NULL WHERE id = ?`,
		id)
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return errors.Wrap(err, "failed to delete conversation")
}

// ---- messages ----

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *conversation.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, reasoning_content, error_message, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.ReasoningContent, m.ErrorMessage,
		boolInt(m.Completed), m.CreatedAt.UnixMicro())
	return errors.Wrap(err, "failed to insert message")
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*conversation.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, role, content, reasoning_content, error_message, completed, created_at
		 FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &conversation.NotFoundError{Kind: "message", ID: id}
	}
	return m, err
}

func (s *SQLiteStore) PatchMessage(ctx context.Context, id string, patch MessagePatch) error {
	return s.execOne(ctx, "message", id,
		`UPDATE messages SET content = ?, reasoning_content = ?, error_message = ?, completed = ? WHERE id = ?`,
		patch.Content, patch.ReasoningContent, patch.ErrorMessage, boolInt(patch.Completed), id)
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, reasoning_content, error_message, completed, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return collectMessages(rows)
}

func (s *SQLiteStore) ListMessagesDesc(ctx context.Context, conversationID string, limit int, excludeEmpty bool) ([]*conversation.Message, error) {
	q := `SELECT id, conversation_id, role, content, reasoning_content, error_message, completed, created_at
	      FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if excludeEmpty {
		q += ` AND content != ''`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return collectMessages(rows)
}

func (s *SQLiteStore) ListMessagesBefore(ctx context.Context, conversationID string, cutoff time.Time, limit int) ([]*conversation.Message, error) {
	q := `SELECT id, conversation_id, role, content, reasoning_content, error_message, completed, created_at
	      FROM messages WHERE conversation_id = ? AND created_at <= ?
	      ORDER BY created_at DESC, id DESC`
	args := []interface{}{conversationID, cutoff.UnixMicro()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages before cutoff")
	}
	return collectMessages(rows)
}

func (s *SQLiteStore) DeleteMessagesByConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return errors.Wrap(err, "failed to delete messages")
}

// ---- summaries ----

func (s *SQLiteStore) UpsertSummary(ctx context.Context, sum *conversation.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_summaries (id, conversation_id, summarized_content, error_message, completed, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		     summarized_content = excluded.summarized_content,
		     error_message = excluded.error_message,
		     completed = excluded.completed,
		     updated_at = excluded.updated_at`,
		sum.ID, sum.ConversationID, sum.SummarizedContent, sum.ErrorMessage,
		boolInt(sum.Completed), sum.UpdatedAt.UnixMicro())
	return errors.Wrap(err, "failed to upsert summary")
}

func (s *SQLiteStore) GetSummary(ctx context.Context, conversationID string) (*conversation.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, summarized_content, error_message, completed, updated_at
		 FROM conversation_summaries WHERE conversation_id = ?`, conversationID)

	var sum conversation.Summary
	var completed int
	var updatedAt int64
	err := row.Scan(&sum.ID, &sum.ConversationID, &sum.SummarizedContent, &sum.ErrorMessage, &completed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &conversation.NotFoundError{Kind: "summary", ID: conversationID}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get summary")
	}
	sum.Completed = completed != 0
	sum.UpdatedAt = time.UnixMicro(updatedAt)
	return &sum, nil
}

func (s *SQLiteStore) DeleteSummary(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_summaries WHERE conversation_id = ?`, conversationID)
	return errors.Wrap(err, "failed to delete summary")
}

// ---- models ----

func (s *SQLiteStore) SeedModels(ctx context.Context, models []conversation.Model) error {
	for _, m := range models {
		id := m.ID
		if id == "" {
			id = conversation.NewID()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO models (id, name, model_id, provider_type, vision, reasoning)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(model_id) DO UPDATE SET
			     name = excluded.name,
			     provider_type = excluded.provider_type,
			     vision = excluded.vision,
			     reasoning = excluded.reasoning`,
			id, m.Name, m.ModelID, string(m.Type),
			boolInt(m.Capabilities.Vision), boolInt(m.Capabilities.Reasoning))
		if err != nil {
			return errors.Wrapf(err, "failed to seed model %s", m.ModelID)
		}
	}
	return nil
}

func (s *SQLiteStore) GetModelByModelID(ctx context.Context, modelID string) (*conversation.Model, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, model_id, provider_type, vision, reasoning FROM models WHERE model_id = ?`, modelID)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &conversation.NotFoundError{Kind: "model", ID: modelID}
	}
	return m, err
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]*conversation.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model_id, provider_type, vision, reasoning FROM models ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list models")
	}
	defer closeRows(rows)

	var ret []*conversation.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}
	return ret, rows.Err()
}

// ---- helpers ----

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*conversation.Conversation, error) {
	var c conversation.Conversation
	var parentID, splitFromID sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&c.ID, &c.Title, &c.UserID, &parentID, &splitFromID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan conversation")
	}
	if parentID.Valid {
		c.ParentConversationID = &parentID.String
	}
	if splitFromID.Valid {
		c.SplitFromMessageID = &splitFromID.String
	}
	c.CreatedAt = time.UnixMicro(createdAt)
	c.UpdatedAt = time.UnixMicro(updatedAt)
	return &c, nil
}

func scanMessage(row scanner) (*conversation.Message, error) {
	var m conversation.Message
	var role string
	var completed int
	var createdAt int64
	err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.ReasoningContent, &m.ErrorMessage, &completed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan message")
	}
	m.Role = conversation.Role(role)
	m.Completed = completed != 0
	m.CreatedAt = time.UnixMicro(createdAt)
	return &m, nil
}

func scanModel(row scanner) (*conversation.Model, error) {
	var m conversation.Model
	var providerType string
	var vision, reasoning int
	err := row.Scan(&m.ID, &m.Name, &m.ModelID, &providerType, &vision, &reasoning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan model")
	}
	m.Type = conversation.ProviderType(providerType)
	m.Capabilities = conversation.Capabilities{Vision: vision != 0, Reasoning: reasoning != 0}
	return &m, nil
}

func collectConversations(rows *sql.Rows) ([]*conversation.Conversation, error) {
	defer closeRows(rows)
	var ret []*conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, rows.Err()
}

func collectMessages(rows *sql.Rows) ([]*conversation.Message, error) {
	defer closeRows(rows)
	var ret []*conversation.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}
	return ret, rows.Err()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close rows")
	}
}

func (s *SQLiteStore) execOne(ctx context.Context, kind, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update %s %s", kind, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return &conversation.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func nullable(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
