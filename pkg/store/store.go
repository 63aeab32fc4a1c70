package store

// Package store is the document store collaborator: indexed queries over
// conversations, messages, summaries and model descriptors. The engine only
// depends on this interface; the sqlite implementation lives next to it.

import (
	"context"
	"time"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// MessagePatch is the set of fields rewritten on every streamed chunk of an
// in-flight assistant message.
type MessagePatch struct {
	Content          string
	ReasoningContent string
	ErrorMessage     string
	Completed        bool
}

// Store is the persistence contract consumed by the engine. All reads are
// point-in-time snapshots; there is no cross-call transaction surface.
type Store interface {
	// Conversations
	InsertConversation(ctx context.Context, c *conversation.Conversation) error
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]*conversation.Conversation, error)
	ListChildConversations(ctx context.Context, parentID string) ([]*conversation.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id string, title string, at time.Time) error
	// TouchConversation refreshes UpdatedAt so listings reflect mid-stream
	// activity.
	TouchConversation(ctx context.Context, id string, at time.Time) error
	// ClearConversationParent severs the parent link and the split-origin
	// message reference in one statement.
	ClearConversationParent(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	InsertMessage(ctx context.Context, m *conversation.Message) error
	GetMessage(ctx context.Context, id string) (*conversation.Message, error)
	PatchMessage(ctx context.Context, id string, patch MessagePatch) error
	// ListMessages returns all messages of a conversation in chronological
	// order.
	ListMessages(ctx context.Context, conversationID string) ([]*conversation.Message, error)
	// ListMessagesDesc returns messages newest-first, optionally skipping
	// empty-content in-flight rows. limit <= 0 means unbounded.
	ListMessagesDesc(ctx context.Context, conversationID string, limit int, excludeEmpty bool) ([]*conversation.Message, error)
	// ListMessagesBefore returns messages created at or before cutoff,
	// newest-first. This is the split-boundary query; the boundary is
	// inclusive. limit <= 0 means unbounded.
	ListMessagesBefore(ctx context.Context, conversationID string, cutoff time.Time, limit int) ([]*conversation.Message, error)
	DeleteMessagesByConversation(ctx context.Context, conversationID string) error

	// Summaries
	UpsertSummary(ctx context.Context, s *conversation.Summary) error
	GetSummary(ctx context.Context, conversationID string) (*conversation.Summary, error)
	DeleteSummary(ctx context.Context, conversationID string) error

	// Models
	SeedModels(ctx context.Context, models []conversation.Model) error
	GetModelByModelID(ctx context.Context, modelID string) (*conversation.Model, error)
	ListModels(ctx context.Context) ([]*conversation.Model, error)

	Close() error
}
