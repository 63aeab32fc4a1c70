package conversation

// Package conversation holds the persisted domain model for splitchat:
// conversations (possibly split off a parent), their messages, the single
// rolling summary per conversation, and the model descriptors used to pick
// a provider backend.
//
// A split conversation shares its parent's history by reference through
// ParentConversationID + SplitFromMessageID; the two fields are always set
// and cleared together.

import (
	"time"

	"github.com/google/uuid"
)

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ProviderType selects which streaming backend serves a model.
type ProviderType string

const (
	ProviderTypeDeepseek ProviderType = "deepseek"
	ProviderTypeGoogle   ProviderType = "google"
)

// PlaceholderTitle is the title of a conversation before the title worker
// has produced one.
const PlaceholderTitle = "New Conversation"

// Conversation is one chat thread. A conversation created by splitting
// carries a link to its parent and the message the split originated from.
type Conversation struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	UserID               string     `json:"userId"`
	ParentConversationID *string    `json:"parentConversationId,omitempty"`
	SplitFromMessageID   *string    `json:"splitFromMessageId,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// IsSplit reports whether the conversation is a split child of another
// conversation.
func (c *Conversation) IsSplit() bool {
	return c.ParentConversationID != nil && *c.ParentConversationID != ""
}

// Message is one turn leg. Assistant messages are inserted incomplete on the
// first streamed chunk and patched in place until the terminal chunk arrives;
// there is never more than one row per logical turn.
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	ReasoningContent string    `json:"reasoningContent,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	Completed        bool      `json:"completed"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary is the condensed replacement for parent-branch history once a
// split conversation has been promoted back to standalone. At most one row
// exists per conversation; writes are upserts.
type Summary struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversationId"`
	SummarizedContent string    `json:"summarizedContent"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	Completed         bool      `json:"completed"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Capabilities are the feature flags of a model descriptor.
type Capabilities struct {
	Vision    bool `json:"vision"`
	Reasoning bool `json:"reasoning"`
}

// Model describes one selectable backend model. Reference data, never
// mutated by the engine.
type Model struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ModelID      string       `json:"modelId"`
	Type         ProviderType `json:"type"`
	Capabilities Capabilities `json:"capabilities"`
}

// PromptMessage is one entry of the context window handed to a provider.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewID returns a fresh row id.
func NewID() string {
	return uuid.NewString()
}
