package store

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertConversation(t *testing.T, s *SQLiteStore, userID string, at time.Time) *conversation.Conversation {
	t.Helper()
	c := &conversation.Conversation{
		ID:        conversation.NewID(),
		Title:     conversation.PlaceholderTitle,
		UserID:    userID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	require.NoError(t, s.InsertConversation(context.Background(), c))
	return c
}

func insertMessage(t *testing.T, s *SQLiteStore, convID string, role conversation.Role, content string, at time.Time) *conversation.Message {
	t.Helper()
	m := &conversation.Message{
		ID:             conversation.NewID(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Completed:      true,
		CreatedAt:      at,
	}
	require.NoError(t, s.InsertMessage(context.Background(), m))
	return m
}

func TestConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond)

	c := insertConversation(t, s, "user-1", now)

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, conversation.PlaceholderTitle, got.Title)
	assert.Nil(t, got.ParentConversationID)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	require.Error(t, err)

	var notFound *conversation.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "conversation", notFound.Kind)
}

func TestListConversationsOrderedByUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	old := insertConversation(t, s, "user-1", base.Add(-time.Hour))
	recent := insertConversation(t, s, "user-1", base)
	insertConversation(t, s, "someone-else", base)

	// touching moves a conversation to the top
	require.NoError(t, s.TouchConversation(ctx, old.ID, base.Add(time.Minute)))

	got, err := s.ListConversations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, old.ID, got[0].ID)
	assert.Equal(t, recent.ID, got[1].ID)
}

func TestClearConversationParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	parent := insertConversation(t, s, "user-1", now)
	origin := insertMessage(t, s, parent.ID, conversation.RoleUser, "origin", now)

	child := &conversation.Conversation{
		ID:                   conversation.NewID(),
		Title:                conversation.PlaceholderTitle,
		UserID:               "user-1",
		ParentConversationID: &parent.ID,
		SplitFromMessageID:   &origin.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, s.InsertConversation(ctx, child))

	children, err := s.ListChildConversations(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	require.NoError(t, s.ClearConversationParent(ctx, child.ID))

	got, err := s.GetConversation(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentConversationID)
	assert.Nil(t, got.SplitFromMessageID)

	children, err = s.ListChildConversations(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestPatchMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	c := insertConversation(t, s, "user-1", now)
	m := &conversation.Message{
		ID:             conversation.NewID(),
		ConversationID: c.ID,
		Role:           conversation.RoleAssistant,
		CreatedAt:      now,
	}
	require.NoError(t, s.InsertMessage(ctx, m))

	require.NoError(t, s.PatchMessage(ctx, m.ID, MessagePatch{
		Content:          "partial answer",
		ReasoningContent: "thinking...",
		Completed:        false,
	}))
	require.NoError(t, s.PatchMessage(ctx, m.ID, MessagePatch{
		Content:          "full answer",
		ReasoningContent: "thinking... done",
		Completed:        true,
	}))

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "full answer", got.Content)
	assert.Equal(t, "thinking... done", got.ReasoningContent)
	assert.True(t, got.Completed)

	// still exactly one row
	all, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPatchMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.PatchMessage(context.Background(), "missing", MessagePatch{Content: "x"})
	var notFound *conversation.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestListMessagesDescExcludesEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	c := insertConversation(t, s, "user-1", base)
	insertMessage(t, s, c.ID, conversation.RoleUser, "one", base.Add(1*time.Second))
	insertMessage(t, s, c.ID, conversation.RoleAssistant, "", base.Add(2*time.Second))
	insertMessage(t, s, c.ID, conversation.RoleUser, "three", base.Add(3*time.Second))

	got, err := s.ListMessagesDesc(ctx, c.ID, 0, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Content)
	assert.Equal(t, "one", got[1].Content)

	limited, err := s.ListMessagesDesc(ctx, c.ID, 1, true)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "three", limited[0].Content)
}

func TestListMessagesBeforeInclusiveBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond)

	c := insertConversation(t, s, "user-1", base)
	var cutoff time.Time
	for i := 1; i <= 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		insertMessage(t, s, c.ID, conversation.RoleUser, string(rune('0'+i)), at)
		if i == 3 {
			cutoff = at
		}
	}

	got, err := s.ListMessagesBefore(ctx, c.ID, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// newest first, boundary message included
	assert.Equal(t, "3", got[0].Content)
	assert.Equal(t, "1", got[2].Content)
}

func TestSummaryUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	c := insertConversation(t, s, "user-1", now)

	first := &conversation.Summary{
		ID:                conversation.NewID(),
		ConversationID:    c.ID,
		SummarizedContent: "",
		ErrorMessage:      "Rate limit exceeded. Please try again later.",
		Completed:         true,
		UpdatedAt:         now,
	}
	require.NoError(t, s.UpsertSummary(ctx, first))

	// second write replaces in place, still one row per conversation
	second := &conversation.Summary{
		ID:                conversation.NewID(),
		ConversationID:    c.ID,
		SummarizedContent: "the user asked about Go generics",
		Completed:         true,
		UpdatedAt:         now.Add(time.Minute),
	}
	require.NoError(t, s.UpsertSummary(ctx, second))

	got, err := s.GetSummary(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "the user asked about Go generics", got.SummarizedContent)
	assert.Empty(t, got.ErrorMessage)
}

func TestSummaryNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSummary(context.Background(), "missing")
	var notFound *conversation.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "summary", notFound.Kind)
}

func TestSeedModelsUpsertByModelID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	models := []conversation.Model{
		{Name: "DeepSeek Chat", ModelID: "deepseek-chat", Type: conversation.ProviderTypeDeepseek},
		{Name: "Gemini Flash", ModelID: "gemini-2.0-flash", Type: conversation.ProviderTypeGoogle,
			Capabilities: conversation.Capabilities{Reasoning: true}},
	}
	require.NoError(t, s.SeedModels(ctx, models))
	// reseeding with a new display name updates instead of duplicating
	models[0].Name = "DeepSeek V3"
	require.NoError(t, s.SeedModels(ctx, models))

	all, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	m, err := s.GetModelByModelID(ctx, "deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek V3", m.Name)

	_, err = s.GetModelByModelID(ctx, "gpt-oss")
	var notFound *conversation.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "model", notFound.Kind)
}

func TestDeleteMessagesByConversationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	c := insertConversation(t, s, "user-1", now)
	insertMessage(t, s, c.ID, conversation.RoleUser, "hello", now)

	require.NoError(t, s.DeleteMessagesByConversation(ctx, c.ID))
	// deleting again (conversation possibly already gone) is a no-op
	require.NoError(t, s.DeleteMessagesByConversation(ctx, c.ID))

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
