package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/splitchat/pkg/conversation"
	"github.com/go-go-golems/splitchat/pkg/providers"
)

func TestSplitConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "the split point")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)
	assert.True(t, child.IsSplit())
	assert.Equal(t, parent.ID, *child.ParentConversationID)
	assert.Equal(t, origin.ID, *child.SplitFromMessageID)
	assert.Equal(t, conversation.PlaceholderTitle, child.Title)

	children, err := env.service.ListChildConversations(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestSplitConversationDepthOne(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "the split point")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)

	grandOrigin := insertMessage(t, env, child, conversation.RoleAssistant, "deeper")
	_, err = env.service.SplitConversation(ctx, child.ID, grandOrigin.ID)
	var validationErr *conversation.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestSplitConversationForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")
	other := insertConversation(t, env, nil, "")
	foreign := insertMessage(t, env, other, conversation.RoleUser, "elsewhere")

	_, err := env.service.SplitConversation(ctx, conv.ID, foreign.ID)
	var validationErr *conversation.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPromoteConversation(t *testing.T) {
	env := newTestEnv(t, streamedReply("a condensed summary"))
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	insertMessage(t, env, parent, conversation.RoleUser, "question one")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "answer one")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)

	require.NoError(t, env.service.PromoteConversation(ctx, child.ID))

	promoted, err := env.store.GetConversation(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, promoted.IsSplit())
	assert.Nil(t, promoted.ParentConversationID)
	assert.Nil(t, promoted.SplitFromMessageID)

	sum, err := env.store.GetSummary(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, sum.Completed)
	assert.Equal(t, "a condensed summary", sum.SummarizedContent)
	assert.Empty(t, sum.ErrorMessage)
}

func TestPromoteProceedsWhenSummarizationFails(t *testing.T) {
	env := newTestEnv(t, []providers.PartialResponse{{
		ErrorMessage: "Rate limit exceeded. Please try again later.",
		Completed:    true,
	}})
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "shared history")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)

	require.NoError(t, env.service.PromoteConversation(ctx, child.ID))

	promoted, err := env.store.GetConversation(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, promoted.IsSplit())

	// The summary row records the failure with empty content, so the
	// context assembler will skip it.
	sum, err := env.store.GetSummary(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, sum.SummarizedContent)
	assert.NotEmpty(t, sum.ErrorMessage)
}

func TestPromoteNonSplitRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")

	err := env.service.PromoteConversation(ctx, conv.ID)
	var validationErr *conversation.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestDeleteConversationCascades(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	insertMessage(t, env, parent, conversation.RoleUser, "q")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "a")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)
	insertMessage(t, env, child, conversation.RoleUser, "child q")

	require.NoError(t, env.service.DeleteConversation(ctx, parent.ID))

	_, err = env.store.GetConversation(ctx, parent.ID)
	var notFound *conversation.NotFoundError
	require.ErrorAs(t, err, &notFound)
	_, err = env.store.GetConversation(ctx, child.ID)
	require.ErrorAs(t, err, &notFound)

	// One purge job per deleted conversation.
	jobs := env.scheduler.scheduled()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, JobMessagesPurge, j.Job)
	}

	// Run the purge handlers the way the job runner would.
	for _, j := range jobs {
		body, err := json.Marshal(j.Payload)
		require.NoError(t, err)
		require.NoError(t, env.service.HandleMessagesPurge(ctx, body))
	}

	rows, err := env.store.ListMessages(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = env.store.ListMessages(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteChildLeavesParent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	origin := insertMessage(t, env, parent, conversation.RoleAssistant, "a")

	child, err := env.service.SplitConversation(ctx, parent.ID, origin.ID)
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteConversation(ctx, child.ID))

	_, err = env.store.GetConversation(ctx, parent.ID)
	require.NoError(t, err)

	jobs := env.scheduler.scheduled()
	require.Len(t, jobs, 1)
}
