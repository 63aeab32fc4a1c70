package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

func insertConversation(t *testing.T, env *testEnv, parent *conversation.Conversation, splitFrom string) *conversation.Conversation {
	t.Helper()
	now := env.service.now()
	conv := &conversation.Conversation{
		ID:        conversation.NewID(),
		Title:     conversation.PlaceholderTitle,
		UserID:    "user-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		conv.ParentConversationID = &parent.ID
		conv.SplitFromMessageID = &splitFrom
	}
	require.NoError(t, env.store.InsertConversation(context.Background(), conv))
	return conv
}

func insertMessage(t *testing.T, env *testEnv, conv *conversation.Conversation, role conversation.Role, content string) *conversation.Message {
	t.Helper()
	msg := &conversation.Message{
		ID:             conversation.NewID(),
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		Completed:      true,
		CreatedAt:      env.service.now(),
	}
	require.NoError(t, env.store.InsertMessage(context.Background(), msg))
	return msg
}

func contents(msgs []conversation.PromptMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestBuildContextChronologicalOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")

	for i := 1; i <= 4; i++ {
		role := conversation.RoleUser
		if i%2 == 0 {
			role = conversation.RoleAssistant
		}
		insertMessage(t, env, conv, role, fmt.Sprintf("m%d", i))
	}

	prompt, err := env.service.buildContext(ctx, conv, 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, contents(prompt))
}

func TestBuildContextSkipsInFlightRows(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")

	insertMessage(t, env, conv, conversation.RoleUser, "question")
	insertMessage(t, env, conv, conversation.RoleAssistant, "")

	prompt, err := env.service.buildContext(ctx, conv, 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"question"}, contents(prompt))
}

func TestBuildContextSplitBoundaryIsInclusive(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")

	var origin *conversation.Message
	for i := 1; i <= 5; i++ {
		m := insertMessage(t, env, parent, conversation.RoleUser, fmt.Sprintf("p%d", i))
		if i == 3 {
			origin = m
		}
	}

	child := insertConversation(t, env, parent, origin.ID)
	insertMessage(t, env, child, conversation.RoleUser, "c1")
	insertMessage(t, env, child, conversation.RoleAssistant, "c2")

	prompt, err := env.service.buildContext(ctx, child, 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "c1", "c2"}, contents(prompt))
}

func TestBuildContextBudgetFavorsOwnBranch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")

	var origin *conversation.Message
	for i := 1; i <= 5; i++ {
		origin = insertMessage(t, env, parent, conversation.RoleUser, fmt.Sprintf("p%d", i))
	}

	child := insertConversation(t, env, parent, origin.ID)
	for i := 1; i <= 3; i++ {
		insertMessage(t, env, child, conversation.RoleUser, fmt.Sprintf("c%d", i))
	}

	// Budget of 4: the child's 3 rows are all kept, the parent gets the
	// single remaining slot, filled from the newest shared message down.
	prompt, err := env.service.buildContext(ctx, child, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"p5", "c1", "c2", "c3"}, contents(prompt))
}

func TestBuildContextIncludesCompletedSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")
	insertMessage(t, env, conv, conversation.RoleUser, "latest question")

	require.NoError(t, env.store.UpsertSummary(ctx, &conversation.Summary{
		ID:                conversation.NewID(),
		ConversationID:    conv.ID,
		SummarizedContent: "earlier we discussed widgets",
		Completed:         true,
		UpdatedAt:         env.service.now(),
	}))

	prompt, err := env.service.buildContext(ctx, conv, 40)
	require.NoError(t, err)
	require.Len(t, prompt, 2)
	assert.Equal(t, conversation.RoleAssistant, prompt[0].Role)
	assert.Equal(t, SummaryContextPrefix+"earlier we discussed widgets", prompt[0].Content)
	assert.Equal(t, "latest question", prompt[1].Content)
}

func TestBuildContextSkipsFailedSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	conv := insertConversation(t, env, nil, "")
	insertMessage(t, env, conv, conversation.RoleUser, "latest question")

	require.NoError(t, env.store.UpsertSummary(ctx, &conversation.Summary{
		ID:             conversation.NewID(),
		ConversationID: conv.ID,
		ErrorMessage:   "summarization failed",
		Completed:      true,
		UpdatedAt:      env.service.now(),
	}))

	prompt, err := env.service.buildContext(ctx, conv, 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"latest question"}, contents(prompt))
}

func TestBuildContextMissingSplitOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	parent := insertConversation(t, env, nil, "")
	child := insertConversation(t, env, parent, conversation.NewID())

	_, err := env.service.buildContext(ctx, child, 40)
	var integrityErr *conversation.DataIntegrityError
	require.ErrorAs(t, err, &integrityErr)
}
