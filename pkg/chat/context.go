package chat

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// buildContext assembles the bounded, chronologically ordered context window
// for one completion: the conversation's own messages, the parent branch up
// to the split point (inclusive) when the conversation is a split child, and
// the rolling summary as a synthetic assistant turn standing in for anything
// older. maxTurns is a soft cap on row count; 0 means unbounded.
func (s *Service) buildContext(ctx context.Context, conv *conversation.Conversation, maxTurns int) ([]conversation.PromptMessage, error) {
	// Own branch first: the live branch must never be starved out of the
	// budget by parent history. In-flight rows with no content yet are
	// excluded.
	own, err := s.store.ListMessagesDesc(ctx, conv.ID, maxTurns, true)
	if err != nil {
		return nil, err
	}

	remaining := 0
	if maxTurns > 0 {
		remaining = maxTurns - len(own)
	}

	var parent []*conversation.Message
	if conv.IsSplit() && (maxTurns <= 0 || remaining > 0) {
		splitMsg, err := s.store.GetMessage(ctx, *conv.SplitFromMessageID)
		if err != nil {
			var notFound *conversation.NotFoundError
			if errors.As(err, &notFound) {
				return nil, &conversation.DataIntegrityError{
					Msg: "split origin message " + *conv.SplitFromMessageID + " not found for conversation " + conv.ID,
				}
			}
			return nil, err
		}

		// Boundary is inclusive: the split point itself is shared history.
		parent, err = s.store.ListMessagesBefore(ctx, *conv.ParentConversationID, splitMsg.CreatedAt, remaining)
		if err != nil {
			return nil, err
		}
	}

	total := len(own) + len(parent)
	includeSummary := maxTurns <= 0 || total < maxTurns

	var promptMessages []conversation.PromptMessage
	if includeSummary {
		if sum, err := s.store.GetSummary(ctx, conv.ID); err == nil {
			if sum.Completed && sum.SummarizedContent != "" {
				promptMessages = append(promptMessages, conversation.PromptMessage{
					Role:    conversation.RoleAssistant,
					Content: SummaryContextPrefix + sum.SummarizedContent,
				})
			}
		} else {
			var notFound *conversation.NotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	// Both branches were fetched newest-first; reverse into chronological
	// order, parent history ahead of the split child's own messages.
	for i := len(parent) - 1; i >= 0; i-- {
		promptMessages = append(promptMessages, conversation.PromptMessage{
			Role:    parent[i].Role,
			Content: parent[i].Content,
		})
	}
	for i := len(own) - 1; i >= 0; i-- {
		promptMessages = append(promptMessages, conversation.PromptMessage{
			Role:    own[i].Role,
			Content: own[i].Content,
		})
	}

	log.Debug().
		Str("conversation_id", conv.ID).
		Int("own_messages", len(own)).
		Int("parent_messages", len(parent)).
		Int("max_turns", maxTurns).
		Msg("context assembled")

	return promptMessages, nil
}
