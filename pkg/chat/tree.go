package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// Conversation tree management: one-hop parent/child split relationships.
// Children share the parent's history by reference through the split-origin
// message; no messages are ever copied.

// ListChildConversations returns the split children of a conversation the
// caller owns.
func (s *Service) ListChildConversations(ctx context.Context, parentID string) ([]*conversation.Conversation, error) {
	user, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedConversation(ctx, user, parentID); err != nil {
		return nil, err
	}
	return s.store.ListChildConversations(ctx, parentID)
}

// SplitConversation branches a new conversation off an existing one at a
// given message. Splitting an already-split conversation is rejected, which
// keeps chains at depth one.
func (s *Service) SplitConversation(ctx context.Context, conversationID, messageID string) (*conversation.Conversation, error) {
	user, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.ownedConversation(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsSplit() {
		return nil, conversation.NewValidationError("conversation %s is itself a split and cannot be split again", conversationID)
	}

	origin, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if origin.ConversationID != conv.ID {
		return nil, conversation.NewValidationError("message %s does not belong to conversation %s", messageID, conversationID)
	}

	now := s.now()
	child := &conversation.Conversation{
		ID:                   conversation.NewID(),
		Title:                conversation.PlaceholderTitle,
		UserID:               user.Subject,
		ParentConversationID: &conv.ID,
		SplitFromMessageID:   &origin.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.InsertConversation(ctx, child); err != nil {
		return nil, err
	}

	log.Info().
		Str("parent_id", conv.ID).
		Str("child_id", child.ID).
		Str("origin_message_id", origin.ID).
		Msg("conversation split")
	return child, nil
}

// PromoteConversation converts a split child back into a standalone
// conversation: the shared parent prefix is summarized first, and only once
// the summary row is durable is the parent link severed. After that the
// summary is the only source of the older context.
func (s *Service) PromoteConversation(ctx context.Context, conversationID string) error {
	user, err := s.requireUser(ctx)
	if err != nil {
		return err
	}
	conv, err := s.ownedConversation(ctx, user, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsSplit() {
		return conversation.NewValidationError("conversation %s has no parent to promote away from", conversationID)
	}

	if err := s.summarizeParentHistory(ctx, conv); err != nil {
		return err
	}

	if err := s.store.ClearConversationParent(ctx, conv.ID); err != nil {
		return err
	}

	log.Info().Str("conversation_id", conv.ID).Msg("conversation promoted to standalone")
	return nil
}

// DeleteConversation removes a conversation, cascading through split
// children when the target is a root. Conversation rows disappear
// synchronously (that is the user-visible completion signal); bulk message
// cleanup trails behind as a scheduled purge job.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	user, err := s.requireUser(ctx)
	if err != nil {
		return err
	}
	conv, err := s.ownedConversation(ctx, user, conversationID)
	if err != nil {
		return err
	}

	if !conv.IsSplit() {
		children, err := s.store.ListChildConversations(ctx, conv.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			s.schedulePurge(child.ID)
			if err := s.store.DeleteSummary(ctx, child.ID); err != nil {
				log.Warn().Err(err).Str("conversation_id", child.ID).Msg("failed to delete child summary")
			}
			if err := s.store.DeleteConversation(ctx, child.ID); err != nil {
				return err
			}
		}
	}

	s.schedulePurge(conv.ID)
	if err := s.store.DeleteSummary(ctx, conv.ID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to delete summary")
	}
	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}

	log.Info().Str("conversation_id", conv.ID).Msg("conversation deleted")
	return nil
}

type purgePayload struct {
	ConversationID string `json:"conversationId"`
}

func (s *Service) schedulePurge(conversationID string) {
	if err := s.scheduler.RunAfter(0, JobMessagesPurge, purgePayload{ConversationID: conversationID}); err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to schedule message purge")
	}
}

// HandleMessagesPurge is the deferred message cleanup job. The conversation
// row is usually already gone by the time it runs; deleting messages for a
// missing conversation is a no-op, not an error.
func (s *Service) HandleMessagesPurge(ctx context.Context, payload []byte) error {
	var p purgePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	log.Debug().Str("conversation_id", p.ConversationID).Msg("purging messages")
	return s.store.DeleteMessagesByConversation(ctx, p.ConversationID)
}
