package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/splitchat/pkg/conversation"
	"github.com/go-go-golems/splitchat/pkg/events"
	"github.com/go-go-golems/splitchat/pkg/providers"
	"github.com/go-go-golems/splitchat/pkg/store"
)

// turnState tracks where a turn is in its lifecycle. Transitions are
// strictly forward:
//
//	received -> context-built -> dispatched -> streaming -> finalized
type turnState string

const (
	turnStateReceived         turnState = "received"
	turnStateContextBuilt     turnState = "context-built"
	turnStateDispatched       turnState = "dispatched"
	turnStateStreaming        turnState = "streaming"
	turnStateFinalizedSuccess turnState = "finalized-success"
	turnStateFinalizedError   turnState = "finalized-error"
)

// turn carries the per-turn state machine. One turn produces at most one
// assistant message row: the first streamed chunk inserts it, every later
// chunk patches it in place.
type turn struct {
	svc   *Service
	conv  *conversation.Conversation
	model *conversation.Model
	meta  events.Metadata

	state       turnState
	assistantID string
	prevContent string
}

// runTurn drives one turn after the user message is durable. By then the
// user must always end up seeing something, so every failure is logged and
// persisted onto the assistant row instead of propagating; the return value
// is the assistant message id, empty if the turn died before inserting one.
func (s *Service) runTurn(ctx context.Context, conv *conversation.Conversation, model *conversation.Model) string {
	t := &turn{
		svc:   s,
		conv:  conv,
		model: model,
		meta: events.Metadata{
			TurnID:         uuid.New(),
			ConversationID: conv.ID,
			Model:          model.ModelID,
		},
		state: turnStateReceived,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("conversation_id", conv.ID).
				Str("turn_id", t.meta.TurnID.String()).
				Msg("turn panicked")
		}
	}()

	if err := t.run(ctx); err != nil {
		log.Error().
			Err(err).
			Str("conversation_id", conv.ID).
			Str("turn_id", t.meta.TurnID.String()).
			Str("state", string(t.state)).
			Msg("turn failed")
	}
	return t.assistantID
}

func (t *turn) transition(to turnState) {
	log.Debug().
		Str("turn_id", t.meta.TurnID.String()).
		Str("from", string(t.state)).
		Str("to", string(to)).
		Msg("turn state transition")
	t.state = to
}

func (t *turn) run(ctx context.Context) error {
	promptMessages, err := t.svc.buildContext(ctx, t.conv, t.svc.maxContextMessages)
	if err != nil {
		// The user leg is already durable; leave an error-annotated
		// assistant row behind and surface the cause in the logs.
		t.finalizeError(ctx, msgTurnFailed)
		return err
	}
	prompt := make([]conversation.PromptMessage, 0, len(promptMessages)+1)
	prompt = append(prompt, conversation.PromptMessage{Role: conversation.RoleSystem, Content: BaseSystemPrompt})
	prompt = append(prompt, promptMessages...)
	t.transition(turnStateContextBuilt)

	provider, err := t.svc.providerFor(t.model)
	if err != nil {
		t.finalizeError(ctx, msgModelUnavailable)
		return err
	}
	t.transition(turnStateDispatched)

	t.publish(events.NewStartEvent(t.meta))

	stream := provider.StreamCompletion(ctx, prompt, t.model)
	t.transition(turnStateStreaming)

	sawTerminal := false
	for chunk := range stream {
		if err := t.upsertAssistant(ctx, chunk); err != nil {
			return err
		}

		if chunk.Completed {
			sawTerminal = true
			if chunk.ErrorMessage != "" {
				t.publish(events.NewErrorEvent(t.meta, chunk.ErrorMessage))
				t.transition(turnStateFinalizedError)
			} else {
				t.publish(events.NewFinalEvent(t.meta, chunk.Content))
				t.transition(turnStateFinalizedSuccess)
			}
			break
		}

		delta := chunk.Content
		if len(t.prevContent) <= len(chunk.Content) {
			delta = chunk.Content[len(t.prevContent):]
		}
		t.prevContent = chunk.Content
		t.publish(events.NewPartialEvent(t.meta, delta, chunk.Content, chunk.Reasoning))
	}

	// The adapter contract guarantees a terminal chunk; a closed channel
	// without one means the upstream producer died, which must not leave an
	// incomplete row behind.
	if !sawTerminal {
		t.finalizeError(ctx, msgTurnFailed)
	}

	return nil
}

// upsertAssistant persists one streamed snapshot: the first chunk inserts
// the assistant row and remembers its id, later chunks patch that same row.
// Every write also refreshes the conversation's UpdatedAt so listings track
// mid-stream activity.
func (t *turn) upsertAssistant(ctx context.Context, chunk providers.PartialResponse) error {
	now := t.svc.now()

	if t.assistantID == "" {
		msg := &conversation.Message{
			ID:               conversation.NewID(),
			ConversationID:   t.conv.ID,
			Role:             conversation.RoleAssistant,
			Content:          chunk.Content,
			ReasoningContent: chunk.Reasoning,
			ErrorMessage:     chunk.ErrorMessage,
			Completed:        chunk.Completed,
			CreatedAt:        now,
		}
		if err := t.svc.store.InsertMessage(ctx, msg); err != nil {
			return err
		}
		t.assistantID = msg.ID
		t.meta.MessageID = msg.ID
	} else {
		if err := t.svc.store.PatchMessage(ctx, t.assistantID, store.MessagePatch{
			Content:          chunk.Content,
			ReasoningContent: chunk.Reasoning,
			ErrorMessage:     chunk.ErrorMessage,
			Completed:        chunk.Completed,
		}); err != nil {
			return err
		}
	}

	if err := t.svc.store.TouchConversation(ctx, t.conv.ID, now); err != nil {
		log.Warn().Err(err).Str("conversation_id", t.conv.ID).Msg("failed to touch conversation")
	}
	return nil
}

// finalizeError persists a terminal error state onto the assistant row,
// inserting it if no chunk ever arrived.
func (t *turn) finalizeError(ctx context.Context, userMessage string) {
	err := t.upsertAssistant(ctx, providers.PartialResponse{
		ErrorMessage: userMessage,
		Completed:    true,
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", t.conv.ID).Msg("failed to persist turn error state")
	}
	t.publish(events.NewErrorEvent(t.meta, userMessage))
	t.transition(turnStateFinalizedError)
}

func (t *turn) publish(e events.Event) {
	if err := t.svc.sink.PublishEvent(e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("failed to publish turn event")
	}
}

const msgTurnFailed = "Something went wrong while generating a response. Please try again."
