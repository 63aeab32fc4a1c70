package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// Asynchronous side work: title generation after the first turn of a new
// conversation, and parent-history summarization during promotion. Both use
// the same one-shot completion helper and tolerate missing or misconfigured
// models by degrading instead of failing the calling flow.

type titlePayload struct {
	ConversationID string `json:"conversationId"`
	ModelID        string `json:"modelId"`
}

// HandleTitleGenerate runs the deferred title job. The conversation may have
// been deleted (or already titled) in the window between scheduling and
// execution; both are graceful no-ops.
func (s *Service) HandleTitleGenerate(ctx context.Context, payload []byte) error {
	var p titlePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	conv, err := s.store.GetConversation(ctx, p.ConversationID)
	if err != nil {
		var notFound *conversation.NotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Str("conversation_id", p.ConversationID).Msg("conversation gone before title job ran")
			return nil
		}
		return err
	}
	if conv.Title != conversation.PlaceholderTitle {
		return nil
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}
	var opening string
	for _, m := range msgs {
		if m.Role == conversation.RoleUser && m.Content != "" {
			opening = m.Content
			break
		}
	}
	if opening == "" {
		return nil
	}

	model, err := s.resolveUtilityModel(ctx, p.ModelID)
	if err != nil {
		return err
	}

	title, err := s.runOneShot(ctx, model, TitleSystemPrompt, opening)
	if err != nil {
		return errors.Wrap(err, "title generation failed")
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		// Nothing usable came back; the placeholder stays.
		log.Warn().Str("conversation_id", conv.ID).Msg("title model returned empty output")
		return nil
	}

	if err := s.store.UpdateConversationTitle(ctx, conv.ID, title, s.now()); err != nil {
		return err
	}
	log.Info().Str("conversation_id", conv.ID).Str("title", title).Msg("conversation titled")
	return nil
}

// summarizeParentHistory condenses the parent-branch prefix of a split
// conversation into its summary row. The row is written whether the attempt
// succeeds or fails: on failure it carries an error message and empty
// content, so the context assembler skips it but promotion still proceeds.
func (s *Service) summarizeParentHistory(ctx context.Context, conv *conversation.Conversation) error {
	if !conv.IsSplit() {
		return conversation.NewValidationError("conversation %s is not a split", conv.ID)
	}

	splitMsg, err := s.store.GetMessage(ctx, *conv.SplitFromMessageID)
	if err != nil {
		var notFound *conversation.NotFoundError
		if errors.As(err, &notFound) {
			return &conversation.DataIntegrityError{
				Msg: "split origin message " + *conv.SplitFromMessageID + " not found for conversation " + conv.ID,
			}
		}
		return err
	}
	parent, err := s.store.ListMessagesBefore(ctx, *conv.ParentConversationID, splitMsg.CreatedAt, 0)
	if err != nil {
		return err
	}

	var b strings.Builder
	for i := len(parent) - 1; i >= 0; i-- {
		m := parent[i]
		if m.Content == "" {
			continue
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	transcript := b.String()

	sum := &conversation.Summary{
		ID:             conversation.NewID(),
		ConversationID: conv.ID,
		Completed:      true,
		UpdatedAt:      s.now(),
	}

	if transcript == "" {
		log.Debug().Str("conversation_id", conv.ID).Msg("no parent history to summarize")
		return s.store.UpsertSummary(ctx, sum)
	}

	model, err := s.resolveUtilityModel(ctx, "")
	if err != nil {
		sum.ErrorMessage = msgModelUnavailable
		sum.UpdatedAt = s.now()
		if upsertErr := s.store.UpsertSummary(ctx, sum); upsertErr != nil {
			return upsertErr
		}
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("summary model unavailable")
		return nil
	}

	content, err := s.runOneShot(ctx, model, SummarizeSystemPrompt, transcript)
	sum.UpdatedAt = s.now()
	if err != nil {
		sum.ErrorMessage = err.Error()
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("summarization failed")
	} else {
		sum.SummarizedContent = content
	}
	return s.store.UpsertSummary(ctx, sum)
}

// runOneShot performs a non-streaming completion by draining a provider
// stream: the terminal chunk carries the full accumulated content. A terminal
// error chunk surfaces as an error.
func (s *Service) runOneShot(ctx context.Context, model *conversation.Model, systemPrompt, userContent string) (string, error) {
	provider, err := s.providerFor(model)
	if err != nil {
		return "", err
	}

	prompt := []conversation.PromptMessage{
		{Role: conversation.RoleSystem, Content: systemPrompt},
		{Role: conversation.RoleUser, Content: userContent},
	}

	var content string
	sawTerminal := false
	for chunk := range provider.StreamCompletion(ctx, prompt, model) {
		if !chunk.Completed {
			continue
		}
		sawTerminal = true
		if chunk.ErrorMessage != "" {
			return "", errors.New(chunk.ErrorMessage)
		}
		content = chunk.Content
	}
	if !sawTerminal {
		return "", errors.New("provider stream closed without a terminal chunk")
	}
	return content, nil
}

// resolveUtilityModel picks the model for side work: the service-level
// utility model when configured, otherwise the hinted model, otherwise the
// first seeded model.
func (s *Service) resolveUtilityModel(ctx context.Context, hintModelID string) (*conversation.Model, error) {
	if s.utilityModelID != "" {
		return s.store.GetModelByModelID(ctx, s.utilityModelID)
	}
	if hintModelID != "" {
		return s.store.GetModelByModelID(ctx, hintModelID)
	}
	models, err := s.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, conversation.NewConfigurationError("no models are configured")
	}
	return models[0], nil
}
