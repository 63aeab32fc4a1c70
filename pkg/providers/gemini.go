package providers

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// GeminiProvider drives the Google genai backend. Gemini interleaves "thought"
// parts with answer parts in the same candidate stream; the two are
// accumulated independently so the caller can persist the thinking trace next
// to the answer.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds the variant from injected configuration.
func NewGeminiProvider(cfg *Config) (*GeminiProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, conversation.NewConfigurationError("gemini api key is not configured")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	return &GeminiProvider{client: client}, nil
}

// StreamCompletion implements Provider.
func (p *GeminiProvider) StreamCompletion(
	ctx context.Context,
	messages []conversation.PromptMessage,
	model *conversation.Model,
) <-chan PartialResponse {
	out := make(chan PartialResponse)

	go func() {
		defer close(out)

		contents, system := toGeminiContents(messages)
		config := &genai.GenerateContentConfig{}
		if system != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: system}},
			}
		}
		if model.Capabilities.Reasoning {
			config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		}

		log.Debug().Str("model", model.ModelID).Int("num_contents", len(contents)).Msg("gemini stream starting")

		var content, reasoning strings.Builder
		errMsg := ""
		chunkCount := 0
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model.ModelID, contents, config) {
			if err != nil {
				class := classifyGeminiError(err)
				log.Error().Err(err).Int("chunks_received", chunkCount).Str("class", string(class)).Msg("gemini stream receive failed")
				emit(ctx, out, PartialResponse{ErrorMessage: class.userMessage(), Completed: true})
				return
			}
			chunkCount++

			if resp == nil || len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]

			if abnormal, msg := geminiFinishMessage(cand.FinishReason); abnormal {
				log.Warn().
					Str("finish_reason", string(cand.FinishReason)).
					Int("chunks_received", chunkCount).
					Msg("gemini stream ended abnormally")
				errMsg = msg
			}

			if cand.Content == nil {
				continue
			}

			grew := false
			for _, part := range cand.Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				if part.Thought {
					reasoning.WriteString(part.Text)
				} else {
					content.WriteString(part.Text)
				}
				grew = true
			}

			if grew || errMsg != "" {
				if !emit(ctx, out, PartialResponse{
					Content:      content.String(),
					Reasoning:    reasoning.String(),
					ErrorMessage: errMsg,
				}) {
					return
				}
			}
		}

		log.Debug().
			Int("chunks_received", chunkCount).
			Int("final_length", content.Len()).
			Int("reasoning_length", reasoning.Len()).
			Msg("gemini stream completed")
		emit(ctx, out, PartialResponse{
			Content:      content.String(),
			Reasoning:    reasoning.String(),
			ErrorMessage: errMsg,
			Completed:    true,
		})
	}()

	return out
}

// geminiFinishMessage maps a candidate finish reason to a user-facing error.
// STOP is the normal outcome and MAX_TOKENS is a non-fatal truncation that
// still yields whatever content was produced; everything else is abnormal.
func geminiFinishMessage(reason genai.FinishReason) (abnormal bool, msg string) {
	switch reason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return false, ""
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return true, msgContentFiltered
	default:
		return true, msgUnknown
	}
}

// toGeminiContents converts the context window into genai contents. System
// turns are folded into a single system instruction since the Gemini API
// carries them out of band.
func toGeminiContents(messages []conversation.PromptMessage) ([]*genai.Content, string) {
	var system strings.Builder
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case conversation.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, system.String()
}

var _ Provider = (*GeminiProvider)(nil)
