package providers

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// OpenAIProvider drives any OpenAI-compatible chat completion endpoint. The
// deepseek backend is the canonical one; reasoning models surface their
// thinking trace through the ReasoningContent delta, which is accumulated
// separately from the answer text.
type OpenAIProvider struct {
	client *go_openai.Client
}

// NewOpenAIProvider builds the variant from injected configuration. The
// underlying client is created once and reused for every stream.
func NewOpenAIProvider(cfg *Config) (*OpenAIProvider, error) {
	if cfg.DeepseekAPIKey == "" {
		return nil, conversation.NewConfigurationError("deepseek api key is not configured")
	}

	clientCfg := go_openai.DefaultConfig(cfg.DeepseekAPIKey)
	clientCfg.BaseURL = cfg.DeepseekBaseURL
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = DefaultDeepseekBaseURL
	}

	return &OpenAIProvider{client: go_openai.NewClientWithConfig(clientCfg)}, nil
}

// StreamCompletion implements Provider.
func (p *OpenAIProvider) StreamCompletion(
	ctx context.Context,
	messages []conversation.PromptMessage,
	model *conversation.Model,
) <-chan PartialResponse {
	out := make(chan PartialResponse)

	go func() {
		defer close(out)

		req := go_openai.ChatCompletionRequest{
			Model:    model.ModelID,
			Messages: toOpenAIMessages(messages),
			Stream:   true,
		}

		log.Debug().Str("model", model.ModelID).Int("num_messages", len(req.Messages)).Msg("openai stream starting")
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			class := classifyOpenAIError(err)
			log.Error().Err(err).Str("class", string(class)).Msg("openai stream request failed")
			emit(ctx, out, PartialResponse{ErrorMessage: class.userMessage(), Completed: true})
			return
		}
		defer func() {
			if err := stream.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close openai stream")
			}
		}()

		var content, reasoning strings.Builder
		chunkCount := 0
		for {
			select {
			case <-ctx.Done():
				log.Debug().Int("chunks_received", chunkCount).Msg("openai stream cancelled by context")
				return
			default:
			}

			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Int("chunks_received", chunkCount).Int("final_length", content.Len()).Msg("openai stream completed")
				emit(ctx, out, PartialResponse{
					Content:   content.String(),
					Reasoning: reasoning.String(),
					Completed: true,
				})
				return
			}
			if err != nil {
				class := classifyOpenAIError(err)
				log.Error().Err(err).Int("chunks_received", chunkCount).Str("class", string(class)).Msg("openai stream receive failed")
				emit(ctx, out, PartialResponse{ErrorMessage: class.userMessage(), Completed: true})
				return
			}
			chunkCount++

			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]

			if terminal, msg := finishOutcome(choice.FinishReason); terminal {
				log.Debug().
					Str("finish_reason", string(choice.FinishReason)).
					Int("chunks_received", chunkCount).
					Msg("openai stream terminated by finish reason")
				emit(ctx, out, PartialResponse{ErrorMessage: msg, Completed: true})
				return
			}

			grew := false
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				grew = true
			}
			if choice.Delta.ReasoningContent != "" {
				reasoning.WriteString(choice.Delta.ReasoningContent)
				grew = true
			}
			if !grew {
				continue
			}

			if !emit(ctx, out, PartialResponse{
				Content:   content.String(),
				Reasoning: reasoning.String(),
			}) {
				return
			}
		}
	}()

	return out
}

// finishOutcome maps an upstream finish reason to a streaming outcome. Normal
// stop and length truncation keep accumulating until EOF; content filtering
// and tool-call requests end the stream early with a fixed user-facing error.
// Unrecognized reasons are treated as continuation.
func finishOutcome(reason go_openai.FinishReason) (terminal bool, msg string) {
	switch reason {
	case "", go_openai.FinishReasonNull, go_openai.FinishReasonStop, go_openai.FinishReasonLength:
		return false, ""
	case go_openai.FinishReasonContentFilter:
		return true, msgContentFiltered
	case go_openai.FinishReasonToolCalls, go_openai.FinishReasonFunctionCall:
		return true, msgToolCalls
	default:
		log.Warn().Str("finish_reason", string(reason)).Msg("unrecognized openai finish reason, continuing")
		return false, ""
	}
}

func toOpenAIMessages(messages []conversation.PromptMessage) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return ret
}

var _ Provider = (*OpenAIProvider)(nil)
