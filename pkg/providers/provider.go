package providers

// Package providers normalizes heterogeneous streaming LLM backends into one
// response-chunk shape. Each variant wraps its native stream into a channel of
// cumulative PartialResponse values: Content and Reasoning only ever grow, and
// the last chunk on the channel always has Completed set. Upstream failures of
// any kind are converted into that terminal chunk; nothing escapes the adapter
// boundary as an error except the synchronous ConfigurationError returned by
// the factory for an unsupported provider type.

import (
	"context"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// PartialResponse is one cumulative snapshot of a streamed completion.
// Consumers persist the latest value, not a delta.
type PartialResponse struct {
	Content      string `json:"content"`
	Reasoning    string `json:"reasoning,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Completed    bool   `json:"completed"`
}

// Provider streams a completion for an ordered context window. The returned
// channel is closed after the terminal chunk. Cancelling ctx closes the
// upstream transport and stops emission.
type Provider interface {
	StreamCompletion(ctx context.Context, messages []conversation.PromptMessage, model *conversation.Model) <-chan PartialResponse
}

// Config carries the per-provider credentials and endpoints. It is built once
// at process start and passed by reference; there is no ambient global client
// state.
type Config struct {
	DeepseekAPIKey  string
	DeepseekBaseURL string
	GeminiAPIKey    string
}

// DefaultDeepseekBaseURL is used when Config.DeepseekBaseURL is empty.
const DefaultDeepseekBaseURL = "https://api.deepseek.com"

// ForModel selects the provider variant for a model descriptor. An
// unsupported provider type or missing credentials surface synchronously as a
// ConfigurationError so the caller can short-circuit without touching
// persistence.
func ForModel(cfg *Config, model *conversation.Model) (Provider, error) {
	if cfg == nil {
		return nil, conversation.NewConfigurationError("provider configuration is missing")
	}

	switch model.Type {
	case conversation.ProviderTypeDeepseek:
		return NewOpenAIProvider(cfg)
	case conversation.ProviderTypeGoogle:
		return NewGeminiProvider(cfg)
	default:
		return nil, conversation.NewConfigurationError("unsupported provider type %q for model %s", model.Type, model.ModelID)
	}
}

// emit delivers a chunk unless the consumer has gone away.
func emit(ctx context.Context, out chan<- PartialResponse, chunk PartialResponse) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
