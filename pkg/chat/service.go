package chat

// Package chat is the conversation orchestration engine: it drives one user
// turn end to end (context assembly, provider dispatch, incremental
// persistence of streamed output), maintains the split/parent conversation
// tree, and runs the asynchronous title and summarization side work.

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/splitchat/pkg/conversation"
	"github.com/go-go-golems/splitchat/pkg/events"
	"github.com/go-go-golems/splitchat/pkg/identity"
	"github.com/go-go-golems/splitchat/pkg/providers"
	"github.com/go-go-golems/splitchat/pkg/scheduler"
	"github.com/go-go-golems/splitchat/pkg/store"
)

// Job names dispatched through the scheduler.
const (
	JobTitleGenerate = "title.generate"
	JobMessagesPurge = "messages.purge"
)

// User-facing message when the provider factory rejects a model
// synchronously.
const msgModelUnavailable = "This model is currently unavailable. Please choose a different model."

// ProviderFactory resolves the provider variant for a model descriptor. It
// returns a ConfigurationError for unsupported or unconfigured backends.
type ProviderFactory func(model *conversation.Model) (providers.Provider, error)

// DefaultProviderFactory dispatches on the model's provider type using the
// injected provider configuration.
func DefaultProviderFactory(cfg *providers.Config) ProviderFactory {
	return func(model *conversation.Model) (providers.Provider, error) {
		return providers.ForModel(cfg, model)
	}
}

// Service wires the engine's collaborators together. One Service handles any
// number of turns; it holds no per-turn state.
type Service struct {
	store       store.Store
	identity    identity.Provider
	providerFor ProviderFactory
	scheduler   scheduler.Scheduler
	sink        events.Sink

	maxContextMessages int
	titleDelay         time.Duration
	utilityModelID     string

	now func() time.Time
}

type ServiceOption func(*Service)

// WithSink routes turn events somewhere (CLI, tests). Defaults to a
// null sink.
func WithSink(sink events.Sink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

// WithMaxContextMessages caps the assembled context window row count.
// 0 means unbounded.
func WithMaxContextMessages(n int) ServiceOption {
	return func(s *Service) { s.maxContextMessages = n }
}

// WithTitleDelay sets how long the title job waits before running.
func WithTitleDelay(d time.Duration) ServiceOption {
	return func(s *Service) { s.titleDelay = d }
}

// WithUtilityModel pins the model used for title and summary side work.
// Empty falls back to the turn's model (titles) or the first seeded model
// (summaries).
func WithUtilityModel(modelID string) ServiceOption {
	return func(s *Service) { s.utilityModelID = modelID }
}

// WithClock overrides the time source, used by tests for deterministic
// message ordering.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(
	st store.Store,
	id identity.Provider,
	factory ProviderFactory,
	sched scheduler.Scheduler,
	options ...ServiceOption,
) *Service {
	s := &Service{
		store:              st,
		identity:           id,
		providerFor:        factory,
		scheduler:          sched,
		sink:               events.NullSink{},
		maxContextMessages: 40,
		titleDelay:         2 * time.Second,
		now:                time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// RegisterJobs binds the side-work handlers onto a job runner. Must be
// called before the runner starts.
func (s *Service) RegisterJobs(runner *scheduler.JobRunner) {
	runner.AddHandler(JobTitleGenerate, s.HandleTitleGenerate)
	runner.AddHandler(JobMessagesPurge, s.HandleMessagesPurge)
}

// requireUser resolves the caller or rejects with an AuthorizationError.
func (s *Service) requireUser(ctx context.Context) (*identity.User, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, conversation.NewAuthorizationError("you are not authenticated")
	}
	return user, nil
}

// ownedConversation loads a conversation and checks the caller owns it.
func (s *Service) ownedConversation(ctx context.Context, user *identity.User, id string) (*conversation.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != user.Subject {
		return nil, conversation.NewAuthorizationError("conversation %s does not belong to you", id)
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first. Without an identity it degrades to an empty result set.
func (s *Service) ListConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return []*conversation.Conversation{}, nil
	}
	return s.store.ListConversations(ctx, user.Subject)
}

// ListMessages returns a conversation's messages in chronological order.
// Unlike listing conversations, reading a specific conversation without an
// identity (or without owning it) is an error.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]*conversation.Message, error) {
	user, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedConversation(ctx, user, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// ListModels returns the selectable model descriptors.
func (s *Service) ListModels(ctx context.Context) ([]*conversation.Model, error) {
	return s.store.ListModels(ctx)
}

// SeedModels installs or refreshes model reference data.
func (s *Service) SeedModels(ctx context.Context, models []conversation.Model) error {
	return s.store.SeedModels(ctx, models)
}

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	// ConversationID is empty for the first message; the conversation is
	// then created with a placeholder title.
	ConversationID string
	Content        string
	ModelID        string
}

// SendMessageResult reports what the turn persisted.
type SendMessageResult struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	NewConversation    bool
}

// SendMessage validates, persists the user leg, runs the streaming turn, and
// schedules title generation for brand-new conversations. Failures after the
// user message is durable are logged and persisted onto the assistant row,
// never returned.
func (s *Service) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	user, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, conversation.NewValidationError("message cannot be empty")
	}

	model, err := s.store.GetModelByModelID(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}

	var conv *conversation.Conversation
	newConversation := false
	if req.ConversationID != "" {
		conv, err = s.ownedConversation(ctx, user, req.ConversationID)
		if err != nil {
			return nil, err
		}
	} else {
		now := s.now()
		conv = &conversation.Conversation{
			ID:        conversation.NewID(),
			Title:     conversation.PlaceholderTitle,
			UserID:    user.Subject,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.InsertConversation(ctx, conv); err != nil {
			return nil, err
		}
		newConversation = true
	}

	userMsg := &conversation.Message{
		ID:             conversation.NewID(),
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        req.Content,
		Completed:      true,
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	assistantID := s.runTurn(ctx, conv, model)

	if newConversation {
		if err := s.scheduler.RunAfter(s.titleDelay, JobTitleGenerate, titlePayload{
			ConversationID: conv.ID,
			ModelID:        model.ModelID,
		}); err != nil {
			log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to schedule title job")
		}
	}

	return &SendMessageResult{
		ConversationID:     conv.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantID,
		NewConversation:    newConversation,
	}, nil
}
