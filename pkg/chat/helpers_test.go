package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/splitchat/pkg/conversation"
	"github.com/go-go-golems/splitchat/pkg/events"
	"github.com/go-go-golems/splitchat/pkg/identity"
	"github.com/go-go-golems/splitchat/pkg/providers"
	"github.com/go-go-golems/splitchat/pkg/store"
)

// scriptedProvider replays a fixed chunk sequence per StreamCompletion call
// and records the prompt it was handed.
type scriptedProvider struct {
	mu      sync.Mutex
	chunks  []providers.PartialResponse
	prompts [][]conversation.PromptMessage
}

func (p *scriptedProvider) StreamCompletion(
	ctx context.Context,
	messages []conversation.PromptMessage,
	_ *conversation.Model,
) <-chan providers.PartialResponse {
	p.mu.Lock()
	p.prompts = append(p.prompts, messages)
	chunks := make([]providers.PartialResponse, len(p.chunks))
	copy(chunks, p.chunks)
	p.mu.Unlock()

	out := make(chan providers.PartialResponse)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (p *scriptedProvider) lastPrompt() []conversation.PromptMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return nil
	}
	return p.prompts[len(p.prompts)-1]
}

// recordingScheduler captures scheduled jobs instead of running them.
type scheduledJob struct {
	Delay   time.Duration
	Job     string
	Payload interface{}
}

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (r *recordingScheduler) RunAfter(delay time.Duration, job string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, scheduledJob{Delay: delay, Job: job, Payload: payload})
	return nil
}

func (r *recordingScheduler) scheduled() []scheduledJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]scheduledJob, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// collectingSink accumulates published turn events.
type collectingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collectingSink) PublishEvent(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collectingSink) collected() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

// tickingClock hands out strictly increasing timestamps so created_at
// ordering is deterministic.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type testEnv struct {
	store     store.Store
	provider  *scriptedProvider
	scheduler *recordingScheduler
	sink      *collectingSink
	service   *Service
}

func testModels() []conversation.Model {
	return []conversation.Model{
		{
			ID:      conversation.NewID(),
			Name:    "DeepSeek Chat",
			ModelID: "deepseek-chat",
			Type:    conversation.ProviderTypeDeepseek,
		},
		{
			ID:           conversation.NewID(),
			Name:         "Gemini Flash",
			ModelID:      "gemini-2.5-flash",
			Type:         conversation.ProviderTypeGoogle,
			Capabilities: conversation.Capabilities{Reasoning: true},
		},
	}
}

func newTestEnv(t *testing.T, chunks []providers.PartialResponse, options ...ServiceOption) *testEnv {
	t.Helper()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := &scriptedProvider{chunks: chunks}
	sched := &recordingScheduler{}
	sink := &collectingSink{}

	opts := append([]ServiceOption{
		WithSink(sink),
		WithClock(tickingClock()),
	}, options...)

	svc := NewService(
		st,
		&identity.Static{Subject: "user-1"},
		func(_ *conversation.Model) (providers.Provider, error) { return provider, nil },
		sched,
		opts...,
	)

	require.NoError(t, st.SeedModels(context.Background(), testModels()))

	return &testEnv{
		store:     st,
		provider:  provider,
		scheduler: sched,
		sink:      sink,
		service:   svc,
	}
}
