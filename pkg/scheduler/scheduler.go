package scheduler

// Package scheduler provides fire-and-forget delayed job dispatch: at-least-
// once, best-effort, no ordering guarantees relative to other jobs, and no
// cancellation once scheduled. Jobs run against whatever data exists when
// they fire; handlers treat missing rows as a graceful no-op.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Scheduler dispatches a named job with a JSON-encoded payload after a delay.
type Scheduler interface {
	RunAfter(delay time.Duration, job string, payload interface{}) error
}

// HandlerFunc processes one job invocation. A returned error is logged, not
// retried; retry is a manual user action in this system.
type HandlerFunc func(ctx context.Context, payload []byte) error

// JobRunner is a watermill-backed Scheduler with an in-process handler
// registry. Handlers must be registered before Run is called.
type JobRunner struct {
	publisher message.Publisher
	router    *message.Router
	sub       message.Subscriber
}

func NewJobRunner() (*JobRunner, error) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create job router")
	}

	return &JobRunner{
		publisher: pubSub,
		router:    router,
		sub:       pubSub,
	}, nil
}

func topicFor(job string) string {
	return "jobs." + job
}

// AddHandler registers the handler for one job name.
func (r *JobRunner) AddHandler(job string, f HandlerFunc) {
	r.router.AddNoPublisherHandler("job-"+job, topicFor(job), r.sub, func(msg *message.Message) error {
		if err := f(msg.Context(), msg.Payload); err != nil {
			log.Error().Err(err).Str("job", job).Str("message_id", msg.UUID).Msg("job failed")
		}
		// swallow so the pubsub never redelivers; failed side work stays failed
		return nil
	})
}

// RunAfter implements Scheduler. The payload is marshalled now, so a job
// never observes later mutations of the value it was scheduled with.
func (r *JobRunner) RunAfter(delay time.Duration, job string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal payload for job %s", job)
	}

	publish := func() {
		msg := message.NewMessage(watermill.NewUUID(), body)
		if err := r.publisher.Publish(topicFor(job), msg); err != nil {
			log.Error().Err(err).Str("job", job).Msg("failed to publish job")
		}
	}

	if delay <= 0 {
		go publish()
	} else {
		time.AfterFunc(delay, publish)
	}
	log.Debug().Str("job", job).Dur("delay", delay).Msg("job scheduled")
	return nil
}

func (r *JobRunner) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are up; publish after this to avoid
// dropping messages on the in-memory transport.
func (r *JobRunner) Running() chan struct{} {
	return r.router.Running()
}

func (r *JobRunner) Close() error {
	if err := r.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close job publisher")
	}
	return r.router.Close()
}

var _ Scheduler = (*JobRunner)(nil)
