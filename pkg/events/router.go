package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TurnTopic is the topic turn events are published on.
const TurnTopic = "chat.turns"

// EventRouter fans turn events out to registered handlers over an in-process
// gochannel pub/sub.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	logger     watermill.LoggerAdapter
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	// Block each publish until subscribers ack, so start/partial/final arrive
	// in the order the turn emitted them.
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = pubSub
	ret.Subscriber = pubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create event router")
	}
	ret.router = router

	return ret, nil
}

// Sink returns a sink publishing to the router's turn topic.
func (r *EventRouter) Sink() Sink {
	return &publisherSink{publisher: r.Publisher, topic: TurnTopic}
}

// AddTurnHandler registers a handler for decoded turn events.
func (r *EventRouter) AddTurnHandler(name string, f func(ctx context.Context, e Event) error) {
	r.router.AddNoPublisherHandler(name, TurnTopic, r.Subscriber, func(msg *message.Message) error {
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("failed to parse turn event")
			return nil
		}
		return f(msg.Context(), e)
	})
}

func (r *EventRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are up.
func (r *EventRouter) Running() chan struct{} {
	return r.router.Running()
}

func (r *EventRouter) Close() error {
	if err := r.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close publisher")
	}
	return r.router.Close()
}

type publisherSink struct {
	publisher message.Publisher
	topic     string
}

func (s *publisherSink) PublishEvent(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	return s.publisher.Publish(s.topic, message.NewMessage(watermill.NewUUID(), payload))
}

var _ Sink = (*publisherSink)(nil)
