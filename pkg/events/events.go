package events

// Package events carries the observable lifecycle of one streamed turn:
// start, cumulative partials, final, error. The orchestrator publishes these
// to a sink; the CLI (and tests) subscribe through the watermill router.

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeStart   EventType = "start"
	EventTypePartial EventType = "partial"
	EventTypeFinal   EventType = "final"
	EventTypeError   EventType = "error"
)

// Metadata correlates events with the turn and rows they belong to.
type Metadata struct {
	TurnID         uuid.UUID `json:"turnId"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId,omitempty"`
	Model          string    `json:"model,omitempty"`
}

// Event is one turn lifecycle notification. Completion and Reasoning are
// cumulative snapshots, mirroring the provider contract.
type Event struct {
	Type         EventType `json:"type"`
	Meta         Metadata  `json:"meta"`
	Delta        string    `json:"delta,omitempty"`
	Completion   string    `json:"completion,omitempty"`
	Reasoning    string    `json:"reasoning,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

func NewStartEvent(meta Metadata) Event {
	return Event{Type: EventTypeStart, Meta: meta}
}

func NewPartialEvent(meta Metadata, delta, completion, reasoning string) Event {
	return Event{Type: EventTypePartial, Meta: meta, Delta: delta, Completion: completion, Reasoning: reasoning}
}

func NewFinalEvent(meta Metadata, completion string) Event {
	return Event{Type: EventTypeFinal, Meta: meta, Completion: completion}
}

func NewErrorEvent(meta Metadata, errorMessage string) Event {
	return Event{Type: EventTypeError, Meta: meta, ErrorMessage: errorMessage}
}

// NewEventFromJson decodes an event published through the router.
func NewEventFromJson(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "failed to decode event")
	}
	return e, nil
}

// Sink receives turn events. Publishing is best-effort; the orchestrator
// logs and continues when a sink fails.
type Sink interface {
	PublishEvent(e Event) error
}

// NullSink drops everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ Sink = NullSink{}
