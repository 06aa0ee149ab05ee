// Package feed carries domain events out of the dispatcher: to in-process
// subscribers (WebSocket sessions, evaluator agents), to Redis pub/sub and to
// the SQLite ledger.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventGrantCreated       EventType = "grant.created"
	EventGrantStatusChanged EventType = "grant.status_changed"
	EventEvaluationAdded    EventType = "evaluation.added"
	EventVotingUpdated      EventType = "voting.updated"
	EventAgentMessage       EventType = "agent.message"
	EventAgentRegistered    EventType = "agent.registered"
	EventAgentUnregistered  EventType = "agent.unregistered"
)

// Event is one feed entry. Payload is the JSON-serializable domain object.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	GrantID int64     `json:"grant_id,omitempty"`
	AgentID string    `json:"agent_id,omitempty"`
	Topic   string    `json:"topic,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// NewEvent stamps a fresh id and time onto an event.
func NewEvent(t EventType, payload any) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now().UTC(), Payload: payload}
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Fanout delivers each event to every sink, joining their errors.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
