// Package eventbus provides the event-driven plumbing between the billing
// orchestrator, the sweeps, and the workflow rule engine.
package eventbus

import (
	"context"

	"github.com/billhawk/billhawk/pkg/events"
)

// Event is any billing domain event. Concrete types live in pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher emits domain events. The key groups related events onto one
// partition; callers use the entity id (invoice, payment link) so event order
// per entity is preserved.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler processes one delivered event. The event argument arrives as
// the concrete pkg/events type.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber registers handlers per event type, then consumes with
// Subscribe until the context is cancelled.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventBus is the full publish and subscribe surface shared by the API and
// the automation worker.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
