package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in
	EventTypes() []string
}

// EventPublisher publishes domain events
type EventPublisher interface {
	// Publish enqueues one or more domain events for asynchronous processing.
	// The events are persisted before this call returns; an error means the
	// event was neither stored nor queued.
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber subscribes to domain events
type EventSubscriber interface {
	// Subscribe registers a handler for specific event types
	Subscribe(handler EventHandler, eventTypes ...string)
	// Unsubscribe removes a handler from the subscription list
	Unsubscribe(handler EventHandler)
}

// EventBus combines publisher and subscriber capabilities
type EventBus interface {
	EventPublisher
	EventSubscriber
	// Start starts background processing
	Start(ctx context.Context) error
	// Stop gracefully stops the bus
	Stop(ctx context.Context) error
}
