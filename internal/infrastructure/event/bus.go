package event

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Bus accepts domain events, persists them, and queues them for delivery.
// The in-memory queue is bounded per priority class; a full class rejects
// the publish, leaving the persisted row for the retry poller.
type Bus struct {
	registry   *HandlerRegistry
	serializer *EventSerializer
	repo       shared.EventRecordRepository
	logger     *zap.Logger

	queues map[shared.Priority]chan *shared.EventRecord
	notify chan struct{}

	mu         sync.RWMutex
	priorities map[string]shared.Priority // eventType -> priority class
	maxRetries int
}

// NewBus creates a new event bus with the given queue capacity per priority class
func NewBus(repo shared.EventRecordRepository, serializer *EventSerializer, logger *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Bus{
		registry:   NewHandlerRegistry(),
		serializer: serializer,
		repo:       repo,
		logger:     logger,
		queues: map[shared.Priority]chan *shared.EventRecord{
			shared.PriorityHigh:   make(chan *shared.EventRecord, queueSize),
			shared.PriorityNormal: make(chan *shared.EventRecord, queueSize),
			shared.PriorityLow:    make(chan *shared.EventRecord, queueSize),
		},
		notify:     make(chan struct{}, 1),
		priorities: make(map[string]shared.Priority),
		maxRetries: shared.DefaultEventMaxRetries,
	}
}

// SetMaxRetries overrides the delivery retry ceiling stamped on new records
func (b *Bus) SetMaxRetries(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.maxRetries = n
	b.mu.Unlock()
}

func (b *Bus) retryCeiling() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxRetries
}

// SetEventPriority assigns a priority class to an event type.
// Unassigned types are queued at normal priority.
func (b *Bus) SetEventPriority(eventType string, priority shared.Priority) {
	b.mu.Lock()
	b.priorities[eventType] = priority
	b.mu.Unlock()
}

func (b *Bus) priorityFor(eventType string) shared.Priority {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.priorities[eventType]; ok {
		return p
	}
	return shared.PriorityNormal
}

// Publish persists each event and appends it to the delivery queue.
// The row is written before the enqueue so an overflowed or crashed queue
// never loses an accepted event.
func (b *Bus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		payload, err := b.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", event.EventType(), err)
		}

		record := shared.NewEventRecord(event, payload, b.priorityFor(event.EventType()))
		record.MaxRetries = b.retryCeiling()
		if err := b.repo.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to persist event %s: %w", event.EventType(), err)
		}

		if !b.enqueue(record) {
			b.logger.Warn("event queue full, delivery deferred to retry poller",
				zap.String("event_type", record.EventType),
				zap.String("priority", string(record.Priority)),
			)
			return fmt.Errorf("%w: event queue for priority %s", shared.ErrQueueFull, record.Priority)
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *Bus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *Bus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// enqueue appends a record to its priority queue without blocking.
// Returns false when the class is full.
func (b *Bus) enqueue(record *shared.EventRecord) bool {
	select {
	case b.queues[record.Priority] <- record:
		b.wake()
		return true
	default:
		return false
	}
}

// dequeue removes up to max records, draining higher priority classes first
func (b *Bus) dequeue(max int) []*shared.EventRecord {
	records := make([]*shared.EventRecord, 0, max)
	for _, priority := range []shared.Priority{shared.PriorityHigh, shared.PriorityNormal, shared.PriorityLow} {
		drained := false
		for len(records) < max && !drained {
			select {
			case record := <-b.queues[priority]:
				records = append(records, record)
			default:
				drained = true
			}
		}
		if len(records) >= max {
			break
		}
	}
	return records
}

// wake signals the drain loop that new work is queued
func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

var (
	_ shared.EventPublisher  = (*Bus)(nil)
	_ shared.EventSubscriber = (*Bus)(nil)
)
