package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the processing status of a persisted event
type EventStatus string

const (
	EventStatusPending    EventStatus = "PENDING"
	EventStatusProcessing EventStatus = "PROCESSING"
	EventStatusCompleted  EventStatus = "COMPLETED"
	EventStatusFailed     EventStatus = "FAILED"
	EventStatusDead       EventStatus = "DEAD"
)

// Priority classifies jobs and events for dequeue ordering
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the numeric rank of the priority, lower runs first
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether the priority is one of the known classes
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Default retry configuration for event processing
const (
	DefaultEventMaxRetries  = 5
	DefaultEventBaseBackoff = time.Second
)

// EventRecord is a persisted domain event awaiting delivery to its handlers.
// It survives restarts: non-terminal records are reloaded into the live
// queue on startup, and records that exhaust their retry budget move to the
// dead-letter status instead of being lost.
type EventRecord struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Priority      Priority
	Status        EventStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewEventRecord creates a new pending event record for a domain event
func NewEventRecord(event DomainEvent, payload []byte, priority Priority) *EventRecord {
	if !priority.Valid() {
		priority = PriorityNormal
	}
	return &EventRecord{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Priority:      priority,
		Status:        EventStatusPending,
		MaxRetries:    DefaultEventMaxRetries,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// MarkProcessing marks the record as being processed
func (e *EventRecord) MarkProcessing() error {
	if e.Status != EventStatusPending && e.Status != EventStatusFailed {
		return errors.New("can only mark pending or failed events as processing")
	}
	e.Status = EventStatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted marks the record as successfully processed
func (e *EventRecord) MarkCompleted() {
	now := time.Now()
	e.Status = EventStatusCompleted
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a handler failure and schedules the next retry with
// exponential backoff. Once the retry budget is exhausted the record moves
// to the dead-letter status.
func (e *EventRecord) MarkFailed(errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()

	if e.RetryCount >= e.MaxRetries {
		e.Status = EventStatusDead
		e.NextRetryAt = nil
	} else {
		e.Status = EventStatusFailed
		backoff := DefaultEventBaseBackoff * time.Duration(1<<uint(e.RetryCount-1))
		nextRetry := time.Now().Add(backoff)
		e.NextRetryAt = &nextRetry
	}
}

// CanRetry returns true if the record can be retried
func (e *EventRecord) CanRetry() bool {
	return e.Status == EventStatusFailed && e.RetryCount < e.MaxRetries
}

// IsDead returns true if the record is in dead-letter status
func (e *EventRecord) IsDead() bool {
	return e.Status == EventStatusDead
}

// IsTerminal returns true if the record needs no further processing
func (e *EventRecord) IsTerminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusDead
}

// ResetForRecovery returns a record abandoned mid-processing by a crashed
// process to the pending status
func (e *EventRecord) ResetForRecovery() error {
	if e.IsTerminal() {
		return errors.New("cannot recover a terminal event record")
	}
	e.Status = EventStatusPending
	e.UpdatedAt = time.Now()
	return nil
}

// ResetForRetry resets a dead-lettered record for another delivery attempt
func (e *EventRecord) ResetForRetry() error {
	if e.Status != EventStatusDead {
		return errors.New("can only reset dead-lettered events")
	}
	e.Status = EventStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// EventRecordRepository defines the interface for event persistence
type EventRecordRepository interface {
	// Save persists one or more event records
	Save(ctx context.Context, records ...*EventRecord) error
	// Update updates an existing record
	Update(ctx context.Context, record *EventRecord) error
	// FindByID retrieves a single record by ID
	FindByID(ctx context.Context, id uuid.UUID) (*EventRecord, error)
	// FindRetryable retrieves failed records due for retry before the given time
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*EventRecord, error)
	// FindUnfinished retrieves non-terminal records created after the given
	// time, used for crash recovery on startup
	FindUnfinished(ctx context.Context, since time.Time, limit int) ([]*EventRecord, error)
	// FindDead retrieves a bounded sample of dead-lettered records
	FindDead(ctx context.Context, limit int) ([]*EventRecord, error)
	// DeleteOlderThan deletes completed records older than the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns the record count per status
	CountByStatus(ctx context.Context) (map[EventStatus]int64, error)
}
