package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/shared"
)

// EventRecordModel is the persistence model for distributed domain events.
// Non-terminal rows are reloaded into the live queue on startup.
type EventRecordModel struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID          `gorm:"type:uuid;not null;index:idx_sync_events_tenant_status,priority:1"`
	EventID       uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string             `gorm:"type:varchar(255);not null"`
	AggregateID   uuid.UUID          `gorm:"type:uuid;not null"`
	AggregateType string             `gorm:"type:varchar(255);not null"`
	Payload       []byte             `gorm:"type:jsonb;not null"`
	Priority      shared.Priority    `gorm:"type:varchar(10);not null;default:normal"`
	Status        shared.EventStatus `gorm:"type:varchar(20);default:PENDING;index:idx_sync_events_tenant_status,priority:2;index:idx_sync_events_status_created,priority:1"`
	RetryCount    int                `gorm:"default:0"`
	MaxRetries    int                `gorm:"default:5"`
	LastError     string             `gorm:"type:text"`
	NextRetryAt   *time.Time         `gorm:"index:idx_sync_events_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_sync_events_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EventRecordModel) TableName() string {
	return "sync_events"
}

// ToDomain converts the persistence model to a domain EventRecord
func (m *EventRecordModel) ToDomain() *shared.EventRecord {
	return &shared.EventRecord{
		ID:            m.ID,
		TenantID:      m.TenantID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       m.Payload,
		Priority:      m.Priority,
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain EventRecord
func (m *EventRecordModel) FromDomain(e *shared.EventRecord) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.EventID = e.EventID
	m.EventType = e.EventType
	m.AggregateID = e.AggregateID
	m.AggregateType = e.AggregateType
	m.Payload = e.Payload
	m.Priority = e.Priority
	m.Status = e.Status
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.LastError = e.LastError
	m.NextRetryAt = e.NextRetryAt
	m.ProcessedAt = e.ProcessedAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// EventRecordModelFromDomain creates a new persistence model from a domain EventRecord
func EventRecordModelFromDomain(e *shared.EventRecord) *EventRecordModel {
	m := &EventRecordModel{}
	m.FromDomain(e)
	return m
}
