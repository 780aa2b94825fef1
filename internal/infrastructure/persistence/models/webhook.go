package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/webhook"
)

// WebhookRecordModel is the audit row for every received webhook delivery.
// The (tenant_id, delivery_id) pair is unique so a duplicate delivery fails
// the insert instead of being processed twice.
type WebhookRecordModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_webhook_events_tenant_delivery,priority:1"`
	DeliveryID  string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhook_events_tenant_delivery,priority:2"`
	EventType   string         `gorm:"type:varchar(255);not null;index"`
	Payload     []byte         `gorm:"type:jsonb"`
	Status      webhook.Status `gorm:"type:varchar(20);not null;default:received;index"`
	RetryCount  int            `gorm:"default:0"`
	LastError   string         `gorm:"type:text"`
	Retryable   bool           `gorm:"not null;default:true"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookRecordModel) TableName() string {
	return "webhook_events"
}

// ToDomain converts the persistence model to a domain Record
func (m *WebhookRecordModel) ToDomain() *webhook.Record {
	r := &webhook.Record{
		DeliveryID:  m.DeliveryID,
		EventType:   m.EventType,
		Payload:     m.Payload,
		Status:      m.Status,
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
		Retryable:   m.Retryable,
		ProcessedAt: m.ProcessedAt,
	}
	r.ID = m.ID
	r.TenantID = m.TenantID
	r.CreatedAt = m.CreatedAt
	r.UpdatedAt = m.UpdatedAt
	return r
}

// FromDomain populates the persistence model from a domain Record
func (m *WebhookRecordModel) FromDomain(r *webhook.Record) {
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.DeliveryID = r.DeliveryID
	m.EventType = r.EventType
	m.Payload = r.Payload
	m.Status = r.Status
	m.RetryCount = r.RetryCount
	m.LastError = r.LastError
	m.Retryable = r.Retryable
	m.ProcessedAt = r.ProcessedAt
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// WebhookRecordModelFromDomain creates a new persistence model from a domain Record
func WebhookRecordModelFromDomain(r *webhook.Record) *WebhookRecordModel {
	m := &WebhookRecordModel{}
	m.FromDomain(r)
	return m
}
