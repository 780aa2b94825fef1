package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Status tracks what happened to a received delivery
type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// DefaultMaxRetries bounds the reprocessing sweep for transiently failed deliveries
const DefaultMaxRetries = 3

// Record is the audit row written for every webhook delivery before any
// side effects run. DeliveryID carries the provider's unique delivery
// identifier and is backed by a unique index.
type Record struct {
	shared.TenantEntity
	DeliveryID string
	EventType  string
	Payload    json.RawMessage
	Status     Status
	RetryCount int
	LastError  string
	// Retryable is false for hard rejections (bad signature, stale
	// timestamp, malformed payload) that must never be reprocessed
	Retryable   bool
	ProcessedAt *time.Time
}

// NewRecord creates the audit record for a freshly received delivery
func NewRecord(tenantID uuid.UUID, deliveryID, eventType string, payload json.RawMessage) *Record {
	return &Record{
		TenantEntity: shared.NewTenantEntity(tenantID),
		DeliveryID:   deliveryID,
		EventType:    eventType,
		Payload:      payload,
		Status:       StatusReceived,
		Retryable:    true,
	}
}

// MarkProcessed records successful handling
func (r *Record) MarkProcessed() {
	now := time.Now()
	r.Status = StatusProcessed
	r.ProcessedAt = &now
	r.Touch()
}

// MarkFailed records a transient handler failure, leaving the record
// eligible for the reprocessing sweep
func (r *Record) MarkFailed(errMsg string) {
	r.Status = StatusFailed
	r.LastError = errMsg
	r.RetryCount++
	r.Touch()
}

// MarkRejected records a hard validation failure. Rejected deliveries are
// kept for audit but never retried.
func (r *Record) MarkRejected(reason string) {
	r.Status = StatusRejected
	r.LastError = reason
	r.Retryable = false
	r.Touch()
}

// MarkDuplicate records that the delivery was already handled
func (r *Record) MarkDuplicate() {
	r.Status = StatusDuplicate
	r.Retryable = false
	r.Touch()
}

// CanRetry reports whether the reprocessing sweep may pick this record up
func (r *Record) CanRetry(maxRetries int) bool {
	return r.Status == StatusFailed && r.Retryable && r.RetryCount < maxRetries
}
