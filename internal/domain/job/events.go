package job

import (
	"github.com/blingsync/backend/internal/domain/shared"
)

// Event types published by the orchestrator
const (
	EventTypeJobCompleted = "job.completed"
	EventTypeJobFailed    = "job.failed"
)

// CompletedEvent is published when a job reaches the completed status
type CompletedEvent struct {
	shared.BaseDomainEvent
	JobType    string `json:"job_type"`
	DurationMS int64  `json:"duration_ms"`
}

// NewCompletedEvent creates a completion event for the given job
func NewCompletedEvent(j *Job) *CompletedEvent {
	var durationMS int64
	if j.StartedAt != nil && j.CompletedAt != nil {
		durationMS = j.CompletedAt.Sub(*j.StartedAt).Milliseconds()
	}
	return &CompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobCompleted, "Job", j.ID, j.TenantID),
		JobType:         string(j.Type),
		DurationMS:      durationMS,
	}
}

// FailedEvent is published when a job exhausts its retry budget
type FailedEvent struct {
	shared.BaseDomainEvent
	JobType    string `json:"job_type"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"`
}

// NewFailedEvent creates a terminal failure event for the given job
func NewFailedEvent(j *Job) *FailedEvent {
	return &FailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobFailed, "Job", j.ID, j.TenantID),
		JobType:         string(j.Type),
		RetryCount:      j.RetryCount,
		Error:           j.LastError,
	}
}

// Ensure events implement DomainEvent
var (
	_ shared.DomainEvent = (*CompletedEvent)(nil)
	_ shared.DomainEvent = (*FailedEvent)(nil)
)
