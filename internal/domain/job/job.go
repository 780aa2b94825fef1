package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Type identifies a registered long-running operation
type Type string

const (
	TypeFullSync      Type = "full_sync"
	TypeProductSync   Type = "product_sync"
	TypeOrderSync     Type = "order_sync"
	TypeBulkImport    Type = "bulk_import"
	TypeCleanup       Type = "cleanup"
	TypeReport        Type = "report"
	TypeWebhookReplay Type = "webhook_replay"
)

// KnownTypes lists every job type the orchestrator accepts
func KnownTypes() []Type {
	return []Type{
		TypeFullSync,
		TypeProductSync,
		TypeOrderSync,
		TypeBulkImport,
		TypeCleanup,
		TypeReport,
		TypeWebhookReplay,
	}
}

// Status represents the lifecycle state of a job.
// Transitions only move forward: queued → running → (completed | retrying → queued | failed).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true when the job needs no further scheduling
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a persisted unit of background work owned by the orchestrator
type Job struct {
	ID          uuid.UUID
	Type        Type
	TenantID    uuid.UUID
	Payload     json.RawMessage
	Priority    shared.Priority
	Status      Status
	Progress    int
	RetryCount  int
	MaxRetries  int
	Timeout     time.Duration
	LastError   string
	Result      json.RawMessage
	NextRunAt   *time.Time
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// New creates a queued job for the given type and tenant
func New(jobType Type, tenantID uuid.UUID, payload json.RawMessage, priority shared.Priority, timeout time.Duration, maxRetries int) *Job {
	if !priority.Valid() {
		priority = shared.PriorityNormal
	}
	now := time.Now()
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		TenantID:   tenantID,
		Payload:    payload,
		Priority:   priority,
		Status:     StatusQueued,
		MaxRetries: maxRetries,
		Timeout:    timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Ready reports whether the job is eligible to start: queued and past any
// scheduled retry time
func (j *Job) Ready(now time.Time) bool {
	if j.Status != StatusQueued {
		return false
	}
	return j.NextRunAt == nil || !now.Before(*j.NextRunAt)
}

// Start transitions the job to running
func (j *Job) Start() error {
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: cannot start job in status %s", shared.ErrInvalidState, j.Status)
	}
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.NextRunAt = nil
	j.UpdatedAt = now
	return nil
}

// SetProgress records fractional completion reported by the handler, clamped
// to 0-100. Progress never moves backwards.
func (j *Job) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.Progress {
		j.Progress = pct
		j.UpdatedAt = time.Now()
	}
}

// Complete transitions the job to completed with an optional result
func (j *Job) Complete(result json.RawMessage) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: cannot complete job in status %s", shared.ErrInvalidState, j.Status)
	}
	now := time.Now()
	j.Status = StatusCompleted
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail records a handler failure. If the retry budget allows, the job is
// rescheduled with exponential backoff and re-enters the queue; otherwise it
// is terminally failed.
func (j *Job) Fail(errMsg string, baseDelay time.Duration, backoffFactor float64) {
	now := time.Now()
	j.LastError = errMsg
	j.UpdatedAt = now

	if j.RetryCount < j.MaxRetries {
		delay := backoffDelay(baseDelay, backoffFactor, j.RetryCount)
		j.RetryCount++
		nextRun := now.Add(delay)
		j.Status = StatusQueued
		j.NextRunAt = &nextRun
		j.StartedAt = nil
		return
	}

	j.Status = StatusFailed
	j.CompletedAt = &now
}

// WillRetry reports whether another attempt is still within budget
func (j *Job) WillRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// ResetForRecovery returns a job abandoned by a crashed process to the
// queue. Handlers must be idempotent or resume from their own checkpoints;
// the orchestrator never resumes a job mid-execution.
func (j *Job) ResetForRecovery() error {
	if j.Status != StatusQueued && j.Status != StatusRunning {
		return fmt.Errorf("%w: cannot recover job in status %s", shared.ErrInvalidState, j.Status)
	}
	j.Status = StatusQueued
	j.StartedAt = nil
	j.NextRunAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

// ForceFail terminally fails a job regardless of remaining retry budget,
// used on shutdown when the grace window elapses
func (j *Job) ForceFail(errMsg string) {
	now := time.Now()
	j.Status = StatusFailed
	j.LastError = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// backoffDelay computes baseDelay × factor^attempt
func backoffDelay(baseDelay time.Duration, factor float64, attempt int) time.Duration {
	delay := float64(baseDelay)
	for i := 0; i < attempt; i++ {
		delay *= factor
	}
	return time.Duration(delay)
}
