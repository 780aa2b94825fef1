package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
)

// JobModel is the persistence model for orchestrated background jobs
type JobModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Type        job.Type        `gorm:"type:varchar(50);not null;index"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_sync_jobs_tenant_status,priority:1"`
	Payload     []byte          `gorm:"type:jsonb"`
	Priority    shared.Priority `gorm:"type:varchar(10);not null;default:normal"`
	Status      job.Status      `gorm:"type:varchar(20);not null;default:queued;index:idx_sync_jobs_tenant_status,priority:2;index"`
	Progress    int             `gorm:"default:0"`
	RetryCount  int             `gorm:"default:0"`
	MaxRetries  int             `gorm:"default:3"`
	TimeoutSecs int64           `gorm:"not null"`
	LastError   string          `gorm:"type:text"`
	Result      []byte          `gorm:"type:jsonb"`
	NextRunAt   *time.Time      `gorm:"index"`
	CreatedAt   time.Time       `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job
func (m *JobModel) ToDomain() *job.Job {
	return &job.Job{
		ID:          m.ID,
		Type:        m.Type,
		TenantID:    m.TenantID,
		Payload:     m.Payload,
		Priority:    m.Priority,
		Status:      m.Status,
		Progress:    m.Progress,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		Timeout:     time.Duration(m.TimeoutSecs) * time.Second,
		LastError:   m.LastError,
		Result:      m.Result,
		NextRunAt:   m.NextRunAt,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Job
func (m *JobModel) FromDomain(j *job.Job) {
	m.ID = j.ID
	m.Type = j.Type
	m.TenantID = j.TenantID
	m.Payload = j.Payload
	m.Priority = j.Priority
	m.Status = j.Status
	m.Progress = j.Progress
	m.RetryCount = j.RetryCount
	m.MaxRetries = j.MaxRetries
	m.TimeoutSecs = int64(j.Timeout / time.Second)
	m.LastError = j.LastError
	m.Result = j.Result
	m.NextRunAt = j.NextRunAt
	m.CreatedAt = j.CreatedAt
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
	m.UpdatedAt = j.UpdatedAt
}

// JobModelFromDomain creates a new persistence model from a domain Job
func JobModelFromDomain(j *job.Job) *JobModel {
	m := &JobModel{}
	m.FromDomain(j)
	return m
}
