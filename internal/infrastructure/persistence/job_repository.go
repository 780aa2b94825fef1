package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// GormJobRepository implements job.Repository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GORM-based job repository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Save persists a new job
func (r *GormJobRepository) Save(ctx context.Context, j *job.Job) error {
	return r.db.WithContext(ctx).Create(models.JobModelFromDomain(j)).Error
}

// Update updates an existing job
func (r *GormJobRepository) Update(ctx context.Context, j *job.Job) error {
	return r.db.WithContext(ctx).Save(models.JobModelFromDomain(j)).Error
}

// FindByID retrieves a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var model models.JobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnfinished retrieves all queued and running jobs for crash recovery
func (r *GormJobRepository) FindUnfinished(ctx context.Context) ([]*job.Job, error) {
	var jobModels []models.JobModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []job.Status{job.StatusQueued, job.StatusRunning}).
		Order("created_at ASC").
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, len(jobModels))
	for i := range jobModels {
		jobs[i] = jobModels[i].ToDomain()
	}
	return jobs, nil
}

// CountByStatus returns the job count per status
func (r *GormJobRepository) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	var rows []struct {
		Status job.Status
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[job.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteTerminalOlderThan deletes completed and failed jobs older than the given time
func (r *GormJobRepository) DeleteTerminalOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []job.Status{job.StatusCompleted, job.StatusFailed}, before).
		Delete(&models.JobModel{})
	return result.RowsAffected, result.Error
}

var _ job.Repository = (*GormJobRepository)(nil)
