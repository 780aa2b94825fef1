package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// GormEventRecordRepository implements shared.EventRecordRepository using GORM
type GormEventRecordRepository struct {
	db *gorm.DB
}

// NewGormEventRecordRepository creates a new GORM-based event record repository
func NewGormEventRecordRepository(db *gorm.DB) *GormEventRecordRepository {
	return &GormEventRecordRepository{db: db}
}

// Save persists one or more event records
func (r *GormEventRecordRepository) Save(ctx context.Context, records ...*shared.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	eventModels := make([]*models.EventRecordModel, len(records))
	for i, record := range records {
		eventModels[i] = models.EventRecordModelFromDomain(record)
	}
	return r.db.WithContext(ctx).Create(eventModels).Error
}

// Update updates an existing record
func (r *GormEventRecordRepository) Update(ctx context.Context, record *shared.EventRecord) error {
	record.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(models.EventRecordModelFromDomain(record)).Error
}

// FindByID retrieves a single record by ID
func (r *GormEventRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.EventRecord, error) {
	var model models.EventRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRetryable retrieves failed records due for retry before the given time
func (r *GormEventRecordRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.EventRecord, error) {
	var eventModels []models.EventRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", shared.EventStatusFailed, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainRecords(eventModels), nil
}

// FindUnfinished retrieves non-terminal records created after the given time,
// used for crash recovery on startup
func (r *GormEventRecordRepository) FindUnfinished(ctx context.Context, since time.Time, limit int) ([]*shared.EventRecord, error) {
	var eventModels []models.EventRecordModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at >= ?", []shared.EventStatus{
			shared.EventStatusPending,
			shared.EventStatusProcessing,
			shared.EventStatusFailed,
		}, since).
		Order("created_at ASC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainRecords(eventModels), nil
}

// FindDead retrieves a bounded sample of dead-lettered records
func (r *GormEventRecordRepository) FindDead(ctx context.Context, limit int) ([]*shared.EventRecord, error) {
	var eventModels []models.EventRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", shared.EventStatusDead).
		Order("updated_at ASC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainRecords(eventModels), nil
}

// DeleteOlderThan deletes completed records older than the given time
func (r *GormEventRecordRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.EventStatusCompleted, before).
		Delete(&models.EventRecordModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the record count per status
func (r *GormEventRecordRepository) CountByStatus(ctx context.Context) (map[shared.EventStatus]int64, error) {
	var rows []struct {
		Status shared.EventStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.EventRecordModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.EventStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func toDomainRecords(eventModels []models.EventRecordModel) []*shared.EventRecord {
	records := make([]*shared.EventRecord, len(eventModels))
	for i := range eventModels {
		records[i] = eventModels[i].ToDomain()
	}
	return records
}

var _ shared.EventRecordRepository = (*GormEventRecordRepository)(nil)
