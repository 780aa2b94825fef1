package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/domain/webhook"
	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// GormWebhookRepository implements webhook.Repository using GORM
type GormWebhookRepository struct {
	db *gorm.DB
}

// NewGormWebhookRepository creates a new GORM-based webhook repository
func NewGormWebhookRepository(db *gorm.DB) *GormWebhookRepository {
	return &GormWebhookRepository{db: db}
}

// Save persists a new record. The unique (tenant_id, delivery_id) index
// turns a duplicate delivery into shared.ErrAlreadyExists.
func (r *GormWebhookRepository) Save(ctx context.Context, rec *webhook.Record) error {
	err := r.db.WithContext(ctx).Create(models.WebhookRecordModelFromDomain(rec)).Error
	if err != nil && isDuplicateKeyError(err) {
		return shared.ErrAlreadyExists
	}
	return err
}

// Update updates an existing record
func (r *GormWebhookRepository) Update(ctx context.Context, rec *webhook.Record) error {
	rec.Touch()
	return r.db.WithContext(ctx).Save(models.WebhookRecordModelFromDomain(rec)).Error
}

// FindByID retrieves a record by ID
func (r *GormWebhookRepository) FindByID(ctx context.Context, id uuid.UUID) (*webhook.Record, error) {
	var model models.WebhookRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByDeliveryID retrieves a record by the provider's delivery identifier
func (r *GormWebhookRepository) FindByDeliveryID(ctx context.Context, tenantID uuid.UUID, deliveryID string) (*webhook.Record, error) {
	var model models.WebhookRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delivery_id = ?", tenantID, deliveryID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRetryable returns transiently failed records eligible for the
// reprocessing sweep, oldest first
func (r *GormWebhookRepository) FindRetryable(ctx context.Context, maxRetries, limit int) ([]*webhook.Record, error) {
	var recordModels []models.WebhookRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND retryable = ? AND retry_count < ?", webhook.StatusFailed, true, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]*webhook.Record, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// DeleteOlderThan deletes records older than the given time
func (r *GormWebhookRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.WebhookRecordModel{})
	return result.RowsAffected, result.Error
}

// isDuplicateKeyError detects unique constraint violations across postgres
// and sqlite drivers
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

var _ webhook.Repository = (*GormWebhookRepository)(nil)
