package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blingsync/backend/internal/domain/connection"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// GormConnectionRepository implements connection.Repository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GORM-based connection repository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// Save persists a new tenant connection
func (r *GormConnectionRepository) Save(ctx context.Context, c *connection.TenantConnection) error {
	model := &models.TenantConnectionModel{}
	model.FromDomain(c)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update updates an existing tenant connection
func (r *GormConnectionRepository) Update(ctx context.Context, c *connection.TenantConnection) error {
	c.Touch()
	model := &models.TenantConnectionModel{}
	model.FromDomain(c)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByTenantID retrieves the connection for a tenant
func (r *GormConnectionRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*connection.TenantConnection, error) {
	var model models.TenantConnectionModel
	if err := r.db.WithContext(ctx).First(&model, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive retrieves every connection participating in scheduled sync
func (r *GormConnectionRepository) FindActive(ctx context.Context) ([]*connection.TenantConnection, error) {
	var connModels []models.TenantConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", connection.StatusActive).
		Order("created_at ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}

	conns := make([]*connection.TenantConnection, len(connModels))
	for i := range connModels {
		conns[i] = connModels[i].ToDomain()
	}
	return conns, nil
}

var _ connection.Repository = (*GormConnectionRepository)(nil)

// GormTokenRepository implements connection.TokenRepository using GORM
type GormTokenRepository struct {
	db *gorm.DB
}

// NewGormTokenRepository creates a new GORM-based token repository
func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

// Upsert stores the token record, replacing any existing record for the tenant
func (r *GormTokenRepository) Upsert(ctx context.Context, t *connection.TokenRecord) error {
	model := &models.TokenRecordModel{}
	model.FromDomain(t)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByTenantID retrieves the token record for a tenant
func (r *GormTokenRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*connection.TokenRecord, error) {
	var model models.TokenRecordModel
	if err := r.db.WithContext(ctx).First(&model, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Delete removes the token record for a tenant
func (r *GormTokenRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&models.TokenRecordModel{}).Error
}

var _ connection.TokenRepository = (*GormTokenRepository)(nil)
