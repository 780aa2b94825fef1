package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blingsync/backend/internal/domain/pricing"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// GormPriceRepository implements pricing.Repository using GORM
type GormPriceRepository struct {
	db *gorm.DB
}

// NewGormPriceRepository creates a new GORM-based product price repository
func NewGormPriceRepository(db *gorm.DB) *GormPriceRepository {
	return &GormPriceRepository{db: db}
}

// Save persists a new product price
func (r *GormPriceRepository) Save(ctx context.Context, p *pricing.ProductPrice) error {
	model := &models.ProductPriceModel{}
	model.FromDomain(p)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update updates an existing product price
func (r *GormPriceRepository) Update(ctx context.Context, p *pricing.ProductPrice) error {
	model := &models.ProductPriceModel{}
	model.FromDomain(p)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByProduct retrieves the price row for one product of one tenant
func (r *GormPriceRepository) FindByProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*pricing.ProductPrice, error) {
	var model models.ProductPriceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant retrieves a page of prices for a tenant
func (r *GormPriceRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*pricing.ProductPrice, error) {
	var priceModels []models.ProductPriceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("product_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&priceModels).Error; err != nil {
		return nil, err
	}

	prices := make([]*pricing.ProductPrice, len(priceModels))
	for i := range priceModels {
		prices[i] = priceModels[i].ToDomain()
	}
	return prices, nil
}

// CountByTenant returns the number of price rows for a tenant
func (r *GormPriceRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductPriceModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

var _ pricing.Repository = (*GormPriceRepository)(nil)

// GormPriceHistoryRepository implements pricing.HistoryRepository using GORM
type GormPriceHistoryRepository struct {
	db *gorm.DB
}

// NewGormPriceHistoryRepository creates a new GORM-based price history repository
func NewGormPriceHistoryRepository(db *gorm.DB) *GormPriceHistoryRepository {
	return &GormPriceHistoryRepository{db: db}
}

// Append writes one history entry. History is never updated or rewritten.
func (r *GormPriceHistoryRepository) Append(ctx context.Context, e *pricing.HistoryEntry) error {
	model := &models.PriceHistoryModel{}
	model.FromDomain(e)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByProduct retrieves the most recent history entries for a product
func (r *GormPriceHistoryRepository) FindByProduct(ctx context.Context, tenantID uuid.UUID, productID string, limit int) ([]*pricing.HistoryEntry, error) {
	var historyModels []models.PriceHistoryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&historyModels).Error; err != nil {
		return nil, err
	}

	entries := make([]*pricing.HistoryEntry, len(historyModels))
	for i := range historyModels {
		entries[i] = historyModels[i].ToDomain()
	}
	return entries, nil
}

// DeleteOlderThan deletes history entries older than the given time
func (r *GormPriceHistoryRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.PriceHistoryModel{})
	return result.RowsAffected, result.Error
}

var _ pricing.HistoryRepository = (*GormPriceHistoryRepository)(nil)

// GormPriceRuleRepository implements pricing.RuleRepository using GORM
type GormPriceRuleRepository struct {
	db *gorm.DB
}

// NewGormPriceRuleRepository creates a new GORM-based pricing rule repository
func NewGormPriceRuleRepository(db *gorm.DB) *GormPriceRuleRepository {
	return &GormPriceRuleRepository{db: db}
}

// Save persists a pricing rule
func (r *GormPriceRuleRepository) Save(ctx context.Context, rule *pricing.Rule) error {
	model := &models.PriceRuleModel{}
	model.FromDomain(rule)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindEnabledByTenant retrieves all enabled rules for a tenant
func (r *GormPriceRuleRepository) FindEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]*pricing.Rule, error) {
	var ruleModels []models.PriceRuleModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]*pricing.Rule, len(ruleModels))
	for i := range ruleModels {
		rules[i] = ruleModels[i].ToDomain()
	}
	return rules, nil
}

var _ pricing.RuleRepository = (*GormPriceRuleRepository)(nil)
