package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blingsync/backend/internal/domain/pricing"
)

// ProductPriceModel is the persistence model for locally stored product prices
type ProductPriceModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_product_prices_tenant_product,priority:1"`
	ProductID    string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_product_prices_tenant_product,priority:2"`
	CategoryID   string          `gorm:"type:varchar(255);index"`
	Price        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	RemotePrice  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency     string          `gorm:"type:varchar(3);not null;default:BRL"`
	Source       pricing.Source  `gorm:"type:varchar(10);not null;default:sync"`
	ManualEditAt *time.Time
	LastSyncedAt *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductPriceModel) TableName() string {
	return "product_prices"
}

// ToDomain converts the persistence model to a domain ProductPrice
func (m *ProductPriceModel) ToDomain() *pricing.ProductPrice {
	p := &pricing.ProductPrice{
		ProductID:    m.ProductID,
		CategoryID:   m.CategoryID,
		Price:        m.Price,
		RemotePrice:  m.RemotePrice,
		Currency:     m.Currency,
		Source:       m.Source,
		ManualEditAt: m.ManualEditAt,
		LastSyncedAt: m.LastSyncedAt,
	}
	p.ID = m.ID
	p.TenantID = m.TenantID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	return p
}

// FromDomain populates the persistence model from a domain ProductPrice
func (m *ProductPriceModel) FromDomain(p *pricing.ProductPrice) {
	m.ID = p.ID
	m.TenantID = p.TenantID
	m.ProductID = p.ProductID
	m.CategoryID = p.CategoryID
	m.Price = p.Price
	m.RemotePrice = p.RemotePrice
	m.Currency = p.Currency
	m.Source = p.Source
	m.ManualEditAt = p.ManualEditAt
	m.LastSyncedAt = p.LastSyncedAt
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// PriceHistoryModel is the append-only audit log of applied price changes
type PriceHistoryModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_price_history_tenant_product,priority:1"`
	ProductID string          `gorm:"type:varchar(255);not null;index:idx_price_history_tenant_product,priority:2"`
	OldPrice  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	NewPrice  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Source    pricing.Source  `gorm:"type:varchar(10);not null"`
	Reason    string          `gorm:"type:varchar(255)"`
	CreatedAt time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PriceHistoryModel) TableName() string {
	return "price_history"
}

// ToDomain converts the persistence model to a domain HistoryEntry
func (m *PriceHistoryModel) ToDomain() *pricing.HistoryEntry {
	return &pricing.HistoryEntry{
		ID:        m.ID,
		TenantID:  m.TenantID,
		ProductID: m.ProductID,
		OldPrice:  m.OldPrice,
		NewPrice:  m.NewPrice,
		Source:    m.Source,
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain HistoryEntry
func (m *PriceHistoryModel) FromDomain(e *pricing.HistoryEntry) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.ProductID = e.ProductID
	m.OldPrice = e.OldPrice
	m.NewPrice = e.NewPrice
	m.Source = e.Source
	m.Reason = e.Reason
	m.CreatedAt = e.CreatedAt
}

// PriceRuleModel is the persistence model for tenant pricing rules
type PriceRuleModel struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	Scope         string           `gorm:"type:varchar(10);not null"`
	TargetID      string           `gorm:"type:varchar(255);not null"`
	MarkupPercent decimal.Decimal  `gorm:"type:numeric(8,4);not null"`
	FixedPrice    *decimal.Decimal `gorm:"type:numeric(14,2)"`
	Enabled       bool             `gorm:"not null;default:true"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PriceRuleModel) TableName() string {
	return "price_rules"
}

// ToDomain converts the persistence model to a domain Rule
func (m *PriceRuleModel) ToDomain() *pricing.Rule {
	r := &pricing.Rule{
		Scope:         pricing.RuleScope(m.Scope),
		TargetID:      m.TargetID,
		MarkupPercent: m.MarkupPercent,
		FixedPrice:    m.FixedPrice,
		Enabled:       m.Enabled,
	}
	r.ID = m.ID
	r.TenantID = m.TenantID
	r.CreatedAt = m.CreatedAt
	r.UpdatedAt = m.UpdatedAt
	return r
}

// FromDomain populates the persistence model from a domain Rule
func (m *PriceRuleModel) FromDomain(r *pricing.Rule) {
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.Scope = string(r.Scope)
	m.TargetID = r.TargetID
	m.MarkupPercent = r.MarkupPercent
	m.FixedPrice = r.FixedPrice
	m.Enabled = r.Enabled
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}
