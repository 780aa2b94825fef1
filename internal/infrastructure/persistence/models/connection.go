package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blingsync/backend/internal/domain/connection"
)

// TenantConnectionModel is the persistence model for tenant ERP connections
type TenantConnectionModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	StoreName        string            `gorm:"type:varchar(255);not null"`
	Status           connection.Status `gorm:"type:varchar(20);not null;default:active;index"`
	ClientID         string            `gorm:"type:varchar(255);not null"`
	ClientSecret     string            `gorm:"type:varchar(255);not null"`
	WebhookSecret    string            `gorm:"type:varchar(255)"`
	ConflictStrategy string            `gorm:"type:varchar(20);not null;default:bling_wins"`
	PriceTolerance   decimal.Decimal   `gorm:"type:numeric(8,4);not null"`
	MarkupPercent    decimal.Decimal   `gorm:"type:numeric(8,4);not null"`
	CreatedAt        time.Time         `gorm:"not null"`
	UpdatedAt        time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantConnectionModel) TableName() string {
	return "tenant_connections"
}

// ToDomain converts the persistence model to a domain TenantConnection
func (m *TenantConnectionModel) ToDomain() *connection.TenantConnection {
	c := &connection.TenantConnection{
		StoreName:        m.StoreName,
		Status:           m.Status,
		ClientID:         m.ClientID,
		ClientSecret:     m.ClientSecret,
		WebhookSecret:    m.WebhookSecret,
		ConflictStrategy: connection.ConflictStrategy(m.ConflictStrategy),
		PriceTolerance:   m.PriceTolerance,
		MarkupPercent:    m.MarkupPercent,
	}
	c.ID = m.ID
	c.TenantID = m.TenantID
	c.CreatedAt = m.CreatedAt
	c.UpdatedAt = m.UpdatedAt
	return c
}

// FromDomain populates the persistence model from a domain TenantConnection
func (m *TenantConnectionModel) FromDomain(c *connection.TenantConnection) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.StoreName = c.StoreName
	m.Status = c.Status
	m.ClientID = c.ClientID
	m.ClientSecret = c.ClientSecret
	m.WebhookSecret = c.WebhookSecret
	m.ConflictStrategy = string(c.ConflictStrategy)
	m.PriceTolerance = c.PriceTolerance
	m.MarkupPercent = c.MarkupPercent
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// TokenRecordModel is the persistence model for ERP OAuth tokens, one row
// per tenant
type TokenRecordModel struct {
	TenantID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text;not null"`
	ExpiresAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TokenRecordModel) TableName() string {
	return "erp_tokens"
}

// ToDomain converts the persistence model to a domain TokenRecord
func (m *TokenRecordModel) ToDomain() *connection.TokenRecord {
	return &connection.TokenRecord{
		TenantID:     m.TenantID,
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		ExpiresAt:    m.ExpiresAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain TokenRecord
func (m *TokenRecordModel) FromDomain(t *connection.TokenRecord) {
	m.TenantID = t.TenantID
	m.AccessToken = t.AccessToken
	m.RefreshToken = t.RefreshToken
	m.ExpiresAt = t.ExpiresAt
	m.UpdatedAt = t.UpdatedAt
}
