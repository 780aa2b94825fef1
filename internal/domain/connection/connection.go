package connection

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Status represents the operational state of a tenant's ERP connection
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// ConflictStrategy decides how a remote price change is reconciled against
// a recent local manual edit
type ConflictStrategy string

const (
	// ConflictBlingWins applies the remote price; a conflict event is still published
	ConflictBlingWins ConflictStrategy = "bling_wins"
	// ConflictLocalWins aborts the update and keeps the local price
	ConflictLocalWins ConflictStrategy = "local_wins"
	// ConflictManual flags the conflict for manual resolution via a published event
	ConflictManual ConflictStrategy = "manual"
)

// Valid reports whether the strategy is one of the known values
func (s ConflictStrategy) Valid() bool {
	return s == ConflictBlingWins || s == ConflictLocalWins || s == ConflictManual
}

// TenantConnection holds a tenant's ERP link and its sync settings.
// Credentials are written by the onboarding flow; this layer only reads them.
type TenantConnection struct {
	shared.TenantEntity
	StoreName        string
	Status           Status
	ClientID         string
	ClientSecret     string
	WebhookSecret    string
	ConflictStrategy ConflictStrategy
	// PriceTolerance is the percentage below which remote price changes are
	// ignored as noise. Default 0.5.
	PriceTolerance decimal.Decimal
	// MarkupPercent is the global markup applied to every remote price. May be zero.
	MarkupPercent decimal.Decimal
}

// NewTenantConnection creates an active connection with default sync settings
func NewTenantConnection(tenantID uuid.UUID, storeName, clientID, clientSecret string) *TenantConnection {
	return &TenantConnection{
		TenantEntity:     shared.NewTenantEntity(tenantID),
		StoreName:        storeName,
		Status:           StatusActive,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		ConflictStrategy: ConflictBlingWins,
		PriceTolerance:   decimal.NewFromFloat(0.5),
		MarkupPercent:    decimal.Zero,
	}
}

// IsActive reports whether the connection participates in scheduled sync
func (c *TenantConnection) IsActive() bool {
	return c.Status == StatusActive
}

// MarkError flags the connection after repeated sync failures
func (c *TenantConnection) MarkError() {
	c.Status = StatusError
	c.Touch()
}
