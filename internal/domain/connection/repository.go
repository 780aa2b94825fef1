package connection

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for tenant connections
type Repository interface {
	Save(ctx context.Context, c *TenantConnection) error
	Update(ctx context.Context, c *TenantConnection) error
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*TenantConnection, error)
	FindActive(ctx context.Context) ([]*TenantConnection, error)
}

// TokenRepository defines the persistence interface for ERP token records
type TokenRepository interface {
	// Upsert stores the token record, replacing any existing record for the tenant
	Upsert(ctx context.Context, t *TokenRecord) error
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*TokenRecord, error)
	Delete(ctx context.Context, tenantID uuid.UUID) error
}
