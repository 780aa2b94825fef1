package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for product prices
type Repository interface {
	Save(ctx context.Context, p *ProductPrice) error
	Update(ctx context.Context, p *ProductPrice) error
	FindByProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*ProductPrice, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*ProductPrice, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// HistoryRepository defines the append-only persistence interface for
// price change history
type HistoryRepository interface {
	Append(ctx context.Context, e *HistoryEntry) error
	FindByProduct(ctx context.Context, tenantID uuid.UUID, productID string, limit int) ([]*HistoryEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
