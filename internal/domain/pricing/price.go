package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Source records where the current price value came from
type Source string

const (
	// SourceSync means the price was written by the synchronization engine
	SourceSync Source = "sync"
	// SourceManual means a merchant edited the price locally
	SourceManual Source = "manual"
)

// DefaultConflictLookback is the window within which a local manual edit
// counts as conflicting with an incoming remote price
const DefaultConflictLookback = time.Hour

// ProductPrice is the locally stored selling price for one product of one tenant
type ProductPrice struct {
	shared.TenantEntity
	ProductID    string
	CategoryID   string
	Price        decimal.Decimal
	RemotePrice  decimal.Decimal
	Currency     string
	Source       Source
	ManualEditAt *time.Time
	LastSyncedAt *time.Time
}

// NewProductPrice creates a price row for a product first seen during sync
func NewProductPrice(tenantID uuid.UUID, productID, categoryID string, price, remotePrice decimal.Decimal, currency string) *ProductPrice {
	now := time.Now()
	return &ProductPrice{
		TenantEntity: shared.NewTenantEntity(tenantID),
		ProductID:    productID,
		CategoryID:   categoryID,
		Price:        price,
		RemotePrice:  remotePrice,
		Currency:     currency,
		Source:       SourceSync,
		LastSyncedAt: &now,
	}
}

// ApplySync overwrites the price from the synchronization engine
func (p *ProductPrice) ApplySync(price, remotePrice decimal.Decimal) {
	now := time.Now()
	p.Price = price
	p.RemotePrice = remotePrice
	p.Source = SourceSync
	p.LastSyncedAt = &now
	p.Touch()
}

// ApplyManualEdit records a merchant-made local price change
func (p *ProductPrice) ApplyManualEdit(price decimal.Decimal) {
	now := time.Now()
	p.Price = price
	p.Source = SourceManual
	p.ManualEditAt = &now
	p.Touch()
}

// HasRecentManualEdit reports whether a merchant edited the price within
// the lookback window, which makes an incoming remote change a conflict
func (p *ProductPrice) HasRecentManualEdit(lookback time.Duration) bool {
	if p.Source != SourceManual || p.ManualEditAt == nil {
		return false
	}
	return time.Since(*p.ManualEditAt) < lookback
}

// WithinTolerance reports whether candidate differs from the current price
// by less than tolerancePct percent. Such changes are treated as noise and
// skipped. A zero current price is never within tolerance.
func (p *ProductPrice) WithinTolerance(candidate, tolerancePct decimal.Decimal) bool {
	if p.Price.IsZero() {
		return false
	}
	diff := candidate.Sub(p.Price).Abs()
	threshold := p.Price.Mul(tolerancePct).Div(decimal.NewFromInt(100))
	return diff.LessThan(threshold)
}

// HistoryEntry is an append-only record of one applied price change
type HistoryEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ProductID string
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	Source    Source
	Reason    string
	CreatedAt time.Time
}

// NewHistoryEntry records the transition from old to new for audit
func NewHistoryEntry(tenantID uuid.UUID, productID string, oldPrice, newPrice decimal.Decimal, source Source, reason string) *HistoryEntry {
	return &HistoryEntry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
		Source:    source,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}
