package pricing

import (
	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Event types published by the price synchronization engine
const (
	EventTypePriceChanged  = "price.changed"
	EventTypePriceConflict = "price.conflict"
)

// PriceChangedEvent is published after a price update is persisted
type PriceChangedEvent struct {
	shared.BaseDomainEvent
	ProductID string `json:"product_id"`
	OldPrice  string `json:"old_price"`
	NewPrice  string `json:"new_price"`
	Source    string `json:"source"`
}

// NewPriceChangedEvent creates the event for an applied price change
func NewPriceChangedEvent(tenantID uuid.UUID, p *ProductPrice, oldPrice string) *PriceChangedEvent {
	return &PriceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriceChanged, "ProductPrice", p.ID, tenantID),
		ProductID:       p.ProductID,
		OldPrice:        oldPrice,
		NewPrice:        p.Price.String(),
		Source:          string(p.Source),
	}
}

// PriceConflictEvent is published whenever an incoming remote price meets a
// recent local manual edit, regardless of which side wins
type PriceConflictEvent struct {
	shared.BaseDomainEvent
	ProductID   string `json:"product_id"`
	LocalPrice  string `json:"local_price"`
	RemotePrice string `json:"remote_price"`
	Strategy    string `json:"strategy"`
	Resolution  string `json:"resolution"`
}

// NewPriceConflictEvent creates the conflict event with the applied resolution
func NewPriceConflictEvent(tenantID uuid.UUID, p *ProductPrice, remotePrice, strategy, resolution string) *PriceConflictEvent {
	return &PriceConflictEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePriceConflict, "ProductPrice", p.ID, tenantID),
		ProductID:       p.ProductID,
		LocalPrice:      p.Price.String(),
		RemotePrice:     remotePrice,
		Strategy:        strategy,
		Resolution:      resolution,
	}
}

var (
	_ shared.DomainEvent = (*PriceChangedEvent)(nil)
	_ shared.DomainEvent = (*PriceConflictEvent)(nil)
)
