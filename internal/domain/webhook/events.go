package webhook

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/shared"
)

// Normalized event types republished on the internal bus after a provider
// delivery passes verification
const (
	EventTypeProductUpdated = "erp.product.updated"
	EventTypeOrderCreated   = "erp.order.created"
	EventTypeStockUpdated   = "erp.stock.updated"
)

// ProductUpdatedEvent is the normalized form of a product change delivery
type ProductUpdatedEvent struct {
	shared.BaseDomainEvent
	RemoteProductID string          `json:"remote_product_id"`
	Data            json.RawMessage `json:"data"`
}

// NewProductUpdatedEvent creates the normalized product change event
func NewProductUpdatedEvent(tenantID uuid.UUID, remoteProductID string, data json.RawMessage) *ProductUpdatedEvent {
	return &ProductUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductUpdated, "Product", uuid.New(), tenantID),
		RemoteProductID: remoteProductID,
		Data:            data,
	}
}

// OrderCreatedEvent is the normalized form of an order creation delivery
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	RemoteOrderID string          `json:"remote_order_id"`
	Data          json.RawMessage `json:"data"`
}

// NewOrderCreatedEvent creates the normalized order creation event
func NewOrderCreatedEvent(tenantID uuid.UUID, remoteOrderID string, data json.RawMessage) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, "Order", uuid.New(), tenantID),
		RemoteOrderID:   remoteOrderID,
		Data:            data,
	}
}

// StockUpdatedEvent is the normalized form of a stock balance delivery
type StockUpdatedEvent struct {
	shared.BaseDomainEvent
	RemoteProductID string          `json:"remote_product_id"`
	Data            json.RawMessage `json:"data"`
}

// NewStockUpdatedEvent creates the normalized stock change event
func NewStockUpdatedEvent(tenantID uuid.UUID, remoteProductID string, data json.RawMessage) *StockUpdatedEvent {
	return &StockUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockUpdated, "Stock", uuid.New(), tenantID),
		RemoteProductID: remoteProductID,
		Data:            data,
	}
}

var (
	_ shared.DomainEvent = (*ProductUpdatedEvent)(nil)
	_ shared.DomainEvent = (*OrderCreatedEvent)(nil)
	_ shared.DomainEvent = (*StockUpdatedEvent)(nil)
)
