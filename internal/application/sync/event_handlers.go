package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/domain/webhook"
)

// ProductEventHandler reacts to normalized product and stock events by
// re-syncing the affected product's price. Handlers must be idempotent;
// re-running a sync for an unchanged product is a no-op within tolerance.
type ProductEventHandler struct {
	prices PriceSyncer
	logger *zap.Logger
}

// NewProductEventHandler creates the product event handler
func NewProductEventHandler(prices PriceSyncer, logger *zap.Logger) *ProductEventHandler {
	return &ProductEventHandler{prices: prices, logger: logger}
}

var _ shared.EventHandler = (*ProductEventHandler)(nil)

// EventTypes lists the subscribed event types
func (h *ProductEventHandler) EventTypes() []string {
	return []string{webhook.EventTypeProductUpdated, webhook.EventTypeStockUpdated}
}

// Handle runs the price pipeline for the product named by the event
func (h *ProductEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	productID, err := remoteProductID(event)
	if err != nil {
		// nothing to sync, do not requeue
		h.logger.Warn("product event without a product ID",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return nil
	}

	outcome, err := h.prices.SyncProduct(ctx, event.TenantID(), productID)
	if err != nil {
		return fmt.Errorf("failed to sync product %s: %w", productID, err)
	}

	h.logger.Debug("product event handled",
		zap.String("event_type", event.EventType()),
		zap.String("product_id", productID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

func remoteProductID(event shared.DomainEvent) (string, error) {
	switch e := event.(type) {
	case *webhook.ProductUpdatedEvent:
		return e.RemoteProductID, nil
	case *webhook.StockUpdatedEvent:
		return e.RemoteProductID, nil
	}

	// deserialized events may arrive as their concrete type already; fall
	// back to the serialized form for anything else
	raw, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	var probe struct {
		RemoteProductID string `json:"remote_product_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	if probe.RemoteProductID == "" {
		return "", fmt.Errorf("event %s carries no remote product ID", event.EventType())
	}
	return probe.RemoteProductID, nil
}
