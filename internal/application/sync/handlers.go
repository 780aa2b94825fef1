package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apppricing "github.com/blingsync/backend/internal/application/pricing"
	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/pricing"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/domain/webhook"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/config"
	"github.com/blingsync/backend/internal/infrastructure/jobs"
)

// PriceSyncer is the slice of the price engine the job handlers need
type PriceSyncer interface {
	SyncProduct(ctx context.Context, tenantID uuid.UUID, remoteProductID string) (apppricing.Outcome, error)
	SyncTenantPrices(ctx context.Context, tenantID uuid.UUID) (apppricing.Stats, error)
}

// OrderPuller fetches order pages from the ERP
type OrderPuller interface {
	PullOrders(ctx context.Context, tenantID uuid.UUID, since string, page int) (*bling.OrderPage, error)
}

// WebhookReplayer re-runs failed webhook deliveries
type WebhookReplayer interface {
	Reprocess(ctx context.Context)
}

// Handlers owns the job type implementations registered with the orchestrator
type Handlers struct {
	prices   PriceSyncer
	orders   OrderPuller
	replayer WebhookReplayer
	bus      shared.EventPublisher

	events       shared.EventRecordRepository
	webhooks     webhook.Repository
	priceHistory pricing.HistoryRepository
	jobRepo      job.Repository

	eventRetention   time.Duration
	jobRetention     time.Duration
	historyRetention time.Duration
	logger           *zap.Logger
}

// NewHandlers creates the job handler set
func NewHandlers(
	prices PriceSyncer,
	orders OrderPuller,
	replayer WebhookReplayer,
	bus shared.EventPublisher,
	events shared.EventRecordRepository,
	webhooks webhook.Repository,
	priceHistory pricing.HistoryRepository,
	jobRepo job.Repository,
	eventCfg *config.EventConfig,
	jobsCfg *config.JobsConfig,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		prices:           prices,
		orders:           orders,
		replayer:         replayer,
		bus:              bus,
		events:           events,
		webhooks:         webhooks,
		priceHistory:     priceHistory,
		jobRepo:          jobRepo,
		eventRetention:   eventCfg.CleanupRetention,
		jobRetention:     jobsCfg.CleanupRetention,
		historyRetention: eventCfg.CleanupRetention,
		logger:           logger,
	}
}

// RegisterAll binds every job type to the orchestrator
func (h *Handlers) RegisterAll(o *jobs.Orchestrator) {
	o.RegisterHandler(job.TypeFullSync, jobs.HandlerFunc(h.fullSync))
	o.RegisterHandler(job.TypeProductSync, jobs.HandlerFunc(h.productSync))
	o.RegisterHandler(job.TypeOrderSync, jobs.HandlerFunc(h.orderSync))
	o.RegisterHandler(job.TypeBulkImport, jobs.HandlerFunc(h.bulkImport))
	o.RegisterHandler(job.TypeCleanup, jobs.HandlerFunc(h.cleanup), jobs.WithMaxRetries(1))
	o.RegisterHandler(job.TypeReport, jobs.HandlerFunc(h.report))
	o.RegisterHandler(job.TypeWebhookReplay, jobs.HandlerFunc(h.webhookReplay), jobs.WithMaxRetries(0))
}

type productSyncPayload struct {
	ProductID string `json:"product_id"`
}

type orderSyncPayload struct {
	Since string `json:"since"`
}

type bulkImportPayload struct {
	ProductIDs []string `json:"product_ids"`
}

// fullSync runs the price sweep and the order pull for one tenant
func (h *Handlers) fullSync(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	stats, err := h.prices.SyncTenantPrices(ctx, j.TenantID)
	if err != nil {
		return nil, err
	}
	progress(50)

	orders, err := h.pullAllOrders(ctx, j.TenantID, "")
	if err != nil {
		return nil, err
	}
	progress(100)

	return json.Marshal(map[string]interface{}{
		"prices": stats,
		"orders": orders,
	})
}

// productSync syncs one product when the payload names it, otherwise the
// whole catalog
func (h *Handlers) productSync(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	var p productSyncPayload
	if len(j.Payload) > 0 {
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: invalid product sync payload: %v", shared.ErrInvalidInput, err)
		}
	}

	if p.ProductID != "" {
		outcome, err := h.prices.SyncProduct(ctx, j.TenantID, p.ProductID)
		if err != nil {
			return nil, err
		}
		progress(100)
		return json.Marshal(map[string]string{"outcome": string(outcome)})
	}

	stats, err := h.prices.SyncTenantPrices(ctx, j.TenantID)
	if err != nil {
		return nil, err
	}
	progress(100)
	return json.Marshal(stats)
}

// orderSync pulls orders created since the payload cursor
func (h *Handlers) orderSync(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	var p orderSyncPayload
	if len(j.Payload) > 0 {
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: invalid order sync payload: %v", shared.ErrInvalidInput, err)
		}
	}

	pulled, err := h.pullAllOrders(ctx, j.TenantID, p.Since)
	if err != nil {
		return nil, err
	}
	progress(100)
	return json.Marshal(map[string]int{"orders": pulled})
}

// pullAllOrders pages through the order listing and republishes each order
// as a normalized event for downstream consumers
func (h *Handlers) pullAllOrders(ctx context.Context, tenantID uuid.UUID, since string) (int, error) {
	total := 0
	for page := 1; ; page++ {
		result, err := h.orders.PullOrders(ctx, tenantID, since, page)
		if err != nil {
			return total, fmt.Errorf("failed to pull orders page %d: %w", page, err)
		}

		for i := range result.Orders {
			data, err := json.Marshal(&result.Orders[i])
			if err != nil {
				continue
			}
			event := webhook.NewOrderCreatedEvent(tenantID, fmt.Sprintf("%d", result.Orders[i].ID), data)
			if err := h.bus.Publish(ctx, event); err != nil {
				h.logger.Error("failed to publish pulled order", zap.Error(err))
			}
			total++
		}

		if !result.HasNext {
			return total, nil
		}
	}
}

// bulkImport syncs an explicit product list, reporting progress per item
func (h *Handlers) bulkImport(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	var p bulkImportPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid bulk import payload: %v", shared.ErrInvalidInput, err)
	}
	if len(p.ProductIDs) == 0 {
		return nil, fmt.Errorf("%w: bulk import needs at least one product", shared.ErrInvalidInput)
	}

	imported, failed := 0, 0
	for i, productID := range p.ProductIDs {
		if _, err := h.prices.SyncProduct(ctx, j.TenantID, productID); err != nil {
			failed++
			h.logger.Warn("bulk import item failed",
				zap.String("tenant_id", j.TenantID.String()),
				zap.String("product_id", productID),
				zap.Error(err),
			)
		} else {
			imported++
		}
		progress((i + 1) * 100 / len(p.ProductIDs))
	}

	return json.Marshal(map[string]int{"imported": imported, "failed": failed})
}

// cleanup enforces the retention windows on the audit tables
func (h *Handlers) cleanup(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	now := time.Now()

	eventsDeleted, err := h.events.DeleteOlderThan(ctx, now.Add(-h.eventRetention))
	if err != nil {
		return nil, fmt.Errorf("event cleanup failed: %w", err)
	}
	progress(30)

	webhooksDeleted, err := h.webhooks.DeleteOlderThan(ctx, now.Add(-h.eventRetention))
	if err != nil {
		return nil, fmt.Errorf("webhook cleanup failed: %w", err)
	}
	progress(60)

	historyDeleted, err := h.priceHistory.DeleteOlderThan(ctx, now.Add(-h.historyRetention))
	if err != nil {
		return nil, fmt.Errorf("price history cleanup failed: %w", err)
	}
	progress(80)

	jobsDeleted, err := h.jobRepo.DeleteTerminalOlderThan(ctx, now.Add(-h.jobRetention))
	if err != nil {
		return nil, fmt.Errorf("job cleanup failed: %w", err)
	}
	progress(100)

	return json.Marshal(map[string]int64{
		"events":        eventsDeleted,
		"webhooks":      webhooksDeleted,
		"price_history": historyDeleted,
		"jobs":          jobsDeleted,
	})
}

// report compiles the persisted status counters into one snapshot
func (h *Handlers) report(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	eventCounts, err := h.events.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	progress(50)

	jobCounts, err := h.jobRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	progress(100)

	return json.Marshal(map[string]interface{}{
		"generated_at": time.Now().UTC(),
		"events":       eventCounts,
		"jobs":         jobCounts,
	})
}

// webhookReplay sweeps transiently failed deliveries once
func (h *Handlers) webhookReplay(ctx context.Context, j *job.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	h.replayer.Reprocess(ctx)
	progress(100)
	return json.Marshal(map[string]string{"status": "replayed"})
}
