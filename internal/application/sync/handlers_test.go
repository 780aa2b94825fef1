package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apppricing "github.com/blingsync/backend/internal/application/pricing"
	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/config"
	"github.com/blingsync/backend/internal/infrastructure/persistence"
)

type fakePriceSyncer struct {
	productCalls []string
	sweepCalls   int
}

func (f *fakePriceSyncer) SyncProduct(ctx context.Context, tenantID uuid.UUID, remoteProductID string) (apppricing.Outcome, error) {
	f.productCalls = append(f.productCalls, remoteProductID)
	return apppricing.OutcomeApplied, nil
}

func (f *fakePriceSyncer) SyncTenantPrices(ctx context.Context, tenantID uuid.UUID) (apppricing.Stats, error) {
	f.sweepCalls++
	return apppricing.Stats{Total: 2, Applied: 2}, nil
}

type fakeOrderPuller struct {
	orders []bling.Order
}

func (f *fakeOrderPuller) PullOrders(ctx context.Context, tenantID uuid.UUID, since string, page int) (*bling.OrderPage, error) {
	if page > 1 {
		return &bling.OrderPage{Page: page}, nil
	}
	return &bling.OrderPage{Orders: f.orders, Page: 1}, nil
}

type fakeReplayer struct {
	calls int
}

func (f *fakeReplayer) Reprocess(ctx context.Context) { f.calls++ }

type nopBus struct{ published int }

func (b *nopBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.published += len(events)
	return nil
}

func setupHandlers(t *testing.T) (*Handlers, *fakePriceSyncer, *fakeOrderPuller, *fakeReplayer, *nopBus) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each pooled :memory: connection is its own empty database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))

	prices := &fakePriceSyncer{}
	orders := &fakeOrderPuller{}
	replayer := &fakeReplayer{}
	bus := &nopBus{}

	h := NewHandlers(
		prices, orders, replayer, bus,
		persistence.NewGormEventRecordRepository(db),
		persistence.NewGormWebhookRepository(db),
		persistence.NewGormPriceHistoryRepository(db),
		persistence.NewGormJobRepository(db),
		&config.EventConfig{CleanupRetention: 168 * time.Hour},
		&config.JobsConfig{CleanupRetention: 72 * time.Hour},
		zap.NewNop(),
	)
	return h, prices, orders, replayer, bus
}

func testJob(jobType job.Type, payload string) *job.Job {
	return job.New(jobType, uuid.New(), json.RawMessage(payload), shared.PriorityNormal, time.Minute, 3)
}

func TestHandlers_ProductSync_SingleProduct(t *testing.T) {
	h, prices, _, _, _ := setupHandlers(t)

	result, err := h.productSync(context.Background(), testJob(job.TypeProductSync, `{"product_id":"42"}`), func(int) {})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"applied"}`, string(result))
	assert.Equal(t, []string{"42"}, prices.productCalls)
	assert.Zero(t, prices.sweepCalls)
}

func TestHandlers_ProductSync_WholeCatalog(t *testing.T) {
	h, prices, _, _, _ := setupHandlers(t)

	_, err := h.productSync(context.Background(), testJob(job.TypeProductSync, ""), func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 1, prices.sweepCalls)
}

func TestHandlers_OrderSync_PublishesNormalizedEvents(t *testing.T) {
	h, _, orders, _, bus := setupHandlers(t)
	orders.orders = []bling.Order{{ID: 1, Number: "P-1"}, {ID: 2, Number: "P-2"}}

	result, err := h.orderSync(context.Background(), testJob(job.TypeOrderSync, `{"since":"2026-08-01"}`), func(int) {})
	require.NoError(t, err)
	assert.JSONEq(t, `{"orders":2}`, string(result))
	assert.Equal(t, 2, bus.published)
}

func TestHandlers_BulkImport(t *testing.T) {
	h, prices, _, _, _ := setupHandlers(t)

	var lastProgress int
	result, err := h.bulkImport(context.Background(),
		testJob(job.TypeBulkImport, `{"product_ids":["1","2","3"]}`),
		func(pct int) { lastProgress = pct })
	require.NoError(t, err)
	assert.JSONEq(t, `{"imported":3,"failed":0}`, string(result))
	assert.Equal(t, []string{"1", "2", "3"}, prices.productCalls)
	assert.Equal(t, 100, lastProgress)
}

func TestHandlers_BulkImport_EmptyPayloadRejected(t *testing.T) {
	h, _, _, _, _ := setupHandlers(t)

	_, err := h.bulkImport(context.Background(), testJob(job.TypeBulkImport, `{"product_ids":[]}`), func(int) {})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestHandlers_Cleanup(t *testing.T) {
	h, _, _, _, _ := setupHandlers(t)

	result, err := h.cleanup(context.Background(), testJob(job.TypeCleanup, ""), func(int) {})
	require.NoError(t, err)

	var counts map[string]int64
	require.NoError(t, json.Unmarshal(result, &counts))
	assert.Contains(t, counts, "events")
	assert.Contains(t, counts, "jobs")
}

func TestHandlers_WebhookReplay(t *testing.T) {
	h, _, _, replayer, _ := setupHandlers(t)

	_, err := h.webhookReplay(context.Background(), testJob(job.TypeWebhookReplay, ""), func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 1, replayer.calls)
}
