package pricing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blingsync/backend/internal/domain/connection"
	"github.com/blingsync/backend/internal/domain/pricing"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/cache"
	"github.com/blingsync/backend/internal/infrastructure/config"
	"github.com/blingsync/backend/internal/infrastructure/persistence"
)

type fakeFetcher struct {
	mu       sync.Mutex
	products map[int64]*bling.Product
}

func (f *fakeFetcher) GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*bling.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var id int64
	if _, err := fmt.Sscanf(productID, "%d", &id); err != nil {
		return nil, bling.ErrNotFound
	}
	p, ok := f.products[id]
	if !ok {
		return nil, bling.ErrNotFound
	}
	return p, nil
}

func (f *fakeFetcher) ListProducts(ctx context.Context, tenantID uuid.UUID, page, pageSize int) (*bling.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := &bling.ProductPage{Page: page}
	if page > 1 {
		return result, nil
	}
	for _, p := range f.products {
		result.Products = append(result.Products, *p)
	}
	return result, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (b *recordingBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

func (b *recordingBus) byType(eventType string) []shared.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range b.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// countingPriceRepo counts row lookups so tests can observe cache hits
type countingPriceRepo struct {
	pricing.Repository
	mu    sync.Mutex
	finds int
}

func (r *countingPriceRepo) FindByProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*pricing.ProductPrice, error) {
	r.mu.Lock()
	r.finds++
	r.mu.Unlock()
	return r.Repository.FindByProduct(ctx, tenantID, productID)
}

func (r *countingPriceRepo) findCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

type syncFixture struct {
	svc         *SyncService
	tenantID    uuid.UUID
	conn        *connection.TenantConnection
	connections connection.Repository
	prices      *countingPriceRepo
	history     pricing.HistoryRepository
	rules       pricing.RuleRepository
	fetcher     *fakeFetcher
	bus         *recordingBus
}

func setupSync(t *testing.T) *syncFixture {
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

	f := &syncFixture{
		tenantID:    uuid.New(),
		connections: persistence.NewGormConnectionRepository(db),
		prices:      &countingPriceRepo{Repository: persistence.NewGormPriceRepository(db)},
		history:     persistence.NewGormPriceHistoryRepository(db),
		rules:       persistence.NewGormPriceRuleRepository(db),
		fetcher:     &fakeFetcher{products: make(map[int64]*bling.Product)},
		bus:         &recordingBus{},
	}

	f.conn = connection.NewTenantConnection(f.tenantID, "Loja Teste", "client-id", "client-secret")
	require.NoError(t, f.connections.Save(context.Background(), f.conn))

	cfg := &config.PriceSyncConfig{
		Enabled:          true,
		SweepInterval:    15 * time.Minute,
		PageSize:         100,
		TolerancePct:     0.5,
		ConflictLookback: time.Hour,
		CacheTTL:         5 * time.Minute,
	}
	f.svc = NewSyncService(f.prices, f.history, f.rules, f.connections, f.fetcher, f.bus,
		cache.NewPriceCache(cfg.CacheTTL, 100), cfg, zap.NewNop())
	return f
}

func (f *syncFixture) seedPrice(t *testing.T, productID string, price string) *pricing.ProductPrice {
	t.Helper()
	row := pricing.NewProductPrice(f.tenantID, productID, "", d(price), d(price), "BRL")
	require.NoError(t, f.prices.Save(context.Background(), row))
	return row
}

func (f *syncFixture) remoteProduct(id int64, price string) {
	f.fetcher.mu.Lock()
	defer f.fetcher.mu.Unlock()
	f.fetcher.products[id] = &bling.Product{ID: id, Name: "Produto", Price: d(price), Currency: "BRL"}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSyncService_FirstSyncCreatesRow(t *testing.T) {
	f := setupSync(t)
	f.remoteProduct(100, "50.00")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "100")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	row, err := f.prices.FindByProduct(context.Background(), f.tenantID, "100")
	require.NoError(t, err)
	assert.True(t, row.Price.Equal(d("50.00")))
	assert.Len(t, f.bus.byType(pricing.EventTypePriceChanged), 1)
}

func TestSyncService_ChangeBelowToleranceIsSkipped(t *testing.T) {
	f := setupSync(t)
	f.seedPrice(t, "200", "100.00")
	// 0.4% change, inside the default 0.5% tolerance
	f.remoteProduct(200, "100.40")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "200")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	row, err := f.prices.FindByProduct(context.Background(), f.tenantID, "200")
	require.NoError(t, err)
	assert.True(t, row.Price.Equal(d("100.00")))
	assert.Empty(t, f.bus.byType(pricing.EventTypePriceChanged))
}

func TestSyncService_ChangeAtToleranceIsApplied(t *testing.T) {
	f := setupSync(t)
	f.seedPrice(t, "201", "100.00")
	// exactly 0.5%, the threshold itself is applied
	f.remoteProduct(201, "100.50")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "201")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	row, err := f.prices.FindByProduct(context.Background(), f.tenantID, "201")
	require.NoError(t, err)
	assert.True(t, row.Price.Equal(d("100.50")))
	assert.Len(t, f.bus.byType(pricing.EventTypePriceChanged), 1)
}

func TestSyncService_LocalWinsKeepsManualEdit(t *testing.T) {
	f := setupSync(t)
	f.conn.ConflictStrategy = connection.ConflictLocalWins
	require.NoError(t, f.connections.Update(context.Background(), f.conn))

	row := f.seedPrice(t, "300", "80.00")
	row.ApplyManualEdit(d("75.00"))
	require.NoError(t, f.prices.Update(context.Background(), row))

	f.remoteProduct(300, "90.00")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "300")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflictKept, outcome)

	stored, err := f.prices.FindByProduct(context.Background(), f.tenantID, "300")
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(d("75.00")))
	assert.Equal(t, pricing.SourceManual, stored.Source)

	// the conflict is still surfaced even though nothing changed
	conflicts := f.bus.byType(pricing.EventTypePriceConflict)
	require.Len(t, conflicts, 1)
	assert.Empty(t, f.bus.byType(pricing.EventTypePriceChanged))
}

func TestSyncService_BlingWinsAppliesRemoteAndPublishesConflict(t *testing.T) {
	f := setupSync(t)

	row := f.seedPrice(t, "301", "80.00")
	row.ApplyManualEdit(d("75.00"))
	require.NoError(t, f.prices.Update(context.Background(), row))

	f.remoteProduct(301, "90.00")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "301")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflictApplied, outcome)

	stored, err := f.prices.FindByProduct(context.Background(), f.tenantID, "301")
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(d("90.00")))
	assert.Equal(t, pricing.SourceSync, stored.Source)

	require.Len(t, f.bus.byType(pricing.EventTypePriceConflict), 1)
	require.Len(t, f.bus.byType(pricing.EventTypePriceChanged), 1)
}

func TestSyncService_OldManualEditIsNotAConflict(t *testing.T) {
	f := setupSync(t)

	row := f.seedPrice(t, "302", "80.00")
	past := time.Now().Add(-2 * time.Hour)
	row.Source = pricing.SourceManual
	row.ManualEditAt = &past
	require.NoError(t, f.prices.Update(context.Background(), row))

	f.remoteProduct(302, "90.00")

	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "302")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Empty(t, f.bus.byType(pricing.EventTypePriceConflict))
}

func TestSyncService_MarkupAndRuleChain(t *testing.T) {
	f := setupSync(t)
	f.conn.MarkupPercent = d("10")
	require.NoError(t, f.connections.Update(context.Background(), f.conn))

	fixed := d("42.00")
	rule := pricing.NewRule(f.tenantID, pricing.ScopeProduct, "401", decimal.Zero)
	rule.FixedPrice = &fixed
	require.NoError(t, f.rules.Save(context.Background(), rule))

	f.remoteProduct(400, "100.00")
	f.remoteProduct(401, "100.00")

	_, err := f.svc.SyncProduct(context.Background(), f.tenantID, "400")
	require.NoError(t, err)
	_, err = f.svc.SyncProduct(context.Background(), f.tenantID, "401")
	require.NoError(t, err)

	global, err := f.prices.FindByProduct(context.Background(), f.tenantID, "400")
	require.NoError(t, err)
	assert.True(t, global.Price.Equal(d("110.00")))

	pinned, err := f.prices.FindByProduct(context.Background(), f.tenantID, "401")
	require.NoError(t, err)
	assert.True(t, pinned.Price.Equal(d("42.00")))
}

func TestSyncService_NonPositiveRemotePriceRejected(t *testing.T) {
	f := setupSync(t)
	f.remoteProduct(500, "0")

	_, err := f.svc.SyncProduct(context.Background(), f.tenantID, "500")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSyncService_SweepAggregatesStats(t *testing.T) {
	f := setupSync(t)

	f.seedPrice(t, "600", "100.00")
	f.remoteProduct(600, "100.20") // within tolerance
	f.remoteProduct(601, "10.00")  // new product
	f.remoteProduct(602, "20.00")  // new product

	stats, err := f.svc.SyncTenantPrices(context.Background(), f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Failed)
}

func TestSyncService_RepeatSyncServedFromCache(t *testing.T) {
	f := setupSync(t)
	f.remoteProduct(700, "50.00")

	_, err := f.svc.SyncProduct(context.Background(), f.tenantID, "700")
	require.NoError(t, err)
	readsAfterInsert := f.prices.findCount()

	// unchanged remote price: the row comes from the cache, not the store
	for i := 0; i < 2; i++ {
		outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "700")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
	}
	assert.Equal(t, readsAfterInsert, f.prices.findCount())
}

func TestSyncService_CacheInvalidatedOnAppliedChange(t *testing.T) {
	f := setupSync(t)
	f.remoteProduct(701, "50.00")

	_, err := f.svc.SyncProduct(context.Background(), f.tenantID, "701")
	require.NoError(t, err)

	f.remoteProduct(701, "60.00")
	outcome, err := f.svc.SyncProduct(context.Background(), f.tenantID, "701")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// the applied change dropped the cached row, so the next run re-reads
	reads := f.prices.findCount()
	_, err = f.svc.SyncProduct(context.Background(), f.tenantID, "701")
	require.NoError(t, err)
	assert.Equal(t, reads+1, f.prices.findCount())

	row, err := f.prices.FindByProduct(context.Background(), f.tenantID, "701")
	require.NoError(t, err)
	assert.True(t, row.Price.Equal(d("60.00")))
}

// blockingFetcher parks ListProducts until released so tests can hold a
// sweep in flight
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*bling.Product, error) {
	return nil, bling.ErrNotFound
}

func (f *blockingFetcher) ListProducts(ctx context.Context, tenantID uuid.UUID, page, pageSize int) (*bling.ProductPage, error) {
	f.entered <- struct{}{}
	<-f.release
	return &bling.ProductPage{Page: page}, nil
}

func TestSyncService_FullSweepSingleFlight(t *testing.T) {
	f := setupSync(t)
	bf := &blockingFetcher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f.svc.fetcher = bf

	first := make(chan map[uuid.UUID]Stats, 1)
	go func() { first <- f.svc.SyncAllTenantPrices(context.Background()) }()

	// wait until the first sweep is inside the catalog fetch
	select {
	case <-bf.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("first sweep never reached the fetcher")
	}

	// a second sweep while one is in flight returns immediately, empty
	second := f.svc.SyncAllTenantPrices(context.Background())
	assert.Empty(t, second)

	close(bf.release)
	select {
	case results := <-first:
		assert.Contains(t, results, f.tenantID)
	case <-time.After(3 * time.Second):
		t.Fatal("first sweep did not finish")
	}

	// with the first sweep done, the guard is released again
	third := f.svc.SyncAllTenantPrices(context.Background())
	assert.Contains(t, third, f.tenantID)
}

func TestSyncService_InactiveConnectionRefused(t *testing.T) {
	f := setupSync(t)
	f.conn.MarkError()
	require.NoError(t, f.connections.Update(context.Background(), f.conn))

	_, err := f.svc.SyncProduct(context.Background(), f.tenantID, "1")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
