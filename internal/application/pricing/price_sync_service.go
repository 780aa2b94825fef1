package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/domain/connection"
	"github.com/blingsync/backend/internal/domain/pricing"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/cache"
	"github.com/blingsync/backend/internal/infrastructure/config"
)

// Outcome classifies what the pipeline did with one remote price
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeConflictKept    Outcome = "conflict_kept"
	OutcomeConflictApplied Outcome = "conflict_applied"
	OutcomePendingManual   Outcome = "pending_manual"
)

// Stats summarizes one sync sweep
type Stats struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// ProductFetcher is the slice of the ERP client the sync engine needs
type ProductFetcher interface {
	GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*bling.Product, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID, page, pageSize int) (*bling.ProductPage, error)
}

// SyncService is the price synchronization engine. Remote prices flow
// through the tenant's rule chain, a change tolerance gate, and conflict
// reconciliation against recent local manual edits before being persisted
// with a full history trail.
type SyncService struct {
	prices      pricing.Repository
	history     pricing.HistoryRepository
	rules       pricing.RuleRepository
	connections connection.Repository
	fetcher     ProductFetcher
	bus         shared.EventPublisher
	cache       *cache.PriceCache
	config      *config.PriceSyncConfig
	logger      *zap.Logger

	locks    productLocks
	sweeping atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncService creates a price synchronization service
func NewSyncService(
	prices pricing.Repository,
	history pricing.HistoryRepository,
	rules pricing.RuleRepository,
	connections connection.Repository,
	fetcher ProductFetcher,
	bus shared.EventPublisher,
	priceCache *cache.PriceCache,
	cfg *config.PriceSyncConfig,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		prices:      prices,
		history:     history,
		rules:       rules,
		connections: connections,
		fetcher:     fetcher,
		bus:         bus,
		cache:       priceCache,
		config:      cfg,
		logger:      logger,
		locks:       productLocks{entries: make(map[string]*lockEntry)},
		stopChan:    make(chan struct{}),
	}
}

// Start launches the periodic catalog sweep when price sync is enabled
func (s *SyncService) Start() {
	if !s.config.Enabled {
		return
	}
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop terminates the periodic sweep
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *SyncService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SyncAllTenantPrices(context.Background())
		}
	}
}

// SyncProduct fetches one product from the ERP and runs it through the
// price pipeline
func (s *SyncService) SyncProduct(ctx context.Context, tenantID uuid.UUID, remoteProductID string) (Outcome, error) {
	conn, err := s.connections.FindByTenantID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !conn.IsActive() {
		return "", fmt.Errorf("%w: connection for tenant %s is not active", shared.ErrInvalidState, tenantID)
	}

	policy, err := s.policyFor(ctx, conn)
	if err != nil {
		return "", err
	}

	product, err := s.fetcher.GetProduct(ctx, tenantID, remoteProductID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch product %s: %w", remoteProductID, err)
	}

	return s.applyRemote(ctx, conn, policy, product)
}

// SyncTenantPrices sweeps the tenant's whole remote catalog page by page
func (s *SyncService) SyncTenantPrices(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	var stats Stats

	conn, err := s.connections.FindByTenantID(ctx, tenantID)
	if err != nil {
		return stats, err
	}
	if !conn.IsActive() {
		return stats, fmt.Errorf("%w: connection for tenant %s is not active", shared.ErrInvalidState, tenantID)
	}

	policy, err := s.policyFor(ctx, conn)
	if err != nil {
		return stats, err
	}

	for page := 1; ; page++ {
		result, err := s.fetcher.ListProducts(ctx, tenantID, page, s.config.PageSize)
		if err != nil {
			return stats, fmt.Errorf("failed to list products page %d: %w", page, err)
		}

		for i := range result.Products {
			stats.Total++
			outcome, err := s.applyRemote(ctx, conn, policy, &result.Products[i])
			if err != nil {
				stats.Failed++
				s.logger.Warn("price sync failed for product",
					zap.String("tenant_id", tenantID.String()),
					zap.Int64("product_id", result.Products[i].ID),
					zap.Error(err),
				)
				continue
			}
			switch outcome {
			case OutcomeApplied, OutcomeConflictApplied:
				stats.Applied++
			case OutcomeSkipped:
				stats.Skipped++
			}
			if outcome == OutcomeConflictApplied || outcome == OutcomeConflictKept || outcome == OutcomePendingManual {
				stats.Conflicts++
			}
		}

		if !result.HasNext {
			break
		}
	}

	s.logger.Info("tenant price sweep finished",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("conflicts", stats.Conflicts),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// SyncAllTenantPrices sweeps every active connection sequentially. The ERP
// rate limiter already serializes outbound traffic, so per-tenant
// parallelism would buy nothing here. Only one full sweep runs at a time;
// a sweep triggered while another is in flight returns immediately so the
// ticker and the manual trigger cannot overlap.
func (s *SyncService) SyncAllTenantPrices(ctx context.Context) map[uuid.UUID]Stats {
	results := make(map[uuid.UUID]Stats)

	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Info("price sweep already in flight, skipping")
		return results
	}
	defer s.sweeping.Store(false)

	active, err := s.connections.FindActive(ctx)
	if err != nil {
		s.logger.Error("price sweep failed to list connections", zap.Error(err))
		return results
	}

	for _, conn := range active {
		stats, err := s.SyncTenantPrices(ctx, conn.TenantID)
		if err != nil {
			s.logger.Error("tenant price sweep failed",
				zap.String("tenant_id", conn.TenantID.String()),
				zap.Error(err),
			)
		}
		results[conn.TenantID] = stats
	}
	return results
}

// applyRemote runs one remote product through the pipeline under the
// per-product lock: resolve the rule chain, gate on tolerance, reconcile
// conflicts, persist with history, publish, invalidate cache.
func (s *SyncService) applyRemote(ctx context.Context, conn *connection.TenantConnection, policy *pricing.Policy, product *bling.Product) (Outcome, error) {
	if !product.Price.IsPositive() {
		return "", fmt.Errorf("%w: non-positive remote price %s for product %d", shared.ErrInvalidInput, product.Price, product.ID)
	}

	productID := fmt.Sprintf("%d", product.ID)
	unlock := s.locks.lock(conn.TenantID, productID)
	defer unlock()

	resolved := policy.Resolve(productID, product.CategoryID, product.Price)

	// read through the cache; sweeps revisit unchanged products constantly
	row := s.cache.Get(conn.TenantID, productID)
	if row == nil {
		var err error
		row, err = s.prices.FindByProduct(ctx, conn.TenantID, productID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return "", err
			}
			return s.insertNew(ctx, conn, product, productID, resolved)
		}
		s.cache.Set(conn.TenantID, productID, row)
	}

	if row.WithinTolerance(resolved, conn.PriceTolerance) {
		return OutcomeSkipped, nil
	}

	if row.HasRecentManualEdit(s.config.ConflictLookback) {
		return s.reconcile(ctx, conn, row, product, resolved)
	}

	return OutcomeApplied, s.persistChange(ctx, conn.TenantID, row, product.Price, resolved, "sync")
}

// insertNew stores the first price row for a product seen during sync
func (s *SyncService) insertNew(ctx context.Context, conn *connection.TenantConnection, product *bling.Product, productID string, resolved decimal.Decimal) (Outcome, error) {
	row := pricing.NewProductPrice(conn.TenantID, productID, product.CategoryID, resolved, product.Price, product.Currency)
	if err := s.prices.Save(ctx, row); err != nil {
		return "", fmt.Errorf("failed to save price row: %w", err)
	}
	s.cache.Set(conn.TenantID, productID, row)
	if err := s.history.Append(ctx, pricing.NewHistoryEntry(conn.TenantID, productID, decimal.Zero, resolved, pricing.SourceSync, "initial sync")); err != nil {
		s.logger.Error("failed to append price history", zap.Error(err))
	}
	s.publish(ctx, pricing.NewPriceChangedEvent(conn.TenantID, row, decimal.Zero.String()))
	return OutcomeApplied, nil
}

// reconcile resolves a remote change that collides with a recent local
// manual edit. The conflict event is published regardless of which side wins.
func (s *SyncService) reconcile(ctx context.Context, conn *connection.TenantConnection, row *pricing.ProductPrice, product *bling.Product, resolved decimal.Decimal) (Outcome, error) {
	var outcome Outcome
	var resolution string

	switch conn.ConflictStrategy {
	case connection.ConflictLocalWins:
		outcome, resolution = OutcomeConflictKept, "local price kept"
	case connection.ConflictManual:
		outcome, resolution = OutcomePendingManual, "awaiting manual resolution"
	default: // bling_wins
		outcome, resolution = OutcomeConflictApplied, "remote price applied"
	}

	s.publish(ctx, pricing.NewPriceConflictEvent(conn.TenantID, row, resolved.String(), string(conn.ConflictStrategy), resolution))

	if outcome != OutcomeConflictApplied {
		s.logger.Info("price conflict, local edit preserved",
			zap.String("tenant_id", conn.TenantID.String()),
			zap.String("product_id", row.ProductID),
			zap.String("strategy", string(conn.ConflictStrategy)),
		)
		return outcome, nil
	}

	return outcome, s.persistChange(ctx, conn.TenantID, row, product.Price, resolved, "conflict: remote wins")
}

// persistChange applies the resolved price and writes the audit trail
func (s *SyncService) persistChange(ctx context.Context, tenantID uuid.UUID, row *pricing.ProductPrice, remotePrice, resolved decimal.Decimal, reason string) error {
	oldPrice := row.Price
	row.ApplySync(resolved, remotePrice)

	if err := s.prices.Update(ctx, row); err != nil {
		return fmt.Errorf("failed to update price row: %w", err)
	}
	if err := s.history.Append(ctx, pricing.NewHistoryEntry(tenantID, row.ProductID, oldPrice, resolved, pricing.SourceSync, reason)); err != nil {
		s.logger.Error("failed to append price history", zap.Error(err))
	}

	s.cache.Invalidate(tenantID, row.ProductID)
	s.publish(ctx, pricing.NewPriceChangedEvent(tenantID, row, oldPrice.String()))
	return nil
}

// policyFor loads the tenant's enabled rules into a resolution policy
func (s *SyncService) policyFor(ctx context.Context, conn *connection.TenantConnection) (*pricing.Policy, error) {
	rules, err := s.rules.FindEnabledByTenant(ctx, conn.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing rules: %w", err)
	}
	return pricing.NewPolicy(conn.MarkupPercent, rules), nil
}

func (s *SyncService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish pricing event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}

// productLocks serializes pipeline runs per product within this process.
// Entries are reference counted so the map does not grow with the catalog.
type productLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *productLocks) lock(tenantID uuid.UUID, productID string) func() {
	key := tenantID.String() + ":" + productID

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
