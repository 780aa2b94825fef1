package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/blingsync/backend/internal/domain/connection"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/bling"
	"github.com/blingsync/backend/internal/infrastructure/config"
)

// Refresher exchanges a refresh token for a new credential pair.
// Satisfied by the ERP API client.
type Refresher interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*bling.TokenResponse, error)
}

// cacheEntry is a cached token with its load time for TTL eviction
type cacheEntry struct {
	record   *connection.TokenRecord
	cachedAt time.Time
}

// Service is the per-tenant token refresh coordinator. Concurrent callers
// needing a refresh for the same tenant are collapsed into a single refresh
// request; everyone else waits a bounded time for its result.
type Service struct {
	tokens      connection.TokenRepository
	connections connection.Repository
	config      *config.TokenConfig
	logger      *zap.Logger

	mu          sync.RWMutex
	refresher   Refresher
	cache       map[uuid.UUID]*cacheEntry
	invalidated map[uuid.UUID]struct{}

	group    singleflight.Group
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ bling.TokenSource = (*Service)(nil)

// NewService creates a token refresh coordinator
func NewService(tokens connection.TokenRepository, connections connection.Repository, cfg *config.TokenConfig, logger *zap.Logger) *Service {
	return &Service{
		tokens:      tokens,
		connections: connections,
		config:      cfg,
		logger:      logger,
		cache:       make(map[uuid.UUID]*cacheEntry),
		invalidated: make(map[uuid.UUID]struct{}),
		stopChan:    make(chan struct{}),
	}
}

// SetRefresher binds the ERP client after construction. The client itself
// consumes this service as its token source, so the two are wired in stages.
func (s *Service) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// Token returns a valid access token for the tenant, refreshing it first if
// it is expired or within the expiry buffer. Implements bling.TokenSource.
func (s *Service) Token(ctx context.Context, tenantID uuid.UUID) (string, error) {
	if record := s.cached(tenantID); record != nil {
		return record.AccessToken, nil
	}

	ch := s.group.DoChan(tenantID.String(), func() (interface{}, error) {
		return s.refresh(context.Background(), tenantID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*connection.TokenRecord).AccessToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.config.RefreshWait):
		return "", fmt.Errorf("timed out after %s waiting for token refresh", s.config.RefreshWait)
	}
}

// Invalidate drops the cached token for a tenant and forces the next Token
// call to perform a real refresh, even if the stored record looks fresh.
// Called when the ERP rejects a token before its recorded expiry.
func (s *Service) Invalidate(tenantID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, tenantID)
	s.invalidated[tenantID] = struct{}{}
	s.mu.Unlock()
}

// cached returns the cached record if it is fresh and within the cache TTL
func (s *Service) cached(tenantID uuid.UUID) *connection.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[tenantID]
	if !ok {
		return nil
	}
	if time.Since(entry.cachedAt) > s.config.CacheTTL {
		return nil
	}
	if entry.record.IsExpired(s.config.ExpiryBuffer) {
		return nil
	}
	return entry.record
}

// refresh performs the actual token refresh for one tenant. Runs inside
// singleflight, so at most one refresh per tenant is in flight at a time.
func (s *Service) refresh(ctx context.Context, tenantID uuid.UUID) (*connection.TokenRecord, error) {
	s.mu.RLock()
	refresher := s.refresher
	s.mu.RUnlock()
	if refresher == nil {
		return nil, errors.New("token refresher not configured")
	}

	record, err := s.tokens.FindByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: no token stored for tenant %s", shared.ErrUnauthorized, tenantID)
		}
		return nil, err
	}

	// another caller may have completed the refresh while we queued, and a
	// still-fresh stored record only counts when it was not invalidated
	s.mu.Lock()
	_, forced := s.invalidated[tenantID]
	s.mu.Unlock()
	if !forced && !record.IsExpired(s.config.ExpiryBuffer) {
		s.store(tenantID, record)
		return record, nil
	}

	conn, err := s.connections.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection for token refresh: %w", err)
	}

	resp, err := refresher.RefreshToken(ctx, conn.ClientID, conn.ClientSecret, record.RefreshToken)
	if err != nil {
		if errors.Is(err, bling.ErrUnauthorized) {
			s.markConnectionError(ctx, conn, err)
			return nil, fmt.Errorf("%w: token refresh rejected for tenant %s", shared.ErrUnauthorized, tenantID)
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	record.Rotate(resp.AccessToken, resp.RefreshToken, time.Duration(resp.ExpiresIn)*time.Second)
	if err := s.tokens.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	s.mu.Lock()
	delete(s.invalidated, tenantID)
	s.mu.Unlock()
	s.store(tenantID, record)

	s.logger.Info("token refreshed",
		zap.String("tenant_id", tenantID.String()),
		zap.Time("expires_at", record.ExpiresAt),
	)
	return record, nil
}

func (s *Service) store(tenantID uuid.UUID, record *connection.TokenRecord) {
	s.mu.Lock()
	s.cache[tenantID] = &cacheEntry{record: record, cachedAt: time.Now()}
	s.mu.Unlock()
}

// markConnectionError flags a connection whose refresh token was rejected so
// operators can re-authorize it
func (s *Service) markConnectionError(ctx context.Context, conn *connection.TenantConnection, cause error) {
	conn.MarkError()
	if err := s.connections.Update(ctx, conn); err != nil {
		s.logger.Error("failed to flag connection after refresh rejection",
			zap.String("tenant_id", conn.TenantID.String()),
			zap.Error(err),
		)
	}
	s.logger.Warn("connection flagged, refresh token rejected",
		zap.String("tenant_id", conn.TenantID.String()),
		zap.Error(cause),
	)
}

// Start launches the background sweep that proactively refreshes tokens
// nearing expiry and evicts stale cache entries
func (s *Service) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop terminates the background sweep
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Service) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep refreshes tokens of active connections that are near expiry, so
// request paths rarely pay the refresh latency
func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepInterval)
	defer cancel()

	s.evictStale()

	active, err := s.connections.FindActive(ctx)
	if err != nil {
		s.logger.Error("token sweep failed to list connections", zap.Error(err))
		return
	}

	for _, conn := range active {
		record, err := s.tokens.FindByTenantID(ctx, conn.TenantID)
		if err != nil {
			continue
		}
		if !record.IsExpired(s.config.ExpiryBuffer) {
			continue
		}
		if _, err := s.refresh(ctx, conn.TenantID); err != nil {
			s.logger.Warn("proactive token refresh failed",
				zap.String("tenant_id", conn.TenantID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) evictStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, entry := range s.cache {
		if time.Since(entry.cachedAt) > s.config.CacheTTL {
			delete(s.cache, tenantID)
		}
	}
}
