package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/pricing"
)

// PriceCache is a bounded in-memory TTL cache for product price lookups.
// It serves reads during sync sweeps; writers invalidate on update so the
// cache never outlives the row it mirrors beyond its TTL.
type PriceCache struct {
	mu         sync.RWMutex
	entries    map[string]priceEntry
	ttl        time.Duration
	maxEntries int
}

type priceEntry struct {
	price     *pricing.ProductPrice
	expiresAt time.Time
}

// NewPriceCache creates a price cache with the given TTL and capacity
func NewPriceCache(ttl time.Duration, maxEntries int) *PriceCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &PriceCache{
		entries:    make(map[string]priceEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func cacheKey(tenantID uuid.UUID, productID string) string {
	return tenantID.String() + ":" + productID
}

// Get returns the cached price for a product, or nil on miss or expiry
func (c *PriceCache) Get(tenantID uuid.UUID, productID string) *pricing.ProductPrice {
	c.mu.RLock()
	e, ok := c.entries[cacheKey(tenantID, productID)]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil
	}
	return e.price
}

// Set stores the price for a product. When the cache is full, expired
// entries are dropped first; if still full the write is skipped rather
// than growing without bound.
func (c *PriceCache) Set(tenantID uuid.UUID, productID string, price *pricing.ProductPrice) {
	key := cacheKey(tenantID, productID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxEntries {
			return
		}
	}
	c.entries[key] = priceEntry{price: price, expiresAt: time.Now().Add(c.ttl)}
}

// Invalidate drops the cached price for a product
func (c *PriceCache) Invalidate(tenantID uuid.UUID, productID string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(tenantID, productID))
	c.mu.Unlock()
}

// InvalidateTenant drops every cached price for a tenant
func (c *PriceCache) InvalidateTenant(tenantID uuid.UUID) {
	prefix := tenantID.String() + ":"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *PriceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PriceCache) evictExpiredLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
