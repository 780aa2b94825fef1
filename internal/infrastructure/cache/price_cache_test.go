package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingsync/backend/internal/domain/pricing"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "delivery-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "delivery-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	processed, err := store.IsProcessed(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_ExpiredEntryReusable(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "delivery-1", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	again, err := store.MarkProcessed(ctx, "delivery-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestPriceCache_GetSetInvalidate(t *testing.T) {
	c := NewPriceCache(time.Minute, 100)
	tenantID := uuid.New()
	price := pricing.NewProductPrice(tenantID, "p1", "c1", decimal.NewFromInt(100), decimal.NewFromInt(100), "BRL")

	assert.Nil(t, c.Get(tenantID, "p1"))

	c.Set(tenantID, "p1", price)
	got := c.Get(tenantID, "p1")
	require.NotNil(t, got)
	assert.Equal(t, "100", got.Price.String())

	c.Invalidate(tenantID, "p1")
	assert.Nil(t, c.Get(tenantID, "p1"))
}

func TestPriceCache_TTLExpiry(t *testing.T) {
	c := NewPriceCache(time.Nanosecond, 100)
	tenantID := uuid.New()
	price := pricing.NewProductPrice(tenantID, "p1", "c1", decimal.NewFromInt(100), decimal.NewFromInt(100), "BRL")

	c.Set(tenantID, "p1", price)
	time.Sleep(10 * time.Millisecond)
	assert.Nil(t, c.Get(tenantID, "p1"))
}

func TestPriceCache_InvalidateTenant(t *testing.T) {
	c := NewPriceCache(time.Minute, 100)
	tenantA := uuid.New()
	tenantB := uuid.New()
	priceA := pricing.NewProductPrice(tenantA, "p1", "c1", decimal.NewFromInt(10), decimal.NewFromInt(10), "BRL")
	priceB := pricing.NewProductPrice(tenantB, "p1", "c1", decimal.NewFromInt(20), decimal.NewFromInt(20), "BRL")

	c.Set(tenantA, "p1", priceA)
	c.Set(tenantB, "p1", priceB)

	c.InvalidateTenant(tenantA)
	assert.Nil(t, c.Get(tenantA, "p1"))
	require.NotNil(t, c.Get(tenantB, "p1"))
}

func TestPriceCache_BoundedCapacity(t *testing.T) {
	c := NewPriceCache(time.Minute, 2)
	tenantID := uuid.New()
	price := pricing.NewProductPrice(tenantID, "p1", "c1", decimal.NewFromInt(10), decimal.NewFromInt(10), "BRL")

	c.Set(tenantID, "p1", price)
	c.Set(tenantID, "p2", price)
	// cache is full and nothing has expired, so the write is dropped
	c.Set(tenantID, "p3", price)

	assert.Equal(t, 2, c.Size())
	assert.Nil(t, c.Get(tenantID, "p3"))
}
