package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg CacheConfig, loader ReferenceLoader) *ValidationCache {
	t.Helper()
	cache := NewValidationCache(cfg, loader)
	t.Cleanup(cache.Close)
	return cache
}

func staticLoader(refs []Reference) ReferenceLoader {
	return func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		return refs, nil
	}
}

func TestCacheHitAvoidsLoader(t *testing.T) {
	calls := 0
	ref := Reference{ID: uuid.New(), Name: "Widget", Code: "W-1"}
	cache := newTestCache(t, CacheConfig{}, func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		calls++
		return []Reference{ref}, nil
	})

	tenant := uuid.New()
	lookup, err := cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
	require.NoError(t, err)

	got, ok := lookup.Lookup("widget")
	require.True(t, ok, "lookup should match case-insensitive name")
	assert.Equal(t, ref.ID, got.ID)

	_, ok = lookup.Lookup("W-1")
	assert.True(t, ok, "lookup should match code")
	_, ok = lookup.Lookup("id:" + ref.ID.String())
	assert.True(t, ok, "lookup should match id key")

	_, err = cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second Get must be served from cache")
}

func TestCacheExpiredEntryNeverReturned(t *testing.T) {
	calls := 0
	cache := newTestCache(t, CacheConfig{TTL: 10 * time.Millisecond}, func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		calls++
		return []Reference{{ID: uuid.New(), Name: fmt.Sprintf("ref-%d", calls)}}, nil
	})

	tenant := uuid.New()
	first, err := cache.Get(context.Background(), tenant, domain.EntityTypeSupplier)
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	second, err := cache.Get(context.Background(), tenant, domain.EntityTypeSupplier)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired entry must trigger a reload")

	_, stale := second.Lookup("ref-1")
	assert.False(t, stale, "expired data must not leak into the fresh map")
	_, fresh := second.Lookup("ref-2")
	assert.True(t, fresh)
	_ = first
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	calls := 0
	cache := newTestCache(t, CacheConfig{}, func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		calls++
		return nil, nil
	})

	tenant := uuid.New()
	_, err := cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), tenant, domain.EntityTypeSupplier)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	cache.Invalidate(tenant, domain.EntityTypeProduct)
	_, err = cache.Get(context.Background(), tenant, domain.EntityTypeSupplier)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "invalidating products must not drop suppliers")

	_, err = cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "invalidated kind must reload")
}

func TestCacheInvalidateAllKindsForTenant(t *testing.T) {
	calls := 0
	cache := newTestCache(t, CacheConfig{}, func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		calls++
		return nil, nil
	})

	tenantA := uuid.New()
	tenantB := uuid.New()
	for _, tenant := range []uuid.UUID{tenantA, tenantB} {
		_, err := cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)

	cache.Invalidate(tenantA)

	_, err := cache.Get(context.Background(), tenantB, domain.EntityTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "other tenants must keep their entries")

	_, err = cache.Get(context.Background(), tenantA, domain.EntityTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCacheEvictsLeastUsedOnEntryOverflow(t *testing.T) {
	cache := newTestCache(t, CacheConfig{MaxEntries: 10}, staticLoader(nil))

	tenants := make([]uuid.UUID, 11)
	for i := range tenants {
		tenants[i] = uuid.New()
	}

	for _, tenant := range tenants[:10] {
		_, err := cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
		require.NoError(t, err)
	}
	// Touch every entry except the first so tenants[0] is the least used.
	for _, tenant := range tenants[1:10] {
		_, err := cache.Get(context.Background(), tenant, domain.EntityTypeProduct)
		require.NoError(t, err)
	}

	_, err := cache.Get(context.Background(), tenants[10], domain.EntityTypeProduct)
	require.NoError(t, err)

	health := cache.Health()
	assert.Equal(t, 10, health.Entries, "overflow must evict exactly one entry")

	misses := health.Misses
	_, err = cache.Get(context.Background(), tenants[0], domain.EntityTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, misses+1, cache.Health().Misses, "the least-used entry must be the one evicted")
}

func TestCacheLoaderErrorPropagates(t *testing.T) {
	boom := errors.New("database offline")
	cache := newTestCache(t, CacheConfig{}, func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		return nil, boom
	})

	_, err := cache.Get(context.Background(), uuid.New(), domain.EntityTypeProduct)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCacheHealthTransitions(t *testing.T) {
	cache := newTestCache(t, CacheConfig{MaxEntries: 10}, staticLoader(nil))
	assert.Equal(t, CacheHealthOK, cache.Health().Status)

	for i := 0; i < 9; i++ {
		_, err := cache.Get(context.Background(), uuid.New(), domain.EntityTypeProduct)
		require.NoError(t, err)
	}
	assert.Equal(t, CacheHealthWarning, cache.Health().Status, "above 80 percent of capacity should warn")
}
