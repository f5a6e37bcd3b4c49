package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/stockflow/internal/domain"

	"github.com/google/uuid"
)

// Reference is one row of reference data the validator resolves names and
// codes against.
type Reference struct {
	ID   uuid.UUID
	Name string
	Code string
}

// LookupMap indexes references by several keys: lowercased name, external
// code, and "id:<uuid>".
type LookupMap map[string]Reference

// Lookup resolves a human-entered identifier against all index keys.
func (m LookupMap) Lookup(value string) (Reference, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Reference{}, false
	}
	if ref, ok := m[strings.ToLower(value)]; ok {
		return ref, true
	}
	if ref, ok := m[value]; ok {
		return ref, true
	}
	ref, ok := m["id:"+value]
	return ref, ok
}

// BuildLookupMap indexes a reference slice under every addressable key.
func BuildLookupMap(refs []Reference) LookupMap {
	lookup := make(LookupMap, len(refs)*3)
	for _, ref := range refs {
		if name := strings.ToLower(strings.TrimSpace(ref.Name)); name != "" {
			lookup[name] = ref
		}
		if code := strings.TrimSpace(ref.Code); code != "" {
			lookup[code] = ref
		}
		lookup["id:"+ref.ID.String()] = ref
	}
	return lookup
}

// ReferenceLoader fetches reference data from the persistence collaborator on
// a cache miss. Errors propagate to the caller: an empty map would turn an
// outage into false "not found" validation errors.
type ReferenceLoader func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error)

// CacheConfig tunes the validation cache.
type CacheConfig struct {
	TTL           time.Duration
	MaxEntries    int
	MaxBytes      int64
	SweepInterval time.Duration
}

// DefaultCacheConfig returns the production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:           5 * time.Minute,
		MaxEntries:    100,
		MaxBytes:      64 << 20,
		SweepInterval: time.Minute,
	}
}

type cacheEntry struct {
	lookup      LookupMap
	createdAt   time.Time
	ttl         time.Duration
	size        int64
	accessCount int64
	lastAccess  time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// CacheHealthStatus grades cache pressure for the backpressure check.
type CacheHealthStatus string

const (
	CacheHealthOK       CacheHealthStatus = "ok"
	CacheHealthWarning  CacheHealthStatus = "warning"
	CacheHealthCritical CacheHealthStatus = "critical"
)

// CacheHealth is a diagnostics snapshot.
type CacheHealth struct {
	Entries     int               `json:"entries"`
	MemoryBytes int64             `json:"memory_bytes"`
	Hits        int64             `json:"hits"`
	Misses      int64             `json:"misses"`
	HitRate     float64           `json:"hit_rate"`
	Status      CacheHealthStatus `json:"status"`
}

// ValidationCache holds per-tenant reference data snapshots with TTL and a
// least-frequently/least-recently-used eviction policy. Safe for concurrent
// use; a single mutex guards the map since eviction and population can race.
type ValidationCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	cfg     CacheConfig
	loader  ReferenceLoader

	hits   int64
	misses int64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewValidationCache creates a cache over the given loader and starts the
// periodic TTL sweep.
func NewValidationCache(cfg CacheConfig, loader ReferenceLoader) *ValidationCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultCacheConfig().MaxBytes
	}

	cache := &ValidationCache{
		entries: make(map[string]*cacheEntry),
		cfg:     cfg,
		loader:  loader,
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go cache.sweepLoop()
	}
	return cache
}

// Close stops the background sweep.
func (c *ValidationCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func cacheKey(tenantID uuid.UUID, kind domain.EntityType) string {
	return fmt.Sprintf("%s:%s", kind, tenantID)
}

// Get returns the lookup map for a tenant and entity kind, populating it from
// the loader on a miss or after expiry.
func (c *ValidationCache) Get(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) (LookupMap, error) {
	key := cacheKey(tenantID, kind)
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !entry.expired(now) {
		entry.accessCount++
		entry.lastAccess = now
		c.hits++
		lookup := entry.lookup
		c.mu.Unlock()
		return lookup, nil
	}
	if ok {
		// Expired entries are never returned, even before the sweep runs.
		delete(c.entries, key)
	}
	c.misses++
	c.mu.Unlock()

	refs, err := c.loader(ctx, tenantID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s references: %w", kind, err)
	}
	lookup := BuildLookupMap(refs)

	c.mu.Lock()
	// The populating miss counts as an access so a brand-new entry is not
	// the immediate eviction victim.
	c.entries[key] = &cacheEntry{
		lookup:      lookup,
		createdAt:   now,
		ttl:         c.cfg.TTL,
		size:        approximateSize(lookup),
		accessCount: 1,
		lastAccess:  now,
	}
	c.evictIfNeededLocked()
	c.mu.Unlock()

	return lookup, nil
}

// Invalidate removes cached kinds for a tenant. With no kinds, every kind for
// the tenant is dropped. Called after a batch creates new reference records
// so subsequent lookups see them.
func (c *ValidationCache) Invalidate(tenantID uuid.UUID, kinds ...domain.EntityType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(kinds) == 0 {
		suffix := ":" + tenantID.String()
		for key := range c.entries {
			if strings.HasSuffix(key, suffix) {
				delete(c.entries, key)
			}
		}
		return
	}
	for _, kind := range kinds {
		delete(c.entries, cacheKey(tenantID, kind))
	}
}

// Optimize sweeps expired entries and enforces the size ceilings. Invoked by
// the batch processor's backpressure check.
func (c *ValidationCache) Optimize() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	c.evictIfNeededLocked()
}

// Health reports cache pressure and hit rate.
func (c *ValidationCache) Health() CacheHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	var memory int64
	for _, entry := range c.entries {
		memory += entry.size
	}

	health := CacheHealth{
		Entries:     len(c.entries),
		MemoryBytes: memory,
		Hits:        c.hits,
		Misses:      c.misses,
		Status:      CacheHealthOK,
	}
	if total := c.hits + c.misses; total > 0 {
		health.HitRate = float64(c.hits) / float64(total)
	}

	switch {
	case memory > c.cfg.MaxBytes || len(c.entries) > c.cfg.MaxEntries:
		health.Status = CacheHealthCritical
	case memory > c.cfg.MaxBytes*8/10 || len(c.entries) > c.cfg.MaxEntries*8/10:
		health.Status = CacheHealthWarning
	case c.hits+c.misses >= 20 && health.HitRate < 0.5:
		health.Status = CacheHealthWarning
	}
	return health
}

func (c *ValidationCache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			c.sweepLocked(now)
			c.mu.Unlock()
		}
	}
}

func (c *ValidationCache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
}

// evictIfNeededLocked enforces the configured ceilings. Entry-count pressure
// evicts exactly the overage; memory pressure evicts the 20% least-used
// entries. Primary sort key is access count ascending; insertion time
// ascending breaks ties.
func (c *ValidationCache) evictIfNeededLocked() {
	var memory int64
	for _, entry := range c.entries {
		memory += entry.size
	}

	evict := 0
	if over := len(c.entries) - c.cfg.MaxEntries; over > 0 {
		evict = over
	}
	if memory > c.cfg.MaxBytes {
		if twenty := (len(c.entries) + 4) / 5; twenty > evict {
			evict = twenty
		}
	}
	if evict == 0 {
		return
	}

	type candidate struct {
		key   string
		entry *cacheEntry
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, entry := range c.entries {
		candidates = append(candidates, candidate{key: key, entry: entry})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].entry.accessCount != candidates[j].entry.accessCount {
			return candidates[i].entry.accessCount < candidates[j].entry.accessCount
		}
		return candidates[i].entry.createdAt.Before(candidates[j].entry.createdAt)
	})

	for i := 0; i < evict && i < len(candidates); i++ {
		delete(c.entries, candidates[i].key)
	}
}

// approximateSize estimates the in-memory footprint of a lookup map. Keys and
// string fields dominate; the struct overhead is a flat guess per entry.
func approximateSize(lookup LookupMap) int64 {
	var size int64
	for key, ref := range lookup {
		size += int64(len(key) + len(ref.Name) + len(ref.Code) + 64)
	}
	return size
}
