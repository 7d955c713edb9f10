package prices

import (
	"strings"
	"sync"
	"time"

	"github.com/permitpay/permitpay-go/internal/constants"
)

// cachedPrice is one cache entry with its observation time.
type cachedPrice struct {
	Price      float64
	ObservedAt time.Time
}

// Cache is a process-wide price cache keyed by lowercase asset id (contract
// address or native symbol). Entries past the TTL are treated as absent and
// silently overwritten by the next successful fetch; they are never deleted.
// Writes are last-writer-wins; a stale overwrite only affects hit/miss timing.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cachedPrice
	ttl     time.Duration
}

// NewCache creates a cache with the standard TTL.
func NewCache() *Cache {
	return NewCacheWithTTL(constants.PriceCacheTTL)
}

// NewCacheWithTTL creates a cache with a custom TTL.
func NewCacheWithTTL(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cachedPrice),
		ttl:     ttl,
	}
}

// Get returns the cached price for an asset id if present and fresh.
func (c *Cache) Get(assetID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[normalizeAssetID(assetID)]
	if !ok {
		return 0, false
	}
	if time.Since(entry.ObservedAt) >= c.ttl {
		return 0, false
	}
	return entry.Price, true
}

// Set stores a price observed now, overwriting any prior entry.
func (c *Cache) Set(assetID string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[normalizeAssetID(assetID)] = cachedPrice{
		Price:      price,
		ObservedAt: time.Now(),
	}
}

// Len returns the number of entries, fresh or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func normalizeAssetID(assetID string) string {
	return strings.ToLower(assetID)
}
