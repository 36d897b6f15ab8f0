package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AddressCache sits in front of an AddressResolver so repeated reports from
// the same spot (an overflowing bin reported all week) cost one lookup.
// Keys are coordinates rounded to 4 decimals, about 11 m.
type AddressCache struct {
	next       AddressResolver
	entries    map[string]*addressEntry
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	hits       int64
	misses     int64
}

type addressEntry struct {
	address      Address
	createdAt    time.Time
	lastAccessed time.Time
}

func NewAddressCache(next AddressResolver, maxEntries int, ttl time.Duration) *AddressCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &AddressCache{
		next:       next,
		entries:    make(map[string]*addressEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// ReverseGeocode serves from cache or asks the wrapped resolver. Failures are
// not cached.
func (c *AddressCache) ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error) {
	key := cacheKey(lat, lng)
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if now.Sub(entry.createdAt) <= c.ttl {
			entry.lastAccessed = now
			c.hits++
			addr := entry.address
			c.mu.Unlock()
			addr.Coordinates = Coordinates{Lat: lat, Lng: lng}
			return &addr, nil
		}
		delete(c.entries, key)
	}
	c.misses++
	c.mu.Unlock()

	addr, err := c.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &addressEntry{address: *addr, createdAt: now, lastAccessed: now}
	return addr, nil
}

// evictOldest removes the least recently used entry; callers hold mu.
func (c *AddressCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		log.Debug().Str("key", oldestKey).Msg("🗑️ Evicted address cache entry")
	}
}

// Stats returns hit and miss counts.
func (c *AddressCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
