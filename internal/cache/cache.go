// Package cache provides the TTL key/value store used for geocoding results.
// Two backends satisfy Store: an in-process map (single instance, default)
// and Redis (shared across instances when REDIS_URL is set).
package cache

import (
	"context"
	"sync"
	"time"
)

// TTLGeocode is the default lifetime of a cached location lookup.
const TTLGeocode = 7 * 24 * time.Hour

// Store is a byte-valued TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-memory TTL cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	enabled bool
	now     func() time.Time
}

// NewMemory creates an in-memory cache. Pass enabled=false for a no-op cache.
// Expired entries are dropped on read; Evict reclaims them in bulk.
func NewMemory(enabled bool) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		enabled: enabled,
		now:     time.Now,
	}
}

// Get retrieves a cached value.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, exists := c.entries[key]
	if !exists || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

// Set stores a value with a TTL.
func (c *Memory) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		data:      data,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Stats returns cache statistics.
func (c *Memory) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := 0
	now := c.now()
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			active++
		}
	}
	return map[string]interface{}{
		"backend":      "memory",
		"enabled":      c.enabled,
		"total_keys":   len(c.entries),
		"active_keys":  active,
		"expired_keys": len(c.entries) - active,
	}
}

// Evict removes expired entries and returns how many were dropped.
func (c *Memory) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}
