package weather

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/albapepper/morningcast/internal/cache"
)

// CachedGeocoder memoizes successful geocoding results in a cache.Store.
// Misses and errors are never cached. Cache failures degrade to a direct
// lookup.
type CachedGeocoder struct {
	next   Geocoder
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGeocoder wraps next with a cache.
func NewCachedGeocoder(next Geocoder, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = cache.TTLGeocode
	}
	return &CachedGeocoder{next: next, store: store, ttl: ttl, logger: logger}
}

// GeocodeKey is the cache key for a location string.
func GeocodeKey(location string) string {
	return "geo:" + strings.ToLower(strings.TrimSpace(location))
}

// Geocode returns the cached coordinate or resolves and caches it.
func (g *CachedGeocoder) Geocode(ctx context.Context, location string) (Coordinate, error) {
	key := GeocodeKey(location)

	data, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Warn("Geocode cache read failed", "key", key, "error", err)
	}
	if ok {
		var c Coordinate
		if err := json.Unmarshal(data, &c); err == nil {
			return c, nil
		}
		g.logger.Warn("Geocode cache entry corrupt", "key", key)
	}

	c, err := g.next.Geocode(ctx, location)
	if err != nil {
		return Coordinate{}, err
	}

	if data, err := json.Marshal(c); err == nil {
		if err := g.store.Set(ctx, key, data, g.ttl); err != nil {
			g.logger.Warn("Geocode cache write failed", "key", key, "error", err)
		}
	}
	return c, nil
}
