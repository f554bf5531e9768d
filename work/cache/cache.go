package cache

import (
	"time"

	"github.com/maypok86/otter/v2"

	"streamhub/work/types"
)

// Cache provides thread-safe, TTL-bounded caching for provider search
// responses and fully aggregated search payloads. Both stores expire by
// write time so a noisy provider can't pin stale listings past the
// configured duration.
type Cache struct {
	provider  *otter.Cache[string, []types.SearchResult]  // per-provider raw results, keyed by "<site key>:<query>"
	aggregate *otter.Cache[string, []types.AggregateGroup] // grouped payloads, keyed by query
	enabled   bool
}

// New creates a Cache with the given entry TTL. A disabled cache is still
// safe to call; every lookup simply misses.
func New(duration time.Duration, enabled bool) *Cache {
	return &Cache{
		provider: otter.Must(&otter.Options[string, []types.SearchResult]{
			MaximumSize:      4096,
			ExpiryCalculator: otter.ExpiryWriting[string, []types.SearchResult](duration),
		}),
		aggregate: otter.Must(&otter.Options[string, []types.AggregateGroup]{
			MaximumSize:      1024,
			ExpiryCalculator: otter.ExpiryWriting[string, []types.AggregateGroup](duration),
		}),
		enabled: enabled,
	}
}

// GetProvider returns the cached raw results for one provider+query pair.
func (c *Cache) GetProvider(key string) ([]types.SearchResult, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.provider.GetIfPresent(key)
}

// SetProvider stores the raw results for one provider+query pair.
func (c *Cache) SetProvider(key string, results []types.SearchResult) {
	if !c.enabled {
		return
	}
	c.provider.Set(key, results)
}

// GetAggregate returns a cached grouped payload for a query.
func (c *Cache) GetAggregate(query string) ([]types.AggregateGroup, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.aggregate.GetIfPresent(query)
}

// SetAggregate stores a grouped payload for a query.
func (c *Cache) SetAggregate(query string, groups []types.AggregateGroup) {
	if !c.enabled {
		return
	}
	c.aggregate.Set(query, groups)
}

// Clear drops every cached entry, used after configuration reloads so
// disabled providers stop surfacing through stale payloads.
func (c *Cache) Clear() {
	c.provider.InvalidateAll()
	c.aggregate.InvalidateAll()
}
