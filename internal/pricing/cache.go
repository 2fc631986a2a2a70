// Package pricing derives booking totals and caches per-night calendar
// prices fetched in monthly batches.
package pricing

import (
	"math"
	"sync"

	"karibu/internal/rentalapi"
)

// Cache accumulates per-date nightly prices keyed by YYYY-MM-DD. It is owned
// by a single booking session and never evicts; overlapping merges are
// last-write-wins per date.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]int64
}

// NewCache creates an empty price cache.
func NewCache() *Cache {
	return &Cache{prices: make(map[string]int64)}
}

// Merge ingests a batch of daily prices, discarding entries without a usable
// price. Prices are rounded to whole currency units. Returns the number of
// entries merged.
func (c *Cache) Merge(entries []rentalapi.DailyPrice) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := 0
	for _, e := range entries {
		if e.Date == "" || e.Price == nil || math.IsNaN(*e.Price) {
			continue
		}
		c.prices[e.Date] = int64(math.Round(*e.Price))
		merged++
	}
	return merged
}

// Lookup returns the cached nightly price for a YYYY-MM-DD date.
func (c *Cache) Lookup(date string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[date]
	return price, ok
}

// Len returns the number of distinct dates cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Snapshot returns a copy of the cached prices for rendering.
func (c *Cache) Snapshot() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.prices))
	for d, p := range c.prices {
		out[d] = p
	}
	return out
}
