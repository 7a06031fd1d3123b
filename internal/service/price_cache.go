package service

import (
	"sort"
	"sync"

	"market_stream/internal/domain"
)

// PriceCache holds the latest PriceRecord per symbol.
// Writes come from the client event loop; the lock exists for external reads (e.g. UI).
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]domain.PriceRecord
}

// NewPriceCache creates an empty cache
func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[string]domain.PriceRecord),
	}
}

// Upsert replaces any prior entry for the record's symbol. Last write wins.
func (c *PriceCache) Upsert(rec domain.PriceRecord) {
	rec.Symbol = domain.NormalizeSymbol(rec.Symbol)
	if rec.Symbol == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.prices[rec.Symbol] = rec
}

// Get returns the current record for a symbol
func (c *PriceCache) Get(symbol string) (domain.PriceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.prices[domain.NormalizeSymbol(symbol)]
	return rec, ok
}

// Evict removes entries for the given symbols. Absent symbols are ignored.
func (c *PriceCache) Evict(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range symbols {
		delete(c.prices, domain.NormalizeSymbol(s))
	}
}

// All returns every cached record sorted by symbol
func (c *PriceCache) All() []domain.PriceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.PriceRecord, 0, len(c.prices))
	for _, rec := range c.prices {
		result = append(result, rec)
	}

	// Sort by symbol for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// Len returns the number of cached symbols
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
