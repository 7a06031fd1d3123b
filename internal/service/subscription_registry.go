package service

import (
	"sort"
	"sync"

	"market_stream/internal/domain"
)

// SubscriptionRegistry is the canonical set of symbols the consumer wants streamed.
// It is independent of connection state and never cleared by reconnection.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// NewSubscriptionRegistry creates an empty registry
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		symbols: make(map[string]struct{}),
	}
}

// Add merges symbols into the set and returns the ones that were not already present, sorted.
func (r *SubscriptionRegistry) Add(symbols []string) []string {
	normalized := domain.NormalizeSymbols(symbols)

	r.mu.Lock()
	defer r.mu.Unlock()

	added := make([]string, 0, len(normalized))
	for _, s := range normalized {
		if _, ok := r.symbols[s]; ok {
			continue
		}
		r.symbols[s] = struct{}{}
		added = append(added, s)
	}
	return added
}

// Remove drops symbols from the set and returns the ones that were present.
// Absent symbols are not an error.
func (r *SubscriptionRegistry) Remove(symbols []string) []string {
	normalized := domain.NormalizeSymbols(symbols)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]string, 0, len(normalized))
	for _, s := range normalized {
		if _, ok := r.symbols[s]; !ok {
			continue
		}
		delete(r.symbols, s)
		removed = append(removed, s)
	}
	return removed
}

// Contains reports whether a symbol is currently wanted
func (r *SubscriptionRegistry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.symbols[domain.NormalizeSymbol(symbol)]
	return ok
}

// Snapshot returns the full set, sorted, for (re)transmission
func (r *SubscriptionRegistry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of wanted symbols
func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}
