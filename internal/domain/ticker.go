package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is the last known value for a symbol. No history is retained.
type PriceRecord struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	Timestamp  time.Time       `json:"timestamp"`   // Feed timestamp
	ReceivedAt time.Time       `json:"received_at"` // Local time the frame was routed
}

// Equal reports whether two records carry the same feed values.
// ReceivedAt is ignored.
func (r PriceRecord) Equal(o PriceRecord) bool {
	return r.Symbol == o.Symbol &&
		r.Price.Equal(o.Price) &&
		r.Volume.Equal(o.Volume) &&
		r.Timestamp.Equal(o.Timestamp)
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols normalizes every symbol, dropping empties and duplicates.
// The result is sorted so it can be sent over the wire deterministically.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
