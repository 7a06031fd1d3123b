package service

import (
	"testing"
	"time"

	"market_stream/internal/domain"

	"github.com/shopspring/decimal"
)

func record(symbol string, price int64) domain.PriceRecord {
	return domain.PriceRecord{
		Symbol:    symbol,
		Price:     decimal.NewFromInt(price),
		Volume:    decimal.NewFromInt(1000),
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestPriceCache_UpsertAndGet(t *testing.T) {
	c := NewPriceCache()

	c.Upsert(record("aapl", 150))

	rec, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("AAPL should be cached")
	}
	if rec.Symbol != "AAPL" {
		t.Errorf("Expected normalized symbol AAPL, got %s", rec.Symbol)
	}
	if !rec.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected 150, got %v", rec.Price)
	}

	if _, ok := c.Get("aapl"); !ok {
		t.Error("Lookup should be case-insensitive")
	}
}

func TestPriceCache_LastWriteWins(t *testing.T) {
	c := NewPriceCache()

	c.Upsert(record("NVDA", 400))
	c.Upsert(record("NVDA", 410))
	c.Upsert(record("NVDA", 405))

	rec, _ := c.Get("NVDA")
	if !rec.Price.Equal(decimal.NewFromInt(405)) {
		t.Errorf("Expected last write 405, got %v", rec.Price)
	}
}

func TestPriceCache_IdempotentUpsert(t *testing.T) {
	c := NewPriceCache()
	r := record("MSFT", 300)

	for i := 0; i < 5; i++ {
		c.Upsert(r)
	}

	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
	got, _ := c.Get("MSFT")
	if !got.Equal(r) {
		t.Errorf("Expected %+v, got %+v", r, got)
	}
}

func TestPriceCache_Evict(t *testing.T) {
	c := NewPriceCache()
	c.Upsert(record("AAPL", 150))
	c.Upsert(record("TSLA", 200))

	c.Evict([]string{"aapl", "NEVER_CACHED"})

	if _, ok := c.Get("AAPL"); ok {
		t.Error("AAPL should be evicted")
	}
	if _, ok := c.Get("TSLA"); !ok {
		t.Error("TSLA should remain")
	}
}

func TestPriceCache_All_Sorted(t *testing.T) {
	c := NewPriceCache()

	// Add in unsorted order
	c.Upsert(record("XOM", 100))
	c.Upsert(record("AAPL", 150))
	c.Upsert(record("MSFT", 300))

	all := c.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(all))
	}

	if all[0].Symbol != "AAPL" || all[1].Symbol != "MSFT" || all[2].Symbol != "XOM" {
		t.Errorf("Not sorted: %s, %s, %s", all[0].Symbol, all[1].Symbol, all[2].Symbol)
	}
}

func TestPriceCache_IgnoresEmptySymbol(t *testing.T) {
	c := NewPriceCache()
	c.Upsert(record("  ", 1))

	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", c.Len())
	}
}
