package feedsim

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var (
	defaultStartPrice = decimal.NewFromInt(100)
	minPrice          = decimal.RequireFromString("0.01")
	maxStepBps        = 50 // 0.5%
)

// Walker publishes random-walk prices for every symbol any client subscribed to
type Walker struct {
	server   *Server
	interval time.Duration
	rng      *rand.Rand
	prices   map[string]decimal.Decimal
	volumes  map[string]int64
}

// NewWalker creates a walker. seed makes runs reproducible.
func NewWalker(server *Server, interval time.Duration, seed uint64) *Walker {
	return &Walker{
		server:   server,
		interval: interval,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices:   make(map[string]decimal.Decimal),
		volumes:  make(map[string]int64),
	}
}

// Run ticks until ctx is cancelled
func (w *Walker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sent := w.Tick(now)
			if sent > 0 {
				slog.Debug("prices published", slog.Int("frames", sent))
			}
		}
	}
}

// Tick advances every subscribed symbol one step and publishes it
func (w *Walker) Tick(now time.Time) int {
	sent := 0
	for _, sym := range w.server.Subscribed() {
		price := w.step(sym)
		w.volumes[sym] += int64(w.rng.IntN(1000) + 1)
		sent += w.server.PublishPrice(sym, price, decimal.NewFromInt(w.volumes[sym]), now)
	}
	return sent
}

func (w *Walker) step(symbol string) decimal.Decimal {
	price, ok := w.prices[symbol]
	if !ok {
		price = defaultStartPrice
	}

	bps := int64(w.rng.IntN(2*maxStepBps+1) - maxStepBps)
	delta := price.Mul(decimal.New(bps, -4))
	price = price.Add(delta).Round(2)
	if price.LessThan(minPrice) {
		price = minPrice
	}

	w.prices[symbol] = price
	return price
}
