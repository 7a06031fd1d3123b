package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market_stream/internal/domain"
)

// WatchlistClient fetches the user's remote watchlist
type WatchlistClient struct {
	rest *restClient
}

type watchlistResponse struct {
	Symbols []string `json:"symbols"`
}

// NewWatchlistClient creates a client for {base_url}/api/watchlist
func NewWatchlistClient(cfg *Config, logger *slog.Logger) *WatchlistClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.API.TimeoutSec) * time.Second
	return &WatchlistClient{
		rest: newRestClient(cfg.API.BaseURL, cfg.API.Token, timeout, logger.With(slog.String("module", "watchlist_client"))),
	}
}

// Symbols implements domain.WatchlistSource. Symbols come back normalized.
func (c *WatchlistClient) Symbols(ctx context.Context) ([]string, error) {
	var resp watchlistResponse
	if err := c.rest.getJSON(ctx, "/api/watchlist", &resp); err != nil {
		return nil, fmt.Errorf("fetch watchlist: %w", err)
	}
	return domain.NormalizeSymbols(resp.Symbols), nil
}

var _ domain.WatchlistSource = (*WatchlistClient)(nil)
