package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"market_stream/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// QuoteClient checks symbols against the quote endpoint
type QuoteClient struct {
	rest          *restClient
	group         singleflight.Group
	flightTimeout time.Duration // Bounds one shared validation including retries
	logger        *slog.Logger
}

// Quote is the quote endpoint payload
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// NewQuoteClient creates a client for {base_url}/api/quote/{SYMBOL}
func NewQuoteClient(cfg *Config, logger *slog.Logger) *QuoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("module", "quote_client"))
	timeout := time.Duration(cfg.API.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultAPITimeoutSec * time.Second
	}
	return &QuoteClient{
		rest:          newRestClient(cfg.API.BaseURL, cfg.API.Token, timeout, logger),
		flightTimeout: time.Duration(defaultRetries+1) * timeout,
		logger:        logger,
	}
}

// Quote fetches the current quote. A missing symbol is (nil, nil).
func (c *QuoteClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil
	}

	var q Quote
	err := c.rest.getJSON(ctx, "/api/quote/"+url.PathEscape(symbol), &q)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil // Unknown symbol is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	return &q, nil
}

// Validate implements domain.QuoteValidator. Concurrent checks of the same
// symbol share one request.
func (c *QuoteClient) Validate(ctx context.Context, symbol string) (bool, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, nil
	}

	// The shared request must outlive any single caller's cancellation
	ch := c.group.DoChan(symbol, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		q, err := c.Quote(fctx, symbol)
		if err != nil {
			return false, err
		}
		return q != nil && !q.Price.IsZero(), nil
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		valid := res.Val.(bool)
		c.logger.Debug("symbol validated", slog.String("symbol", symbol), slog.Bool("valid", valid), slog.Bool("shared", res.Shared))
		return valid, nil
	}
}

var _ domain.QuoteValidator = (*QuoteClient)(nil)
