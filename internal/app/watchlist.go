package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_stream/internal/domain"

	"golang.org/x/sync/errgroup"
)

const validateConcurrency = 5

// Subscriber is the part of the stream client the watchlist drives
type Subscriber interface {
	Subscribe(symbols ...string)
	Unsubscribe(symbols ...string)
}

// WatchlistStore persists watched symbols
type WatchlistStore interface {
	AddSymbols(symbols []string) ([]string, error)
	RemoveSymbols(symbols []string) error
	ListSymbols() ([]string, error)
	SaveConfig(key, value string) error
}

// Watchlist keeps the local store, the remote watchlist and the stream
// subscriptions in step. validator and source may be nil.
type Watchlist struct {
	store     WatchlistStore
	validator domain.QuoteValidator
	source    domain.WatchlistSource
	client    Subscriber
	logger    *slog.Logger
}

// NewWatchlist creates a watchlist service
func NewWatchlist(store WatchlistStore, validator domain.QuoteValidator, source domain.WatchlistSource, client Subscriber, logger *slog.Logger) *Watchlist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchlist{
		store:     store,
		validator: validator,
		source:    source,
		client:    client,
		logger:    logger.With(slog.String("module", "watchlist")),
	}
}

// Add validates, stores and subscribes symbols. Symbols that fail validation
// are skipped and reported in the joined error (ErrInvalidSymbol per symbol);
// the rest are still added. It returns the symbols subscribed.
func (w *Watchlist) Add(ctx context.Context, symbols ...string) ([]string, error) {
	symbols = domain.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return symbols, nil
	}

	stored, err := w.store.ListSymbols()
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		known[s] = struct{}{}
	}

	// Only symbols not already watched go through validation
	var existing, fresh []string
	for _, s := range symbols {
		if _, ok := known[s]; ok {
			existing = append(existing, s)
		} else {
			fresh = append(fresh, s)
		}
	}

	validated, errs := w.validate(ctx, fresh)
	valid := domain.NormalizeSymbols(append(existing, validated...))
	if len(valid) > 0 {
		added, err := w.store.AddSymbols(valid)
		if err != nil {
			return nil, fmt.Errorf("store symbols: %w", err)
		}
		w.client.Subscribe(valid...)
		w.logger.Info("symbols added", slog.Any("symbols", valid), slog.Int("new", len(added)))
	}

	return valid, errors.Join(errs...)
}

func (w *Watchlist) validate(ctx context.Context, symbols []string) ([]string, []error) {
	if w.validator == nil || len(symbols) == 0 {
		return symbols, nil
	}

	ok := make([]bool, len(symbols))
	errs := make([]error, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			valid, err := w.validator.Validate(gctx, sym)
			switch {
			case err != nil:
				errs[i] = fmt.Errorf("validate %s: %w", sym, err)
			case !valid:
				errs[i] = fmt.Errorf("%s: %w", sym, domain.ErrInvalidSymbol)
			default:
				ok[i] = true
			}
			return nil // One bad symbol must not cancel the others
		})
	}
	g.Wait()

	valid := make([]string, 0, len(symbols))
	for i, sym := range symbols {
		if ok[i] {
			valid = append(valid, sym)
		}
	}
	return valid, errs
}

// Remove deletes symbols from the store, then unsubscribes them
func (w *Watchlist) Remove(ctx context.Context, symbols ...string) error {
	symbols = domain.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil
	}
	if err := w.store.RemoveSymbols(symbols); err != nil {
		return fmt.Errorf("remove symbols: %w", err)
	}
	w.client.Unsubscribe(symbols...)
	w.logger.Info("symbols removed", slog.Any("symbols", symbols))
	return nil
}

// Sync merges the remote watchlist into the store and subscribes the union.
// A remote failure still subscribes what is stored locally.
func (w *Watchlist) Sync(ctx context.Context) ([]string, error) {
	var remoteErr error
	if w.source != nil {
		remote, err := w.source.Symbols(ctx)
		if err != nil {
			remoteErr = fmt.Errorf("remote watchlist: %w", err)
			w.logger.Warn("remote watchlist unavailable, using local", slog.Any("error", err))
		} else if _, err := w.store.AddSymbols(remote); err != nil {
			return nil, fmt.Errorf("store remote symbols: %w", err)
		}
	}

	symbols, err := w.store.ListSymbols()
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	if len(symbols) > 0 {
		w.client.Subscribe(symbols...)
	}

	if remoteErr == nil && w.source != nil {
		if err := w.store.SaveConfig("watchlist.last_sync", time.Now().UTC().Format(time.RFC3339)); err != nil {
			w.logger.Warn("failed to record sync time", slog.Any("error", err))
		}
	}

	w.logger.Info("watchlist synced", slog.Int("symbols", len(symbols)))
	return symbols, remoteErr
}

// RunSync syncs now and then every interval until ctx is cancelled.
// A non-positive interval syncs once.
func (w *Watchlist) RunSync(ctx context.Context, interval time.Duration) error {
	w.Sync(ctx)
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sync(ctx)
		}
	}
}
