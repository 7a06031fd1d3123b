package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/engine"
	"market_stream/internal/infra"
	"market_stream/internal/infra/redis"
	"market_stream/internal/infra/storage"
	"market_stream/internal/infra/ws"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Metrics   *infra.Metrics
	Storage   *storage.Storage
	Client    *engine.Client
	Watchlist *Watchlist
	Mirror    *redis.Mirror // nil when redis is disabled or unreachable

	rdb *goredis.Client
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config and wires storage, collaborators and the stream client.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	slog.Info("🚀 Bootstrapping market stream...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Metrics = &infra.Metrics{}

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	if _, err := store.AddSymbols(cfg.Stream.Symbols); err != nil {
		return err
	}
	slog.Info("✅ Database initialized")

	// 4. Optional Redis mirror
	var listeners []engine.PriceListener
	if cfg.Redis.Enabled {
		rdb, err := redis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("Redis unavailable, price mirror disabled", slog.Any("error", err))
		} else {
			b.rdb = rdb
			b.Mirror = redis.NewMirror(rdb, redis.Options{
				TTL:     time.Duration(cfg.Redis.TTLSec) * time.Second,
				Metrics: b.Metrics,
			}, b.Logger)
			listeners = append(listeners, b.Mirror)
			slog.Info("✅ Redis mirror ready", slog.String("addr", cfg.Redis.Addr))
		}
	}

	// 5. Stream client
	transport := ws.NewTransport(ws.Config{
		URL:          cfg.Stream.WSURL,
		WriteTimeout: time.Duration(cfg.Stream.WriteTimeoutMS) * time.Millisecond,
		PingInterval: time.Duration(cfg.Stream.PingIntervalSec) * time.Second,
		SendBuffer:   cfg.Stream.SendBuffer,
	}, b.Logger)

	b.Client = engine.NewClient(cfg.EngineConfig(), transport, b.hooks(listeners), b.Logger)

	// 6. Watchlist (REST collaborators are optional)
	var validator domain.QuoteValidator
	var source domain.WatchlistSource
	if cfg.API.BaseURL != "" {
		validator = infra.NewQuoteClient(cfg, b.Logger)
		source = infra.NewWatchlistClient(cfg, b.Logger)
	}
	b.Watchlist = NewWatchlist(store, validator, source, b.Client, b.Logger)

	return nil
}

func (b *Bootstrap) hooks(listeners []engine.PriceListener) engine.Hooks {
	return engine.Hooks{
		OnConnect: func() {
			slog.Info("✅ Stream connected")
		},
		OnDisconnect: func() {
			slog.Info("Stream disconnected")
		},
		OnError: func(err error) {
			var appErr *domain.ApplicationError
			if errors.As(err, &appErr) {
				slog.Warn("Feed server error", slog.String("message", appErr.Message))
				return
			}
			slog.Error("Stream error", slog.Any("error", err), slog.Bool("retriable", domain.IsRetriable(err)))
		},
		OnStateChange: func(from, to domain.ConnectionState) {
			slog.Debug("Stream state changed", slog.String("from", from.String()), slog.String("to", to.String()))
		},
		Listeners: listeners,
		Metrics:   b.Metrics,
	}
}

// Run starts the client, connects, and keeps the watchlist and the price log
// going until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if b.Mirror != nil {
		b.Mirror.Start(ctx)
	}

	g.Go(func() error {
		return b.Client.Run(ctx)
	})
	b.Client.Connect()

	g.Go(func() error {
		interval := time.Duration(b.Config.API.SyncIntervalSec) * time.Second
		return b.Watchlist.RunSync(ctx, interval)
	})

	g.Go(func() error {
		b.reportPrices(ctx, time.Duration(b.Config.App.ReportIntervalSec)*time.Second)
		return nil
	})

	slog.InfoContext(ctx, "✨ Market stream fully operational. Press Ctrl+C to exit.")
	return g.Wait()
}

// reportPrices logs client status every interval. A non-positive interval disables it.
func (b *Bootstrap) reportPrices(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := b.Client.Stats()
			snap := b.Metrics.Snapshot()
			slog.Info("Stream status",
				slog.String("state", stats.State.String()),
				slog.Int("subscriptions", stats.Subscriptions),
				slog.Int("cached", stats.CachedPrices),
				slog.Uint64("frames", snap.FramesRouted),
				slog.Uint64("protocol_errors", snap.ProtocolErrors),
				slog.Int64("avg_latency_ns", snap.AvgLatencyNs),
			)
			for _, rec := range b.Client.Prices() {
				slog.Info("Price",
					slog.String("symbol", rec.Symbol),
					slog.String("price", rec.Price.String()),
					slog.String("volume", rec.Volume.String()),
					slog.Time("ts", rec.Timestamp),
				)
			}
		}
	}
}

// Close releases resources after Run has returned
func (b *Bootstrap) Close() {
	if b.Mirror != nil {
		b.Mirror.Stop()
	}
	if b.rdb != nil {
		b.rdb.Close()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
