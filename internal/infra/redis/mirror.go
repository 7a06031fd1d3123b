// Package redis mirrors streamed prices into Redis so other local processes
// can read the latest value (stock:<SYMBOL>) or subscribe (prices.<SYMBOL>).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market_stream/internal/domain"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	defaultBuffer    = 1024
	defaultBatchSize = 64
	writeTimeout     = 2 * time.Second
)

// DropRecorder is notified of mirror throughput
type DropRecorder interface {
	RecordMirrored(n int)
	RecordMirrorDrop()
}

// Options configures a Mirror
type Options struct {
	TTL       time.Duration
	Buffer    int
	BatchSize int
	Metrics   DropRecorder
}

// Mirror implements engine.PriceListener. OnPrice never blocks the client loop;
// a worker goroutine writes batches with one pipeline per batch.
type Mirror struct {
	rdb     goredis.UniversalClient
	opts    Options
	queue   chan domain.PriceRecord
	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// payload is the JSON stored and published per price
type payload struct {
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	Volume     string `json:"volume"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
	ReceivedAt int64  `json:"received_at"`
}

// Connect creates a go-redis client and verifies it with PING
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// NewMirror creates a mirror over rdb
func NewMirror(rdb goredis.UniversalClient, opts Options, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Mirror{
		rdb:    rdb,
		opts:   opts,
		queue:  make(chan domain.PriceRecord, opts.Buffer),
		logger: logger.With(slog.String("module", "redis_mirror")),
	}
}

// Key is the latest-value key for a symbol
func Key(symbol string) string {
	return "stock:" + symbol
}

// Channel is the pub/sub channel for a symbol
func Channel(symbol string) string {
	return "prices." + symbol
}

// OnPrice queues rec, dropping it with a warning when the buffer is full
func (m *Mirror) OnPrice(rec domain.PriceRecord) {
	select {
	case m.queue <- rec:
	default:
		m.logger.Warn("mirror buffer full, dropping price", slog.String("symbol", rec.Symbol))
		if m.opts.Metrics != nil {
			m.opts.Metrics.RecordMirrorDrop()
		}
	}
}

// Start launches the writer goroutine
func (m *Mirror) Start(ctx context.Context) {
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Mirror panic recovered", slog.Any("panic", r))
			}
		}()
		m.run(ctx)
	}()
}

// Stop flushes what is queued and waits for the writer to exit
func (m *Mirror) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
	}
}

func (m *Mirror) run(ctx context.Context) {
	batch := make([]domain.PriceRecord, 0, m.opts.BatchSize)

	for {
		select {
		case <-ctx.Done():
			m.drain(batch[:0])
			m.logger.Info("Redis mirror stopped")
			return
		case rec := <-m.queue:
			batch = append(batch[:0], rec)
			batch = m.collect(batch)
			if err := m.write(batch); err != nil {
				m.logger.Error("Redis pipeline error", slog.Any("error", err), slog.Int("batch", len(batch)))
			}
		}
	}
}

// collect appends whatever is already queued, up to the batch size
func (m *Mirror) collect(batch []domain.PriceRecord) []domain.PriceRecord {
	for len(batch) < m.opts.BatchSize {
		select {
		case rec := <-m.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (m *Mirror) drain(batch []domain.PriceRecord) {
	batch = m.collect(batch)
	if len(batch) == 0 {
		return
	}
	if err := m.write(batch); err != nil {
		m.logger.Warn("final mirror flush failed", slog.Any("error", err))
	}
}

// write uses its own deadline: a batch taken off the queue is written even during shutdown
func (m *Mirror) write(batch []domain.PriceRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	for _, rec := range batch {
		data, err := json.Marshal(payload{
			Symbol:     rec.Symbol,
			Price:      rec.Price.String(),
			Volume:     rec.Volume.String(),
			Timestamp:  rec.Timestamp.UnixMilli(),
			ReceivedAt: rec.ReceivedAt.UnixMilli(),
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, Key(rec.Symbol), data, m.opts.TTL)
		pipe.Publish(ctx, Channel(rec.Symbol), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordMirrored(len(batch))
	}
	m.logger.Debug("mirrored prices", slog.Int("count", len(batch)))
	return nil
}

// Latest reads a mirrored price back. A missing key is (nil, nil).
func Latest(ctx context.Context, rdb goredis.UniversalClient, symbol string) (*domain.PriceRecord, error) {
	data, err := rdb.Get(ctx, Key(domain.NormalizeSymbol(symbol))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price from redis: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*domain.PriceRecord, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price: %w", err)
	}
	rec, err := p.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p payload) record() (domain.PriceRecord, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	volume, err := decimal.NewFromString(p.Volume)
	if err != nil {
		return domain.PriceRecord{}, err
	}
	return domain.PriceRecord{
		Symbol:     p.Symbol,
		Price:      price,
		Volume:     volume,
		Timestamp:  time.UnixMilli(p.Timestamp),
		ReceivedAt: time.UnixMilli(p.ReceivedAt),
	}, nil
}
