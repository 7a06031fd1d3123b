package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"market_stream/internal/domain"
	"market_stream/internal/event"
	"market_stream/internal/service"

	"github.com/google/uuid"
)

// Client is the streaming market-data client.
//
// Run is the single goroutine that owns the subscription registry, the price
// cache and the connection state machine. Connect, Disconnect, Subscribe and
// Unsubscribe only queue a command and return immediately; completion is
// observed through Hooks. Read accessors are safe from any goroutine.
//
// One Client is meant to be shared by every consumer in a process.
type Client struct {
	cfg    Config
	logger *slog.Logger

	registry *service.SubscriptionRegistry
	cache    *service.PriceCache
	conn     *connManager
	router   *Router

	inbox   chan event.Event // Socket events, bounded for backpressure
	mailbox *event.Mailbox   // Commands and timer fires, never blocks

	running atomic.Bool
	done    chan struct{}
}

// Stats is a point-in-time view of the client
type Stats struct {
	State             domain.ConnectionState
	ReconnectAttempts int
	ReconnectPending  bool
	SocketID          uint64
	Subscriptions     int
	CachedPrices      int
}

// NewClient creates a client. Nothing happens until Run is started and Connect is called.
func NewClient(cfg Config, transport Transport, hooks Hooks, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}
	logger = logger.With(slog.String("client", uuid.NewString()))

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		registry: service.NewSubscriptionRegistry(),
		cache:    service.NewPriceCache(),
		inbox:    make(chan event.Event, cfg.InboxSize),
		mailbox:  event.NewMailbox(),
		done:     make(chan struct{}),
	}
	c.conn = newConnManager(cfg, transport, c.registry, hooks, c.inbox, c.mailbox.Post, logger)
	c.router = NewRouter(c.cache, c.registry, c.conn, hooks, logger)
	return c
}

// Run processes events until ctx is cancelled. It must be called exactly once.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("client already running")
	}
	c.conn.ctx = ctx

	c.logger.Info("stream client started", slog.String("url", c.cfg.URL))

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			c.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stream client stopping...")
			return nil
		case ev := <-c.inbox:
			c.handle(ev)
		case <-c.mailbox.Ready():
			for _, ev := range c.mailbox.Drain() {
				c.handle(ev)
			}
		}
	}
}

func (c *Client) shutdown() {
	c.conn.disconnect()

	// Unblock anyone waiting in Flush
	for _, ev := range c.mailbox.Close() {
		if b, ok := ev.(*event.Barrier); ok {
			close(b.Done)
		}
	}
	close(c.done)
}

func (c *Client) handle(ev event.Event) {
	if sev, ok := ev.(event.SocketEvent); ok {
		if !c.conn.current(sev) {
			c.logger.Debug("dropping event from stale socket",
				slog.String("type", ev.GetType().String()),
				slog.Uint64("socket_id", sev.GetSocketID()),
			)
			return
		}
	}

	switch e := ev.(type) {
	case *event.SocketOpened:
		c.conn.handleOpened()
	case *event.SocketFailed:
		c.conn.handleFailed(e.Err)
	case *event.SocketClosed:
		c.conn.handleClosed(e.Err)
	case *event.Frame:
		c.router.Route(e.Data, e.ReceivedAt)
	case *event.ReconnectDue:
		c.conn.handleReconnectDue(e.Generation)
	case *event.Connect:
		c.conn.connect()
	case *event.Disconnect:
		c.conn.disconnect()
	case *event.Subscribe:
		c.subscribe(e.Symbols)
	case *event.Unsubscribe:
		c.unsubscribe(e.Symbols)
	case *event.Barrier:
		close(e.Done)
	default:
		c.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

// subscribe updates the registry first; the wire only sees it when Connected.
// Otherwise the full snapshot goes out on the next successful open.
func (c *Client) subscribe(symbols []string) {
	added := c.registry.Add(symbols)
	if len(added) == 0 {
		return
	}
	if c.conn.State() == domain.StateConnected {
		c.conn.send(ActionSubscribe, added)
	}
}

// unsubscribe evicts cached prices even for symbols that were never wanted.
func (c *Client) unsubscribe(symbols []string) {
	removed := c.registry.Remove(symbols)
	c.cache.Evict(symbols)
	if len(removed) == 0 {
		return
	}
	if c.conn.State() == domain.StateConnected {
		c.conn.send(ActionUnsubscribe, removed)
	}
}

func (c *Client) post(ev event.Event) {
	if !c.mailbox.Post(ev) {
		c.logger.Debug("client closed, command dropped", slog.String("type", ev.GetType().String()))
	}
}

// Connect opens the connection if Disconnected or in Error. It resets the
// reconnect attempt counter.
func (c *Client) Connect() {
	c.post(&event.Connect{})
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.post(&event.Disconnect{})
}

// Subscribe adds symbols to the streamed set
func (c *Client) Subscribe(symbols ...string) {
	c.post(&event.Subscribe{Symbols: symbols})
}

// Unsubscribe removes symbols from the streamed set and evicts their cached prices
func (c *Client) Unsubscribe(symbols ...string) {
	c.post(&event.Unsubscribe{Symbols: symbols})
}

// Flush waits until every command queued before it has been applied.
func (c *Client) Flush(ctx context.Context) error {
	b := &event.Barrier{Done: make(chan struct{})}
	if !c.mailbox.Post(b) {
		return domain.ErrClientClosed
	}

	select {
	case <-b.Done:
		return nil
	case <-c.done:
		return domain.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// GetPrice returns the latest cached price for a symbol
func (c *Client) GetPrice(symbol string) (domain.PriceRecord, bool) {
	return c.cache.Get(symbol)
}

// Prices returns every cached price sorted by symbol
func (c *Client) Prices() []domain.PriceRecord {
	return c.cache.All()
}

// State returns the current connection state
func (c *Client) State() domain.ConnectionState {
	return c.conn.State()
}

// Subscriptions returns the desired symbol set
func (c *Client) Subscriptions() []string {
	return c.registry.Snapshot()
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	c.conn.mu.RLock()
	s := Stats{
		State:             c.conn.state,
		ReconnectAttempts: c.conn.attempts,
		ReconnectPending:  c.conn.pending,
		SocketID:          c.conn.socketID,
	}
	c.conn.mu.RUnlock()

	s.Subscriptions = c.registry.Len()
	s.CachedPrices = c.cache.Len()
	return s
}

// DumpState writes state, subscriptions and prices to a file (for post-mortem).
func (c *Client) DumpState(filename string) {
	c.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		State         string               `json:"state"`
		Attempts      int                  `json:"reconnect_attempts"`
		Subscriptions []string             `json:"subscriptions"`
		Prices        []domain.PriceRecord `json:"prices"`
	}{
		State:         c.conn.State().String(),
		Attempts:      c.conn.Attempts(),
		Subscriptions: c.registry.Snapshot(),
		Prices:        c.cache.All(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		c.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		c.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}

var _ domain.PriceReader = (*Client)(nil)
