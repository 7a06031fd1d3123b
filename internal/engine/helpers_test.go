package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/event"
)

var errRefused = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSocket struct {
	mu      sync.Mutex
	id      uint64
	sent    [][]byte
	closed  bool
	sendErr error
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) messages(t *testing.T) []OutboundMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OutboundMessage, 0, len(s.sent))
	for _, b := range s.sent {
		var m OutboundMessage
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("bad outbound frame %s: %v", b, err)
		}
		out = append(out, m)
	}
	return out
}

// fakeTransport records opened sockets. With failOpen set it posts a dial
// failure asynchronously, the way a real transport does.
type fakeTransport struct {
	mu       sync.Mutex
	sockets  []*fakeSocket
	failOpen bool
}

func (t *fakeTransport) Open(ctx context.Context, id uint64, sink chan<- event.Event) Socket {
	s := &fakeSocket{id: id}

	t.mu.Lock()
	t.sockets = append(t.sockets, s)
	fail := t.failOpen
	t.mu.Unlock()

	if fail {
		go func() {
			select {
			case sink <- &event.SocketClosed{SocketBase: event.SocketBase{SocketID: id}, Err: domain.NewTransportError("dial", errRefused)}:
			case <-ctx.Done():
			}
		}()
	}
	return s
}

func (t *fakeTransport) opened() []*fakeSocket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeSocket(nil), t.sockets...)
}

func (t *fakeTransport) last() *fakeSocket {
	socks := t.opened()
	if len(socks) == 0 {
		return nil
	}
	return socks[len(socks)-1]
}

func (t *fakeTransport) live() int {
	n := 0
	for _, s := range t.opened() {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

// fakeClock captures scheduled reconnects so tests fire them by hand
type fakeClock struct {
	delays  []time.Duration
	funcs   []func()
	stopped []bool
}

func (f *fakeClock) after(d time.Duration, fn func()) func() bool {
	i := len(f.funcs)
	f.delays = append(f.delays, d)
	f.funcs = append(f.funcs, fn)
	f.stopped = append(f.stopped, false)
	return func() bool {
		f.stopped[i] = true
		return true
	}
}

// recorder captures hook invocations
type recorder struct {
	mu          sync.Mutex
	transitions []domain.ConnectionState
	connects    int
	disconnects int
	errs        []error
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnConnect: func() {
			r.mu.Lock()
			r.connects++
			r.mu.Unlock()
		},
		OnDisconnect: func() {
			r.mu.Lock()
			r.disconnects++
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnStateChange: func(from, to domain.ConnectionState) {
			r.mu.Lock()
			r.transitions = append(r.transitions, to)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) trace() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionState(nil), r.transitions...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

// harness drives a client synchronously without starting Run
type harness struct {
	t         *testing.T
	client    *Client
	transport *fakeTransport
	clock     *fakeClock
	rec       *recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		transport: &fakeTransport{},
		clock:     &fakeClock{},
		rec:       &recorder{},
	}
	h.client = NewClient(cfg, h.transport, h.rec.hooks(), discardLogger())
	h.client.conn.timer.after = h.clock.after
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://feed.test/ws"
	cfg.ReconnectDelay = 10 * time.Millisecond
	return cfg
}

// drain applies every queued command and timer fire
func (h *harness) drain() {
	for _, ev := range h.client.mailbox.Drain() {
		h.client.handle(ev)
	}
}

func (h *harness) socketEvent(ev event.Event) {
	h.client.handle(ev)
}

func (h *harness) opened(id uint64) {
	h.socketEvent(&event.SocketOpened{SocketBase: event.SocketBase{SocketID: id}})
}

func (h *harness) closed(id uint64, err error) {
	h.socketEvent(&event.SocketClosed{SocketBase: event.SocketBase{SocketID: id}, Err: err})
}

func (h *harness) failed(id uint64, err error) {
	h.socketEvent(&event.SocketFailed{SocketBase: event.SocketBase{SocketID: id}, Err: err})
}

func (h *harness) frame(id uint64, v any) {
	var data []byte
	switch raw := v.(type) {
	case string:
		data = []byte(raw)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			h.t.Fatalf("marshal frame: %v", err)
		}
		data = b
	}
	h.socketEvent(&event.Frame{SocketBase: event.SocketBase{SocketID: id}, Data: data, ReceivedAt: time.Now()})
}

// fireTimer runs the most recent scheduled reconnect and applies it
func (h *harness) fireTimer() {
	h.t.Helper()
	if len(h.clock.funcs) == 0 {
		h.t.Fatal("no reconnect scheduled")
	}
	h.clock.funcs[len(h.clock.funcs)-1]()
	h.drain()
}

func priceFrame(symbol string, price float64) map[string]any {
	return map[string]any{
		"type":   "price_update",
		"symbol": symbol,
		"data": map[string]any{
			"price":     price,
			"volume":    1000,
			"timestamp": 1700000000,
		},
	}
}
