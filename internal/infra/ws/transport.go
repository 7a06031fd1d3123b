package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/engine"
	"market_stream/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultSendBuffer       = 64
	maxFrameSize            = 1 << 20
)

// Config configures the websocket transport
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration // Must exceed PingInterval
	SendBuffer       int
}

func (c *Config) withDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReadTimeout <= c.PingInterval {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
}

// Transport dials the feed server with gorilla/websocket
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewTransport creates a transport. Zero durations fall back to defaults.
func NewTransport(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.withDefaults()

	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With(slog.String("module", "ws_transport")),
	}
}

// Open implements engine.Transport. Dialing happens in the background.
func (t *Transport) Open(ctx context.Context, id uint64, sink chan<- event.Event) engine.Socket {
	ctx, cancel := context.WithCancel(ctx)
	s := &socket{
		id:     id,
		cfg:    t.cfg,
		sink:   sink,
		send:   make(chan []byte, t.cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: t.logger.With(
			slog.Uint64("socket_id", id),
			slog.String("session", uuid.NewString()),
		),
	}
	go s.run(t.dialer)
	return s
}

// socket is one websocket connection. The read loop owns reads, the write
// pump owns data writes; Close and control frames may come from anywhere.
type socket struct {
	id     uint64
	cfg    Config
	sink   chan<- event.Event
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *socket) base() event.SocketBase {
	return event.SocketBase{SocketID: s.id}
}

// post delivers ev unless the socket was closed locally
func (s *socket) post(ev event.Event) {
	select {
	case s.sink <- ev:
	case <-s.ctx.Done():
	}
}

func (s *socket) run(dialer *websocket.Dialer) {
	defer s.cancel()

	conn, _, err := dialer.DialContext(s.ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("dial failed", slog.Any("error", err))
			s.post(&event.SocketClosed{SocketBase: s.base(), Err: domain.NewTransportError("dial", err)})
		}
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	s.logger.Debug("socket open", slog.String("url", s.cfg.URL))
	s.post(&event.SocketOpened{SocketBase: s.base()})

	go s.writePump(conn)
	s.readLoop(conn)
}

func (s *socket) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.post(&event.Frame{SocketBase: s.base(), Data: data, ReceivedAt: time.Now()})
	}
}

func (s *socket) readFailed(err error) {
	if s.ctx.Err() != nil {
		return // closed locally
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("server closed socket", slog.Any("error", err))
		s.post(&event.SocketClosed{SocketBase: s.base()})
		return
	}

	s.logger.Warn("socket read failed", slog.Any("error", err))
	terr := domain.NewTransportError("read", err)
	s.post(&event.SocketFailed{SocketBase: s.base(), Err: terr})
	s.post(&event.SocketClosed{SocketBase: s.base(), Err: terr})
}

func (s *socket) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("write failed", slog.Any("error", err))
				conn.Close() // Read loop reports the failure
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Warn("ping failed", slog.Any("error", err))
				conn.Close()
				return
			}
		}
	}
}

// Send implements engine.Socket. It never blocks.
func (s *socket) Send(data []byte) error {
	if s.ctx.Err() != nil {
		return domain.ErrNotConnected
	}
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("socket %d: %w", s.id, domain.ErrSendQueueFull)
	}
}

// Close implements engine.Socket. Safe to call more than once.
func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		if werr := conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			s.logger.Debug("close frame not sent", slog.Any("error", werr))
		}
		err = conn.Close()
	})
	return err
}

var _ engine.Transport = (*Transport)(nil)
