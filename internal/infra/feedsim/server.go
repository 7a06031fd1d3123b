// Package feedsim is a local price-feed server speaking the streaming protocol.
// It backs cmd/feedsim and the transport tests.
package feedsim

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/engine"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Options tunes server behavior
type Options struct {
	// SendAck sends a "connection" frame right after the upgrade
	SendAck bool
}

// Server is an http.Handler that upgrades every request to a feed socket
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	peers    map[*peer]struct{}
	received []engine.OutboundMessage
	accepted int
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]struct{}
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteJSON(v)
}

// NewServer creates a feed server
func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("module", "feedsim")),
		peers:  make(map[*peer]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}

	p := &peer{conn: conn, subs: make(map[string]struct{})}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	s.logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	if s.opts.SendAck {
		if err := p.writeJSON(engine.InboundMessage{Type: engine.FrameConnection, Message: "connected"}); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handle(p, data)
	}
}

type subscriptionAck struct {
	Type    string   `json:"type"`
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

func (s *Server) handle(p *peer, data []byte) {
	var msg engine.OutboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.writeJSON(engine.InboundMessage{Type: engine.FrameError, Message: "invalid message"})
		return
	}

	symbols := domain.NormalizeSymbols(msg.Symbols)

	s.mu.Lock()
	s.received = append(s.received, msg)
	switch msg.Action {
	case engine.ActionSubscribe:
		for _, sym := range symbols {
			p.subs[sym] = struct{}{}
		}
	case engine.ActionUnsubscribe:
		for _, sym := range symbols {
			delete(p.subs, sym)
		}
	default:
		s.mu.Unlock()
		p.writeJSON(engine.InboundMessage{Type: engine.FrameError, Message: "unknown action: " + msg.Action})
		return
	}
	s.mu.Unlock()

	p.writeJSON(subscriptionAck{Type: engine.FrameSubscription, Action: msg.Action, Symbols: symbols})
}

// Received returns every client message seen so far
func (s *Server) Received() []engine.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.OutboundMessage(nil), s.received...)
}

// Subscribed returns the union of symbols subscribed by connected clients
func (s *Server) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{})
	for p := range s.peers {
		for sym := range p.subs {
			set[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ActiveConns returns the number of open client sockets
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Accepted returns the total number of sockets ever accepted
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) snapshot() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

// PublishPrice sends a price_update to every client subscribed to symbol.
// It returns the number of clients reached.
func (s *Server) PublishPrice(symbol string, price, volume decimal.Decimal, ts time.Time) int {
	symbol = domain.NormalizeSymbol(symbol)
	msg := engine.InboundMessage{
		Type:   engine.FramePriceUpdate,
		Symbol: symbol,
		Data: &engine.PriceData{
			Price:     price,
			Volume:    volume,
			Timestamp: float64(ts.UnixMilli()) / 1000,
		},
	}

	sent := 0
	for _, p := range s.snapshot() {
		s.mu.Lock()
		_, ok := p.subs[symbol]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := p.writeJSON(msg); err == nil {
			sent++
		}
	}
	return sent
}

// Broadcast writes raw text to every client
func (s *Server) Broadcast(data []byte) {
	for _, p := range s.snapshot() {
		p.writeMu.Lock()
		p.conn.WriteMessage(websocket.TextMessage, data)
		p.writeMu.Unlock()
	}
}

// SendError sends an error frame to every client
func (s *Server) SendError(message string) {
	for _, p := range s.snapshot() {
		p.writeJSON(engine.InboundMessage{Type: engine.FrameError, Message: message})
	}
}

// DropAll closes every client socket without a close handshake
func (s *Server) DropAll() {
	for _, p := range s.snapshot() {
		p.conn.Close()
	}
}

// CloseAll sends a normal close frame to every client
func (s *Server) CloseAll() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	for _, p := range s.snapshot() {
		p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}
