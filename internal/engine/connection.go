package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"market_stream/internal/domain"
	"market_stream/internal/event"
	"market_stream/internal/service"
)

// connManager owns the socket lifecycle and reconnection policy.
// All methods except the snapshot accessors run on the client loop goroutine.
type connManager struct {
	cfg       Config
	transport Transport
	registry  *service.SubscriptionRegistry
	hooks     Hooks
	metrics   MetricsRecorder
	logger    *slog.Logger

	ctx  context.Context
	sink chan<- event.Event

	socket       Socket
	nextID       uint64
	opened       bool // current socket reached SocketOpened
	snapshotSent bool // open handler already sent the snapshot on this socket
	manual       bool // set by disconnect, cleared by connect
	timer        *reconnectTimer

	// Guarded for external reads
	mu       sync.RWMutex
	state    domain.ConnectionState
	socketID uint64
	attempts int
	pending  bool // mirrors timer.isPending
}

func newConnManager(cfg Config, transport Transport, registry *service.SubscriptionRegistry, hooks Hooks, sink chan<- event.Event, post func(event.Event) bool, logger *slog.Logger) *connManager {
	metrics := hooks.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	m := &connManager{
		cfg:       cfg,
		transport: transport,
		registry:  registry,
		hooks:     hooks,
		metrics:   metrics,
		logger:    logger,
		ctx:       context.Background(),
		sink:      sink,
		state:     domain.StateDisconnected,
	}
	m.timer = newReconnectTimer(func(gen uint64) {
		post(&event.ReconnectDue{Generation: gen})
	})
	return m
}

// connect handles a caller-initiated connect. It clears the manual-disconnect
// flag and resets the attempt counter.
func (m *connManager) connect() {
	if !m.State().CanConnect() {
		m.logger.Debug("connect ignored", slog.String("state", m.State().String()))
		return
	}

	m.manual = false
	m.setAttempts(0)
	m.timer.cancel()
	m.syncPending()
	m.open()
}

// open replaces any existing socket with a fresh one
func (m *connManager) open() {
	m.dropSocket()

	m.nextID++
	id := m.nextID

	m.mu.Lock()
	m.socketID = id
	m.mu.Unlock()

	m.setState(domain.StateConnecting)
	m.logger.Info("opening socket", slog.Uint64("socket_id", id), slog.Int("attempt", m.Attempts()))
	m.socket = m.transport.Open(m.ctx, id, m.sink)
}

// disconnect is the single cancellation point: timer and socket are both gone on return.
func (m *connManager) disconnect() {
	m.manual = true
	m.timer.cancel()
	m.syncPending()

	hadSocket := m.socket != nil
	m.dropSocket()

	prev := m.State()
	m.setState(domain.StateDisconnected)

	if hadSocket || prev != domain.StateDisconnected {
		m.logger.Info("disconnected by caller")
		if m.hooks.OnDisconnect != nil {
			m.hooks.OnDisconnect()
		}
	}
}

// dropSocket closes the current socket and forgets its id so late events are ignored
func (m *connManager) dropSocket() {
	if m.socket != nil {
		if err := m.socket.Close(); err != nil {
			m.logger.Debug("socket close error", slog.Any("error", err))
		}
		m.socket = nil
	}
	if m.opened {
		m.metrics.DecrementConnections()
		m.opened = false
	}
	m.snapshotSent = false

	m.mu.Lock()
	m.socketID = 0
	m.mu.Unlock()
}

// current reports whether ev belongs to the live socket
func (m *connManager) current(ev event.SocketEvent) bool {
	return m.socket != nil && ev.GetSocketID() == m.SocketID()
}

func (m *connManager) handleOpened() {
	m.opened = true
	m.metrics.IncrementConnections()
	m.setState(domain.StateConnected)
	m.setAttempts(0)

	m.logger.Info("socket connected", slog.Uint64("socket_id", m.SocketID()))
	if m.hooks.OnConnect != nil {
		m.hooks.OnConnect()
	}

	if m.registry.Len() > 0 {
		if m.send(ActionSubscribe, m.registry.Snapshot()) == nil {
			m.snapshotSent = true
		}
	}
}

func (m *connManager) handleFailed(err error) {
	m.setState(domain.StateError)
	m.logger.Warn("socket error", slog.Uint64("socket_id", m.SocketID()), slog.Any("error", err))
	m.notifyError(asTransportError("read", err))
}

func (m *connManager) handleClosed(err error) {
	wasOpened := m.opened
	m.dropSocket()

	if err != nil && !wasOpened {
		m.logger.Warn("socket failed to open", slog.Any("error", err))
		m.notifyError(asTransportError("dial", err))
	}

	m.setState(domain.StateDisconnected)
	if m.hooks.OnDisconnect != nil {
		m.hooks.OnDisconnect()
	}

	m.scheduleReconnect()
}

func (m *connManager) scheduleReconnect() {
	if m.manual || !m.cfg.AutoReconnect {
		return
	}

	attempts := m.Attempts()
	if attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn("max reconnect attempts reached, staying disconnected",
			slog.Int("attempts", attempts),
		)
		return
	}

	m.setAttempts(attempts + 1)
	m.metrics.RecordReconnect()
	m.logger.Info("scheduling reconnect",
		slog.Int("attempt", attempts+1),
		slog.Int("max", m.cfg.MaxReconnectAttempts),
		slog.Duration("delay", m.cfg.ReconnectDelay),
	)
	m.timer.schedule(m.cfg.ReconnectDelay)
	m.syncPending()
}

func (m *connManager) handleReconnectDue(gen uint64) {
	if !m.timer.fire(gen) {
		return // superseded or cancelled
	}
	m.syncPending()
	if m.manual || !m.State().CanConnect() {
		return
	}
	m.open()
}

// sessionAcknowledged implements session. The first ack after the open handler
// already sent the snapshot is a duplicate; any later ack means the server
// started a fresh session on this socket and lost our subscriptions.
func (m *connManager) sessionAcknowledged() {
	if m.State() != domain.StateConnected {
		m.setState(domain.StateConnected)
	}

	if m.snapshotSent {
		m.snapshotSent = false
		return
	}
	if m.registry.Len() > 0 {
		m.send(ActionSubscribe, m.registry.Snapshot())
	}
}

// serverError implements session
func (m *connManager) serverError(err *domain.ApplicationError) {
	m.logger.Warn("server error frame", slog.String("message", err.Message))
	m.notifyError(err)
}

// send writes a frame if Connected. Write failures are surfaced via OnError.
func (m *connManager) send(action string, symbols []string) error {
	if m.socket == nil || m.State() != domain.StateConnected {
		return domain.ErrNotConnected
	}

	data, err := EncodeOutbound(action, symbols)
	if err != nil {
		return err
	}

	if err := m.socket.Send(data); err != nil {
		m.logger.Warn("send failed", slog.String("action", action), slog.Any("error", err))
		m.notifyError(domain.NewTransportError("write", err))
		return err
	}

	m.logger.Debug("frame sent", slog.String("action", action), slog.Int("symbols", len(symbols)))
	return nil
}

func (m *connManager) notifyError(err error) {
	if m.hooks.OnError != nil {
		m.hooks.OnError(err)
	}
}

func (m *connManager) setState(s domain.ConnectionState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s && m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(prev, s)
	}
}

func (m *connManager) syncPending() {
	m.mu.Lock()
	m.pending = m.timer.isPending()
	m.mu.Unlock()
}

func (m *connManager) setAttempts(n int) {
	m.mu.Lock()
	m.attempts = n
	m.mu.Unlock()
}

// State returns the current connection state
func (m *connManager) State() domain.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the reconnect attempt counter
func (m *connManager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// SocketID returns the id of the live socket, 0 if none
func (m *connManager) SocketID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.socketID
}

func asTransportError(op string, err error) error {
	if err == nil {
		err = errors.New("socket error")
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return domain.NewTransportError(op, err)
}
