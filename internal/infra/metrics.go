package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight stream observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	framesRouted      atomic.Uint64
	protocolErrors    atomic.Uint64
	applicationErrors atomic.Uint64
	reconnects        atomic.Uint64
	socketsOpened     atomic.Uint64
	pricesMirrored    atomic.Uint64
	mirrorDrops       atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// RecordFrame records a routed frame with its handling latency.
func (m *Metrics) RecordFrame(latency time.Duration) {
	m.framesRouted.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordProtocolError records a dropped malformed frame.
func (m *Metrics) RecordProtocolError() {
	m.protocolErrors.Add(1)
}

// RecordApplicationError records a server error frame.
func (m *Metrics) RecordApplicationError() {
	m.applicationErrors.Add(1)
}

// RecordReconnect records a scheduled reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordMirrored records a price written to the mirror.
func (m *Metrics) RecordMirrored(n int) {
	m.pricesMirrored.Add(uint64(n))
}

// RecordMirrorDrop records a price the mirror had no room for.
func (m *Metrics) RecordMirrorDrop() {
	m.mirrorDrops.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.socketsOpened.Add(1)
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesRouted      uint64
	ProtocolErrors    uint64
	ApplicationErrors uint64
	Reconnects        uint64
	SocketsOpened     uint64
	PricesMirrored    uint64
	MirrorDrops       uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FramesRouted:      m.framesRouted.Load(),
		ProtocolErrors:    m.protocolErrors.Load(),
		ApplicationErrors: m.applicationErrors.Load(),
		Reconnects:        m.reconnects.Load(),
		SocketsOpened:     m.socketsOpened.Load(),
		PricesMirrored:    m.pricesMirrored.Load(),
		MirrorDrops:       m.mirrorDrops.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.framesRouted.Store(0)
	m.protocolErrors.Store(0)
	m.applicationErrors.Store(0)
	m.reconnects.Store(0)
	m.socketsOpened.Store(0)
	m.pricesMirrored.Store(0)
	m.mirrorDrops.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
