package infra

import (
	"testing"
	"time"

	"market_stream/internal/engine"
)

var _ engine.MetricsRecorder = (*Metrics)(nil)

func TestMetrics_RecordFrame(t *testing.T) {
	m := &Metrics{}

	m.RecordFrame(1000 * time.Nanosecond)
	m.RecordFrame(2000 * time.Nanosecond)
	m.RecordFrame(3000 * time.Nanosecond)

	snap := m.Snapshot()

	if snap.FramesRouted != 3 {
		t.Errorf("Expected 3 frames, got %d", snap.FramesRouted)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.DecrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
	if snap.SocketsOpened != 3 {
		t.Errorf("Expected 3 sockets opened, got %d", snap.SocketsOpened)
	}
}

func TestMetrics_Errors(t *testing.T) {
	m := &Metrics{}

	m.RecordProtocolError()
	m.RecordProtocolError()
	m.RecordApplicationError()
	m.RecordReconnect()

	snap := m.Snapshot()
	if snap.ProtocolErrors != 2 || snap.ApplicationErrors != 1 || snap.Reconnects != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordFrame(time.Microsecond)
	m.RecordProtocolError()
	m.RecordMirrored(4)
	m.RecordMirrorDrop()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.FramesRouted != 0 {
		t.Error("Expected 0 frames after reset")
	}
	if snap.ProtocolErrors != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.PricesMirrored != 0 || snap.MirrorDrops != 0 {
		t.Error("Expected mirror counters cleared")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}
