package engine

import (
	"context"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/event"
)

// Transport opens sockets to the feed server.
type Transport interface {
	// Open starts connecting in the background and returns immediately.
	// Every outcome (opened, frames, failure, close) is posted to sink tagged with id.
	Open(ctx context.Context, id uint64, sink chan<- event.Event) Socket
}

// Socket is one duplex connection produced by a Transport.
type Socket interface {
	// Send queues a text frame without blocking.
	Send(data []byte) error

	// Close tears the socket down. Events posted afterwards are ignored by the client.
	Close() error
}

// PriceListener is notified on the loop goroutine after every cache upsert.
// Implementations must not block.
type PriceListener interface {
	OnPrice(rec domain.PriceRecord)
}

// MetricsRecorder receives stream counters
type MetricsRecorder interface {
	RecordFrame(latency time.Duration)
	RecordProtocolError()
	RecordApplicationError()
	RecordReconnect()
	IncrementConnections()
	DecrementConnections()
}

// Hooks are invoked on the loop goroutine, never concurrently with each other.
// A hook may call back into the Client: commands are queued, not executed inline.
type Hooks struct {
	OnConnect     func()
	OnDisconnect  func()
	OnError       func(err error)
	OnStateChange func(from, to domain.ConnectionState)

	Listeners []PriceListener
	Metrics   MetricsRecorder
}

type nopMetrics struct{}

func (nopMetrics) RecordFrame(time.Duration) {}
func (nopMetrics) RecordProtocolError()      {}
func (nopMetrics) RecordApplicationError()   {}
func (nopMetrics) RecordReconnect()          {}
func (nopMetrics) IncrementConnections()     {}
func (nopMetrics) DecrementConnections()     {}
