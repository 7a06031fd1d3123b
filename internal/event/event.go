// Package event defines everything the client event loop consumes: socket
// notifications posted by transports, timer fires, and commands posted by the
// public client API.
package event

import "time"

// Type identifies an event
type Type int

const (
	TypeSocketOpened Type = iota + 1
	TypeSocketFailed
	TypeSocketClosed
	TypeFrame
	TypeReconnectDue
	TypeConnect
	TypeDisconnect
	TypeSubscribe
	TypeUnsubscribe
	TypeBarrier
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeSocketOpened:
		return "socket_opened"
	case TypeSocketFailed:
		return "socket_failed"
	case TypeSocketClosed:
		return "socket_closed"
	case TypeFrame:
		return "frame"
	case TypeReconnectDue:
		return "reconnect_due"
	case TypeConnect:
		return "connect"
	case TypeDisconnect:
		return "disconnect"
	case TypeSubscribe:
		return "subscribe"
	case TypeUnsubscribe:
		return "unsubscribe"
	case TypeBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// Event is anything the loop can process
type Event interface {
	GetType() Type
}

// SocketEvent is an event produced by one socket. SocketID lets the loop drop
// events from sockets it has already replaced.
type SocketEvent interface {
	Event
	GetSocketID() uint64
}

// SocketBase carries the id of the socket that produced the event
type SocketBase struct {
	SocketID uint64
}

func (b SocketBase) GetSocketID() uint64 { return b.SocketID }

// SocketOpened is posted once the transport handshake succeeded
type SocketOpened struct {
	SocketBase
}

func (*SocketOpened) GetType() Type { return TypeSocketOpened }

// SocketFailed is posted when an open socket hits an error. It does not close the socket.
type SocketFailed struct {
	SocketBase
	Err error
}

func (*SocketFailed) GetType() Type { return TypeSocketFailed }

// SocketClosed is posted exactly once per socket. Err is set when the socket
// never opened (dial failure) or closed abnormally.
type SocketClosed struct {
	SocketBase
	Err error
}

func (*SocketClosed) GetType() Type { return TypeSocketClosed }

// Frame is one inbound text frame
type Frame struct {
	SocketBase
	Data       []byte
	ReceivedAt time.Time
}

func (*Frame) GetType() Type { return TypeFrame }

// ReconnectDue is posted by the reconnect timer when it fires
type ReconnectDue struct {
	Generation uint64
}

func (*ReconnectDue) GetType() Type { return TypeReconnectDue }

// Connect requests a new connection (manual invocation)
type Connect struct{}

func (*Connect) GetType() Type { return TypeConnect }

// Disconnect requests a manual disconnect
type Disconnect struct{}

func (*Disconnect) GetType() Type { return TypeDisconnect }

// Subscribe adds symbols to the desired set
type Subscribe struct {
	Symbols []string
}

func (*Subscribe) GetType() Type { return TypeSubscribe }

// Unsubscribe removes symbols from the desired set
type Unsubscribe struct {
	Symbols []string
}

func (*Unsubscribe) GetType() Type { return TypeUnsubscribe }

// Barrier is closed by the loop once every event posted before it was handled
type Barrier struct {
	Done chan struct{}
}

func (*Barrier) GetType() Type { return TypeBarrier }
