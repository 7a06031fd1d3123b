package domain

// ConnectionState is the lifecycle state of the streaming connection.
type ConnectionState int

const (
	// StateDisconnected is both the initial state and the resting state after
	// Disconnect or reconnect exhaustion.
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CanConnect reports whether a connect request may open a new socket from this state.
func (s ConnectionState) CanConnect() bool {
	return s == StateDisconnected || s == StateError
}
