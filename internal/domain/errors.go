package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// TransportError is a socket-level failure. It drives the reconnect policy.
type TransportError struct {
	Op  string // "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) IsRetriable() bool {
	return true
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a socket failure
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ProtocolError is a malformed or unrecognized inbound frame. Never fatal.
type ProtocolError struct {
	Kind string // Frame type if it could be decoded
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Kind == "" {
		return "protocol: " + e.Err.Error()
	}
	return "protocol [" + e.Kind + "]: " + e.Err.Error()
}

func (e *ProtocolError) IsRetriable() bool {
	return false
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ApplicationError carries the text of a server-sent error frame
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return "server error: " + e.Message
}

func (e *ApplicationError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrNotConnected is returned when a frame is sent without a live socket.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidSymbol is returned when a symbol is rejected by quote validation. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrSendQueueFull is returned when the socket write queue cannot take another frame
	ErrSendQueueFull = errors.New("send queue full")

	// ErrClientClosed is returned by operations on a client whose loop has exited
	ErrClientClosed = errors.New("client closed")

	// ErrUnknownFrame is wrapped by ProtocolError for unrecognized frame types
	ErrUnknownFrame = errors.New("unknown frame type")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
