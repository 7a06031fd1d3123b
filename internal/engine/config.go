package engine

import "time"

// Config configures the streaming client
type Config struct {
	URL                  string        // Feed server URL (e.g., wss://feed.example.com/ws)
	ReconnectDelay       time.Duration // Fixed delay between reconnect attempts
	MaxReconnectAttempts int           // Attempts after a close before giving up
	AutoReconnect        bool
	InboxSize            int // Buffer for socket events
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		AutoReconnect:        true,
		InboxSize:            1024,
	}
}
