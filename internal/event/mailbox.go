package event

import "sync"

// Mailbox is an unbounded FIFO queue. Post never blocks, so it is safe to call
// from callbacks running on the loop goroutine itself.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Event
	ready  chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
	}
}

// Post appends an event. It reports false once the mailbox is closed.
func (m *Mailbox) Post(ev Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready signals that Drain has something to return
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns all queued events in post order
func (m *Mailbox) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	evs := m.queue
	m.queue = nil
	return evs
}

// Close rejects further posts and returns whatever was still queued
func (m *Mailbox) Close() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	evs := m.queue
	m.queue = nil
	return evs
}
