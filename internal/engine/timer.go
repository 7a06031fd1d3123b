package engine

import "time"

// afterFunc schedules f and returns a stop function
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// reconnectTimer holds at most one pending reconnect. Scheduling replaces the
// previous timer; a fire is honored only if its generation is still current,
// so a fire racing a Stop is dropped.
type reconnectTimer struct {
	after   afterFunc
	post    func(gen uint64)
	stop    func() bool
	gen     uint64
	pending bool
}

func newReconnectTimer(post func(gen uint64)) *reconnectTimer {
	return &reconnectTimer{after: realAfterFunc, post: post}
}

func (t *reconnectTimer) schedule(d time.Duration) {
	t.cancel()
	t.gen++
	gen := t.gen
	t.pending = true
	t.stop = t.after(d, func() { t.post(gen) })
}

func (t *reconnectTimer) cancel() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	if t.pending {
		t.pending = false
		t.gen++
	}
}

// fire consumes the pending timer if gen matches it
func (t *reconnectTimer) fire(gen uint64) bool {
	if !t.pending || gen != t.gen {
		return false
	}
	t.pending = false
	t.stop = nil
	return true
}

func (t *reconnectTimer) isPending() bool {
	return t.pending
}
