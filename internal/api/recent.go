package api

import "sync"

// ring keeps the last N events for the REST endpoint and for the
// backlog new WebSocket clients receive on connect.
type ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 50
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) Add(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the stored events, newest first.
func (r *ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}
