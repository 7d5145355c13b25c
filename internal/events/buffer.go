package events

import "sync"

// RingBuffer keeps the most recent events in a fixed window.
type RingBuffer struct {
	mu    sync.RWMutex
	buf   []Event
	start int
	count int
	total uint64
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Add appends e, overwriting the oldest event once the window is full.
func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count < len(rb.buf) {
		rb.buf[(rb.start+rb.count)%len(rb.buf)] = e
		rb.count++
	} else {
		rb.buf[rb.start] = e
		rb.start = (rb.start + 1) % len(rb.buf)
	}
	rb.total++
}

// Last returns up to n of the newest events, oldest first. n <= 0 means all.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	out := make([]Event, 0, n)
	for i := rb.count - n; i < rb.count; i++ {
		out = append(out, rb.buf[(rb.start+i)%len(rb.buf)])
	}
	return out
}

// Snapshot returns the buffered events, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

// Len is the number of buffered events.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// TotalCount is the number of events ever added, including overwritten ones.
func (rb *RingBuffer) TotalCount() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.start, rb.count, rb.total = 0, 0, 0
}
