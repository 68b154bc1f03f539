package session

import "sync"

// Queue is a single-slot mailbox for pending agent injections. Enqueue
// overwrites any prior message: injected context is advisory, not an audit
// log, so stale guidance is dropped rather than queued behind fresh
// guidance. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending string
	has     bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue replaces any pending message with msg.
func (q *Queue) Enqueue(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = msg
	q.has = true
}

// Drain atomically returns and clears the pending message. The second
// return is false when the queue was empty.
func (q *Queue) Drain() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.has {
		return "", false
	}
	msg := q.pending
	q.pending = ""
	q.has = false
	return msg, true
}

// IsEmpty reports whether no message is pending.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.has
}
