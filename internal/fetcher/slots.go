package fetcher

import (
	"context"
	"sync"
)

// Priority orders queued fetches. Higher values drain first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// slotQueue caps concurrent in-flight requests. Excess requests wait and are
// drained as slots free, sorted by priority then age.
type slotQueue struct {
	mu      sync.Mutex
	free    int
	seq     uint64
	waiters []*slotWaiter
}

type slotWaiter struct {
	priority Priority
	seq      uint64
	ready    chan struct{}
}

func newSlotQueue(size int) *slotQueue {
	if size <= 0 {
		size = 8
	}
	return &slotQueue{free: size}
}

func (q *slotQueue) Acquire(ctx context.Context, p Priority) error {
	q.mu.Lock()
	if q.free > 0 {
		q.free--
		q.mu.Unlock()
		return nil
	}

	w := &slotWaiter{priority: p, seq: q.seq, ready: make(chan struct{})}
	q.seq++
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		q.abandon(w)
		return ctx.Err()
	}
}

func (q *slotQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, w := range q.waiters {
		if best == -1 {
			best = i
			continue
		}
		b := q.waiters[best]
		if w.priority > b.priority || (w.priority == b.priority && w.seq < b.seq) {
			best = i
		}
	}

	if best == -1 {
		q.free++
		return
	}

	w := q.waiters[best]
	q.waiters = append(q.waiters[:best], q.waiters[best+1:]...)
	close(w.ready)
}

func (q *slotQueue) abandon(w *slotWaiter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}

	// The waiter was already granted a slot between ctx.Done and this call;
	// hand the slot back.
	select {
	case <-w.ready:
		q.free++
	default:
	}
}

func (q *slotQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
