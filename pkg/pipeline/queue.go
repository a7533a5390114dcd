package pipeline

import (
	"context"
	"sync"
)

// Queue is the intake buffer between producers and the dispatcher. Put never
// blocks; Take suspends until a batch arrives.
//
// Unless a max depth is set the queue is unbounded, and memory grows with the
// backlog.
type Queue struct {
	mu       sync.Mutex
	items    []EventBatch
	head     int
	maxDepth int
	closed   bool

	// wake holds at most one pending wake-up for a waiting Take.
	wake chan struct{}
}

// NewQueue returns an empty queue. maxDepth <= 0 means unbounded.
func NewQueue(maxDepth int) *Queue {
	return &Queue{
		maxDepth: maxDepth,
		wake:     make(chan struct{}, 1),
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Put appends b to the tail.
func (q *Queue) Put(b EventBatch) error {
	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	case q.maxDepth > 0 && q.lenLocked() >= q.maxDepth:
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, b)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Take removes and returns the head batch, waiting for one if the queue is
// empty. It returns ErrQueueClosed once the queue is closed, or ctx.Err().
func (q *Queue) Take(ctx context.Context) (EventBatch, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return EventBatch{}, ErrQueueClosed
		}
		if q.lenLocked() > 0 {
			b := q.items[q.head]
			q.items[q.head] = EventBatch{}
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			} else if q.head > len(q.items)/2 {
				// Compact so a long-lived queue does not pin consumed slots.
				n := copy(q.items, q.items[q.head:])
				clear(q.items[n:])
				q.items = q.items[:n]
				q.head = 0
			}
			more := q.lenLocked() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return b, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return EventBatch{}, ctx.Err()
		}
	}
}

func (q *Queue) lenLocked() int {
	return len(q.items) - q.head
}

// Len is the number of batches waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Close rejects further Puts, wakes a waiting Take and discards everything
// still queued. It returns the number of discarded batches.
func (q *Queue) Close() (discarded int) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	discarded = q.lenLocked()
	q.items = nil
	q.head = 0
	q.mu.Unlock()

	q.signal()
	return discarded
}
