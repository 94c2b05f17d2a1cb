// Package queue provides the blocking FIFO used to hand buffers between the
// capture and process sides of the pipeline.
package queue

import "sync"

// Queue is an unbounded FIFO. Pop blocks while the queue is empty until an
// item is pushed or Wake is called.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int

	// ready holds at most one pending "items available" signal.
	ready chan struct{}
	// wake is closed by Wake and replaced by the next Push, so a woken queue
	// stays woken until new data arrives.
	wake  chan struct{}
	woken bool
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		wake:  make(chan struct{}),
	}
}

// Push appends v to the tail and wakes one blocked Pop.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	if q.woken {
		q.wake, q.woken = make(chan struct{}), false
	}
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the head. ok is false when the queue was woken
// while empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			v = q.takeLocked()
			more := q.lenLocked() > 0
			q.mu.Unlock()
			if more {
				// pass the baton to the next waiter
				q.signal()
			}
			return v, true
		}
		if q.woken {
			q.mu.Unlock()
			return v, false
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-wake:
		}
	}
}

// Count is a snapshot of the current length, for non-blocking decisions only.
func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Wake releases every blocked Pop with no item. Safe to call repeatedly.
func (q *Queue[T]) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.woken {
		close(q.wake)
		q.woken = true
	}
}

// Drain removes and returns everything still queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]T(nil), q.items[q.head:]...)
	clear(q.items)
	q.items, q.head = q.items[:0], 0
	return out
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) takeLocked() T {
	v := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items, q.head = q.items[:0], 0
	} else if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items, q.head = q.items[:n], 0
	}
	return v
}

func (q *Queue[T]) lenLocked() int { return len(q.items) - q.head }
