/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package queue implements the bounded FIFOs that feed the cache's single
// background worker: one for named-region add jobs (removes run inline on
// the caller and never pass through a queue), one for completed-translation
// write jobs. Both share this same shape; priority
// between them (named-region jobs drained before compile jobs) is a policy
// the worker applies across two FIFO instances, not something either queue
// knows about itself.
package queue

import (
	"sync"
	"sync/atomic"
)

// FIFO is a bounded, blocking-push FIFO with a lock-free length counter so
// a worker can poll "is there anything to do" across several queues
// without taking a mutex on each one (the mirror of chancacher's buffered
// channel plus disk-backed overflow, simplified here since compile results
// and region jobs are values, not a byte stream to be persisted).
type FIFO[T any] struct {
	mu     sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items  []T
	cap    int
	closed bool
	count  atomic.Int64
}

// New returns an empty FIFO that blocks pushers once it holds capacity
// items.
func New[T any](capacity int) *FIFO[T] {
	q := &FIFO[T]{cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues v, blocking while the queue is at capacity. It returns
// false without enqueuing if the queue has been closed.
func (q *FIFO[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && len(q.items) >= q.cap {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.count.Add(1)
	q.notEmpty.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and
// drained, in which case ok is false.
func (q *FIFO[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return v, false
		}
		q.notEmpty.Wait()
	}
	v, q.items = q.items[0], q.items[1:]
	q.count.Add(-1)
	q.notFull.Signal()
	return v, true
}

// TryPop pops without blocking, returning ok=false if the queue is empty.
func (q *FIFO[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return v, false
	}
	v, q.items = q.items[0], q.items[1:]
	q.count.Add(-1)
	q.notFull.Signal()
	return v, true
}

// Len reports the approximate queue depth without taking the lock. Safe
// for a worker to poll in a tight loop when deciding which of several
// queues to service next.
func (q *FIFO[T]) Len() int {
	return int(q.count.Load())
}

// Close marks the queue closed, waking every blocked Push and Pop. Items
// already enqueued remain poppable until drained.
func (q *FIFO[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
