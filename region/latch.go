/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package region

import "sync"

// Latch is a one-shot event that transitions once from "not ready" to
// "ready" and wakes every waiter. A region starts with its latch unset
// while the worker loads it; fetch callers that arrive mid-load block on
// Wait rather than treat the region as absent.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Trigger sets the latch. Safe to call more than once; only the first call
// has any effect.
func (l *Latch) Trigger() {
	l.once.Do(func() { close(l.ch) })
}

// Wait blocks until Trigger has been called.
func (l *Latch) Wait() {
	<-l.ch
}

// Ready reports whether Trigger has already been called, without blocking.
func (l *Latch) Ready() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}
