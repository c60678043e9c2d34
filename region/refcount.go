/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package region

import "sync"

// RefCount is the reference-counted mutex described in the design notes: a
// count plus a condition variable standing in for a bespoke lock whose
// "shared" mode means outstanding work (a load in flight, a write enqueued)
// and whose "exclusive" mode means waiting for every bit of that work to
// finish. It backs both a region's named-job counter (loading/holding an
// add reference) and its pending-writes counter.
//
// Unlike a general-purpose RWMutex, shared acquisitions here model a count
// of independent outstanding jobs rather than concurrent readers of shared
// state, and exclusive acquisition is a drain, not a write lock: once
// granted, no new shared holder can appear until it is released.
type RefCount struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
	excl bool
}

// NewRefCount returns a RefCount with zero outstanding holders.
func NewRefCount() *RefCount {
	rc := &RefCount{}
	rc.cond = sync.NewCond(&rc.mu)
	return rc
}

// AcquireShared registers one more unit of outstanding work. It blocks if a
// drain (AcquireExclusive) is in progress.
func (rc *RefCount) AcquireShared() {
	rc.mu.Lock()
	for rc.excl {
		rc.cond.Wait()
	}
	rc.n++
	rc.mu.Unlock()
}

// ReleaseShared marks one unit of outstanding work done, waking any drain
// waiting for the count to reach zero.
func (rc *RefCount) ReleaseShared() {
	rc.mu.Lock()
	rc.n--
	if rc.n < 0 {
		rc.n = 0
	}
	if rc.n == 0 {
		rc.cond.Broadcast()
	}
	rc.mu.Unlock()
}

// AcquireExclusive blocks until no outstanding work remains, then holds the
// drained state so new shared acquisitions queue behind it. Used by remove
// to wait for a load or for every enqueued write to finish.
func (rc *RefCount) AcquireExclusive() {
	rc.mu.Lock()
	for rc.excl {
		rc.cond.Wait()
	}
	rc.excl = true
	for rc.n > 0 {
		rc.cond.Wait()
	}
	rc.mu.Unlock()
}

// ReleaseExclusive ends a drain, allowing shared acquisitions to resume.
func (rc *RefCount) ReleaseExclusive() {
	rc.mu.Lock()
	rc.excl = false
	rc.cond.Broadcast()
	rc.mu.Unlock()
}

// Count reports the current number of outstanding shared holders. Racy by
// nature: the count can change as soon as it is returned.
func (rc *RefCount) Count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.n
}
