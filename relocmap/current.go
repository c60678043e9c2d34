/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package relocmap

import "github.com/nyxbt/aotcache/region"

// Current is the current-address map F, keyed by current_base.
type Current struct{ *Map }

func NewCurrent() *Current { return &Current{Map: New()} }

// Owning returns the unique region entry whose current [base, base+len)
// span contains addr. This is the lookup fetch and the write path use to
// answer "which region owns this current RIP".
func (c *Current) Owning(addr uint64) (*region.Entry, bool) {
	return c.containing(addr, func(e *region.Entry, addr uint64) bool {
		return e.Contains(addr)
	})
}

// InsertOrEvict implements the overlapping-add decision of §4.2 step 2
// atomically under one hold of F's lock: if no entry currently sits at
// base, e is simply inserted. If one does, and it is both fully loaded
// (latch ready) and holds no outstanding named-job reference, it is
// evicted (returned to the caller to close down) and e replaces it. If the
// existing entry is still loading, the insert is refused entirely and e is
// handed back as rejected — §9 open question 1 records this as "logged,
// not enforced" rather than blocking or tearing down the in-flight load.
func (c *Current) InsertOrEvict(base uint64, e *region.Entry) (evicted *region.Entry, rejected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.bt.Get(item{key: base})
	if ok {
		if !existing.entry.Latch.Ready() || existing.entry.NamedJob.Count() > 0 {
			return nil, true
		}
		evicted = existing.entry
	}
	c.bt.ReplaceOrInsert(item{key: base, entry: e})
	return evicted, false
}
