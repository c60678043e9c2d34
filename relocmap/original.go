/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package relocmap

import "github.com/nyxbt/aotcache/region"

// Original is the original-address map G, keyed by original_base.
type Original struct{ *Map }

func NewOriginal() *Original { return &Original{Map: New()} }

// containsOriginal tests containment in a region's original-address span,
// the mirror of Entry.Contains (which tests the current-address span).
func containsOriginal(e *region.Entry, addr uint64) bool {
	return addr >= e.OriginalBase && addr < e.OriginalBase+e.OriginalLen
}

// Owning returns the unique region entry whose *original* [base, base+len)
// span contains addr. Used to resolve an address already expressed in a
// region's original address space — notably a GUEST_RIP_MOVE target loaded
// back out of a pre-existing cache file — to the region that now owns it,
// so its current-run address can be recovered across an ASLR-shuffled
// re-run (§8 scenario 4).
func (g *Original) Owning(addr uint64) (*region.Entry, bool) {
	return g.containing(addr, containsOriginal)
}
