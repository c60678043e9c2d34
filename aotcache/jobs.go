/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import "github.com/nyxbt/aotcache/region"

// namedJob is the only kind of work item the named-region queue (component
// H) carries: a fully-constructed entry whose load still needs to run.
// remove_named_region does not travel through this queue — §9's design
// notes record that the source's queued-remove path is commented out and
// dead, and this reimplementation keeps removal inline (§4.3) rather than
// resurrecting it.
type namedJob struct {
	entry *region.Entry
}

// AOTData is one completed translation handed to submit_translation. Relocs
// is the raw relocation list as the emitter produced it; GuestRIPMove
// targets are still expressed as current-run addresses and are rewritten
// into original-address space on write (§4.5 step 7).
type AOTData struct {
	GuestRIP  uint64
	HostCode  []byte
	GuestCode []byte
	Relocs    []region.Reloc
}

// translationJob pairs one AOTData with the region entry F resolved at
// enqueue time (§4.5's "region-entry iterator captured at enqueue time").
// A Go pointer is already a stable handle across map rebalancing, which is
// exactly the reimplementation §9 asks for in place of a raw iterator.
type translationJob struct {
	entry *region.Entry
	data  AOTData
}
