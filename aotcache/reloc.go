/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

// RelocateAddr looks up a current-run guest address and translates it into
// the original address space of the region that owns it (§6 op 5). The
// translator calls this when emitting a relocation that targets another
// region, which the basic write path in §4.5 deliberately does not handle
// (a GUEST_RIP_MOVE found to escape its own region is dropped, not
// resolved). This is the cross-region helper of §4.6: on success it also
// increments the destination region's inbound-relocation counter, so
// closure (§4.3, §4.7) knows to keep that region's file even if the
// region itself never accumulates any code records of its own.
func (s *Service) RelocateAddr(rip uint64) (uint64, bool) {
	s.regionMu.RLock()
	defer s.regionMu.RUnlock()

	e, ok := s.current.Owning(rip)
	if !ok {
		// Common for .bss-like destinations that are never registered
		// as a named region; the caller skips the relocation.
		return 0, false
	}

	target := (rip - e.CurrentBase) + e.OriginalBase
	e.SetHeader(e.CurrentHeader().AddInboundReloc())
	return target, true
}

// resolveOriginal is the inverse of RelocateAddr: given an address already
// expressed in some region's original address space (as loaded back out of
// a pre-existing cache file), find the region that now owns it via G and
// recover the current-run address. This is what makes the cross-run ASLR
// round-trip testable property (§8) checkable without the translator
// having to walk every region itself; G exists for exactly this lookup
// direction (§3).
func (s *Service) resolveOriginal(origAddr uint64) (uint64, bool) {
	e, ok := s.original.Owning(origAddr)
	if !ok {
		return 0, false
	}
	return (origAddr - e.OriginalBase) + e.CurrentBase, true
}
