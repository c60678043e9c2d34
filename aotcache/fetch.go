/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"github.com/nyxbt/aotcache/fingerprint"
	"github.com/nyxbt/aotcache/region"
)

// CodeRecord is the borrowed view Fetch returns: host code and relocations
// point into the owning region's memory map (for a record written during
// this run, at the slices submitted with it) and are valid only until that
// region is removed (§6 op 4).
type CodeRecord struct {
	Prefix   region.Prefix
	HostCode []byte
	Relocs   []byte
}

// Fetch looks up a current guest RIP and returns its cached translation,
// if any (§4.4, §6 op 4). It is called synchronously by translator threads
// before compiling a new guest RIP.
func (s *Service) Fetch(rip uint64) (CodeRecord, bool) {
	s.regionMu.RLock()
	defer s.regionMu.RUnlock()

	e, ok := s.current.Owning(rip)
	if !ok {
		return CodeRecord{}, false
	}

	if !e.Latch.Ready() {
		e.Latch.Wait()
	}

	offset := rip - e.CurrentBase
	rec, ok := e.Lookup(offset)
	if !ok {
		return CodeRecord{}, false
	}

	// Recompute the guest-code hash over the bytes currently resident at
	// rip and compare to what was stored. The host-code hash is preserved
	// in the record (§9) but is not re-checked here; the guest-code hash
	// is the primary defence against stale translations.
	guestBytes := s.cfg.ReadGuestMemory(rip, rec.Prefix.GuestLen)
	if guestBytes == nil || fingerprint.ContentHash(guestBytes) != rec.Prefix.GuestHash {
		s.log.Infof("aotcache: integrity miss at 0x%x, dropping cached record", rip)
		e.Invalidate(offset)
		return CodeRecord{}, false
	}

	return CodeRecord{Prefix: rec.Prefix, HostCode: rec.HostCode, Relocs: rec.Relocs}, true
}
