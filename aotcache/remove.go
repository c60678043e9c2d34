/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import "os"

// RemoveNamedRegion tears a region down, blocking until its load (if still
// in flight) and every write targeting it have drained (§4.3, §6 op 2).
// Unlike an add, a remove runs entirely on the calling goroutine rather
// than through the named-region queue: the source's queued-remove path is
// dead code (§9 open question 2), and executing inline is simpler to
// reason about while producing the same observable drain-before-remove
// guarantee.
func (s *Service) RemoveNamedRegion(base, length uint64) error {
	s.regionMu.Lock()
	defer s.regionMu.Unlock()

	s.compileAdmitMu.Lock()
	defer s.compileAdmitMu.Unlock()

	e, ok := s.current.Get(base)
	if !ok {
		return ErrNoSuchRange
	}

	if e.NamedJob.Count() > 0 {
		e.NamedJob.AcquireExclusive()
		e.NamedJob.ReleaseExclusive()
	}
	e.Latch.Wait()

	if e.PendingWrites.Count() > 0 {
		e.PendingWrites.AcquireExclusive()
		e.PendingWrites.ReleaseExclusive()
	}

	hdr := e.CurrentHeader()
	if hdr.NumRecords == 0 && hdr.NumRelocTo == 0 {
		if err := os.Remove(e.CachePath); err != nil && !os.IsNotExist(err) {
			s.log.Warnf("aotcache: removing %q: %v", e.CachePath, err)
		}
	}

	e.Close()
	s.current.Delete(base)
	s.original.Delete(e.OriginalBase)
	return nil
}
