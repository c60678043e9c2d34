/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"os"

	"github.com/nyxbt/aotcache/queue"
	"github.com/nyxbt/aotcache/region"
)

// Shutdown drains both queues, waits for the worker to exit, and runs
// closure on every remaining region (§4.7, §6 op 6).
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.shuttingDown.Store(true)
		s.namedQ.Close()
		s.compileQ.Close()
		s.wake()
		<-s.workerDone
		s.closeEverything()
	})
}

func (s *Service) closeEverything() {
	for _, e := range s.current.Entries() {
		s.runClosure(e)
	}
}

// runClosure is §4.7: delete the file if it carries zero records and zero
// inbound relocations, otherwise keep it; either way close the entry's
// serialize FD and unmap its view. The entry is not removed from F or G.
func (s *Service) runClosure(e *region.Entry) {
	hdr := e.CurrentHeader()
	if hdr.NumRecords == 0 && hdr.NumRelocTo == 0 {
		if err := os.Remove(e.CachePath); err != nil && !os.IsNotExist(err) {
			s.log.Warnf("aotcache: removing %q: %v", e.CachePath, err)
		}
	}
	e.Close()
}

// lockOrdered acquires every lock in the system in the fixed order §5
// mandates: region-modifying, working (compile-queue admission), queue
// (F then G), worker-event. This order is the one place lock-order
// violation would be catastrophic, so fork and exec preparation are the
// only callers permitted to acquire locks out of their normal nesting.
func (s *Service) lockOrdered() {
	s.regionMu.Lock()
	s.compileAdmitMu.Lock()
	s.current.Lock()
	s.original.Lock()
	s.wakeMu.Lock()
}

func (s *Service) unlockOrdered() {
	s.wakeMu.Unlock()
	s.original.Unlock()
	s.current.Unlock()
	s.compileAdmitMu.Unlock()
	s.regionMu.Unlock()
}

// PrepareForFork acquires every mutex in fixed order so the child inherits
// a consistent snapshot of cache state (§5).
func (s *Service) PrepareForFork() {
	s.lockOrdered()
}

// CleanupAfterFork releases the locks taken by PrepareForFork. In the
// child, it additionally discards all in-flight queues and region state
// and closes every serialize FD, releasing the advisory locks that would
// otherwise be inherited; if ServiceAfterFork is false the cache is then
// left fully disabled in the child for the rest of that process's life.
func (s *Service) CleanupAfterFork(isChild bool) {
	if isChild {
		for _, e := range s.current.EntriesLocked() {
			e.Close()
		}
		s.current.ResetLocked()
		s.original.ResetLocked()
		s.namedQ = queue.New[namedJob](s.cfg.NamedQueueDepth)
		s.compileQ = queue.New[translationJob](s.cfg.CompileQueueDepth)
		if !ServiceAfterFork {
			s.shuttingDown.Store(true)
		}
	}
	s.unlockOrdered()
}

// PrepareForExecve acquires every mutex in fixed order ahead of an exec
// call, so that if the exec fails and this process image continues
// running, no lock was left held across the attempt.
func (s *Service) PrepareForExecve() {
	s.lockOrdered()
}

// CleanupAfterExecve releases the locks taken by PrepareForExecve. Called
// only on the path where exec failed; a successful exec replaces the
// process image and this code never runs again.
func (s *Service) CleanupAfterExecve() {
	s.unlockOrdered()
}
