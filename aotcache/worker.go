/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

// workerLoop is the single dedicated background thread (§5). It drains the
// named-region queue strictly ahead of the compile queue on every wake-up,
// so a translation enqueued after an add never lands on a region that
// hasn't loaded yet. It exits once Shutdown has set shuttingDown and both
// queues have drained.
func (s *Service) workerLoop() {
	defer close(s.workerDone)
	for {
		if job, ok := s.namedQ.TryPop(); ok {
			s.runAdd(job)
			continue
		}
		if job, ok := s.compileQ.TryPop(); ok {
			s.handleTranslationJob(job)
			continue
		}
		if s.shuttingDown.Load() {
			return
		}

		s.wakeMu.Lock()
		for s.namedQ.Len() == 0 && s.compileQ.Len() == 0 && !s.shuttingDown.Load() {
			s.wakeCond.Wait()
		}
		s.wakeMu.Unlock()
	}
}
