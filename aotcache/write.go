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

	"github.com/nyxbt/aotcache/filelock"
	"github.com/nyxbt/aotcache/fingerprint"
	"github.com/nyxbt/aotcache/region"
)

// SubmitTranslation enqueues one completed translation for asynchronous
// write (§4.5, §6 op 3). The owning region is resolved through F at
// enqueue time and carried with the job, so the worker never needs to
// repeat the lookup nor hold F across the write.
func (s *Service) SubmitTranslation(data AOTData) error {
	if s.shuttingDown.Load() {
		return ErrShutdown
	}

	s.compileAdmitMu.Lock()
	defer s.compileAdmitMu.Unlock()

	e, ok := s.current.Owning(data.GuestRIP)
	if !ok {
		return ErrNoSuchRange
	}

	e.PendingWrites.AcquireShared()
	if !s.pushCompile(translationJob{entry: e, data: data}) {
		e.PendingWrites.ReleaseShared()
		return ErrShutdown
	}
	return nil
}

// handleTranslationJob runs one write job to completion (success, drop, or
// failure) and always releases the pending-writes hold taken at enqueue,
// closing the serialize FD once no writer holds the region any longer.
func (s *Service) handleTranslationJob(job translationJob) {
	s.writeOne(job.entry, job.data)
	job.entry.PendingWrites.ReleaseShared()
	if job.entry.PendingWrites.Count() == 0 {
		s.closeSerializeFD(job.entry)
	}
}

// writeOne is §4.5 steps 1-9.
func (s *Service) writeOne(e *region.Entry, data AOTData) {
	if !e.StillServicing() {
		return // step 1
	}

	offset := data.GuestRIP - e.CurrentBase
	if _, exists := e.Lookup(offset); exists {
		return // step 2: already persisted
	}

	for _, r := range data.Relocs { // step 3: relocation pre-filter
		if r.Kind == region.GuestRIPMove && !e.Contains(r.Primary) {
			s.log.Infof("aotcache: dropping translation at 0x%x: escape relocation to 0x%x", data.GuestRIP, r.Primary)
			return
		}
	}

	guestHash := fingerprint.ContentHash(data.GuestCode) // step 4
	hostHash := fingerprint.ContentHash(data.HostCode)

	if err := s.ensureSerializeFD(e); err != nil { // step 5
		s.log.Warnf("aotcache: %q: opening serialize FD: %v", e.CachePath, err)
		e.MarkCorrupt()
		return
	}

	hdr, ok := s.readAndReconcileHeader(e) // step 6
	if !ok {
		return
	}

	relocs := make([]region.Reloc, len(data.Relocs)) // step 7
	copy(relocs, data.Relocs)
	for i := range relocs {
		if relocs[i].Kind == region.GuestRIPMove {
			relocs[i].Primary = (relocs[i].Primary - e.CurrentBase) + e.OriginalBase
		}
	}

	relocBytes := region.MarshalRelocs(relocs)
	prefix := region.Prefix{
		RIPOffset: offset,
		HostHash:  hostHash,
		HostLen:   uint64(len(data.HostCode)),
		NumRelocs: uint64(len(relocs)),
		RelocSize: uint64(len(relocBytes)),
		GuestHash: guestHash,
		GuestLen:  uint64(len(data.GuestCode)),
	}
	rec := region.BuildRecordBytes(prefix, data.HostCode, relocs)
	newHdr := hdr.AddRecord(prefix.HostLen, prefix.RelocSize, prefix.NumRelocs)

	err := e.WithFDLock(func(fd *os.File, setFD func(*os.File)) error { // step 8-9
		if fd == nil {
			return os.ErrClosed
		}
		if _, err := fd.Write(rec); err != nil { // append-mode FD
			return err
		}
		if err := fd.Sync(); err != nil {
			return err
		}
		// os.File refuses WriteAt on an O_APPEND descriptor, so the header
		// is rewritten in place through a second, non-append descriptor.
		hf, err := os.OpenFile(e.CachePath, os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		defer hf.Close()
		if _, err := hf.WriteAt(newHdr.Marshal(), 0); err != nil {
			return err
		}
		return hf.Sync()
	})
	if err != nil {
		s.log.Warnf("aotcache: %q: append failed: %v", e.CachePath, err)
		e.MarkCorrupt()
		return
	}

	e.SetHeader(newHdr)
	e.InsertIndex(offset, &region.Record{Prefix: prefix, HostCode: data.HostCode, Relocs: relocBytes})
}

// ensureSerializeFD opens and locks the region's serialize FD if one isn't
// already held (§4.5 step 5). Go's runtime already opens files close-on-
// exec by default, which is exactly the O_CLOEXEC the step calls for: the
// fork/exec lifecycle hooks (lifecycle.go) are what keep this FD from
// surviving into a forked child, not this flag.
func (s *Service) ensureSerializeFD(e *region.Entry) error {
	if e.SerializeFD() != nil {
		return nil
	}
	return e.WithFDLock(func(fd *os.File, setFD func(*os.File)) error {
		if fd != nil {
			return nil // raced with another caller; already open
		}
		f, err := os.OpenFile(e.CachePath, os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		if err := filelock.Exclusive(f); err != nil {
			f.Close()
			return err
		}
		setFD(f)
		return nil
	})
}

// readAndReconcileHeader is §4.5 step 6: read the on-disk header and
// compare its fingerprint to the one this service is running with. A
// mismatch means a peer process rewrote the file under a different
// configuration since this entry was loaded; the write is aborted rather
// than risk corrupting a file built for an incompatible layout.
func (s *Service) readAndReconcileHeader(e *region.Entry) (region.Header, bool) {
	var hdr region.Header
	var ok bool
	e.WithFDLock(func(fd *os.File, setFD func(*os.File)) error {
		if fd == nil {
			return os.ErrClosed
		}
		buf := make([]byte, region.HeaderSize)
		if _, err := fd.ReadAt(buf, 0); err != nil {
			return err
		}
		h, err := region.UnmarshalHeader(buf)
		if err != nil {
			return err
		}
		if !h.FP.Equal(s.fp) {
			return nil // leaves ok=false below
		}
		hdr, ok = h, true
		return nil
	})
	if ok {
		e.SetHeader(hdr)
	} else {
		s.log.Infof("aotcache: %q: header fingerprint no longer matches, aborting write", e.CachePath)
	}
	return hdr, ok
}

// closeSerializeFD closes and unlocks the region's serialize FD once the
// pending-writes counter has drained to zero (§3: "closed when no writer
// holds the region").
func (s *Service) closeSerializeFD(e *region.Entry) {
	e.WithFDLock(func(fd *os.File, setFD func(*os.File)) error {
		if fd == nil {
			return nil
		}
		filelock.Unlock(fd)
		fd.Close()
		setFD(nil)
		return nil
	})
}
