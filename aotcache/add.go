/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"errors"
	"io"
	"os"

	"github.com/nyxbt/aotcache/filelock"
	"github.com/nyxbt/aotcache/mmapfile"
	"github.com/nyxbt/aotcache/region"
)

// ErrOverlapWhileLoading is returned by AddNamedRegion when the existing
// entry at base is still loading. §9 open question 1 leaves the policy
// here unresolved ("logged, not enforced" in the observed behavior); this
// implementation surfaces it as an error instead of silently dropping the
// add, so a caller that cares can retry or escalate, while one that
// doesn't can ignore the return value exactly as the original did.
var ErrOverlapWhileLoading = errors.New("aotcache: region at that base is still loading")

// AddNamedRegion registers a guest executable region (§4.2, §6 op 1). Steps
// 1-3 run synchronously on the calling goroutine; the load of steps 4-6
// (opening or creating the backing file, building the lookup index) runs on
// the worker after this call returns, so AddNamedRegion may return before the region
// is fetchable — callers that need to block for that use entry.Latch via
// a region lookup, or simply call Fetch, which blocks on the latch itself.
func (s *Service) AddNamedRegion(base, size, fileOffset uint64, filename string, executable bool) error {
	if s.shuttingDown.Load() {
		return ErrShutdown
	}

	// Region-modifying is held exclusive for this synchronous portion
	// only (§5: "held exclusive around add/remove"); the worker's load
	// in runAdd happens after this call returns and does not hold it.
	s.regionMu.Lock()
	defer s.regionMu.Unlock()

	cachePath := region.CachePath(s.cfg.CacheDir, filename, s.fp.Hash(), fileOffset)
	e := region.New(base, size, fileOffset, filename, executable, cachePath)
	e.NamedJob.AcquireShared()

	evicted, rejected := s.current.InsertOrEvict(base, e)
	if rejected {
		e.NamedJob.ReleaseShared()
		s.log.Warnf("aotcache: add at 0x%x rejected, existing region still loading", base)
		return ErrOverlapWhileLoading
	}
	if evicted != nil {
		s.original.Delete(evicted.OriginalBase)
		evicted.Close()
		s.log.Infof("aotcache: overmap at 0x%x evicted region for %q", base, evicted.FilePath)
	}

	if !s.pushNamed(namedJob{entry: e}) {
		// Queue closed underneath us (shutdown raced the add); undo the
		// F insert and the shared hold we just took.
		s.current.Delete(base)
		e.NamedJob.ReleaseShared()
		return ErrShutdown
	}
	return nil
}

// runAdd is steps 4-6 of §4.2, executed by the worker outside the F lock.
func (s *Service) runAdd(job namedJob) {
	e := job.entry
	defer func() {
		e.NamedJob.ReleaseShared()
		e.Latch.Trigger()
	}()

	f, err := os.OpenFile(e.CachePath, os.O_RDWR, 0o644)
	switch {
	case err == nil:
		s.loadExisting(e, f)
	case errors.Is(err, os.ErrNotExist) && s.cfg.AllowWrite:
		s.createFresh(e)
	case errors.Is(err, os.ErrNotExist):
		// Read-only process and no file yet: the region simply has no
		// cached records this run. still_serializing stays true, so a
		// write gets past step 1 of §4.5 and fails at step 5: the
		// serialize FD is opened O_RDWR without O_CREATE, which fails
		// against the nonexistent path, and the write path treats that
		// as an FD failure.
	default:
		s.log.Warnf("aotcache: opening %q: %v", e.CachePath, err)
	}

	s.original.Insert(e.OriginalBase, e)
}

// loadExisting implements §4.2 step 4: read the header, and if the
// fingerprint matches and the file holds data, map it and build the index.
func (s *Service) loadExisting(e *region.Entry, f *os.File) {
	defer f.Close()

	hdrBuf := make([]byte, region.HeaderSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		s.log.Warnf("aotcache: %q: short header: %v", e.CachePath, err)
		e.MarkCorrupt()
		return
	}
	hdr, err := region.UnmarshalHeader(hdrBuf)
	if err != nil {
		s.log.Warnf("aotcache: %q: %v", e.CachePath, err)
		e.MarkCorrupt()
		return
	}

	if !hdr.FP.Equal(s.fp) {
		// Config mismatch (§7): treat as fresh. The file is left alone
		// on disk (it may belong to a cooperating process running a
		// different configuration); this entry just never maps it.
		s.log.Infof("aotcache: %q: fingerprint mismatch, treating as fresh", e.CachePath)
		return
	}

	e.OriginalBase = hdr.OrigBase
	e.OriginalFileOffset = hdr.OrigOffset
	e.SetHeader(hdr)

	if hdr.TotalCodeSize == 0 {
		return
	}

	view, err := mmapfile.Map(f)
	if err != nil {
		s.log.Warnf("aotcache: %q: mmap: %v", e.CachePath, err)
		e.MarkCorrupt()
		return
	}
	idx, corrupt := region.BuildIndex(view.Bytes(), hdr)
	if corrupt {
		s.log.Warnf("aotcache: %q: corrupt record table", e.CachePath)
		view.Close()
		e.MarkCorrupt()
		return
	}
	e.AdoptMap(view, idx, hdr)
}

// createFresh implements §4.2 step 5: create the file exclusively and
// write just the header. A concurrent cooperating process racing on the
// same path loses O_EXCL and simply shares the file on its next open.
func (s *Service) createFresh(e *region.Entry) {
	hdr := region.Header{FP: s.fp, OrigBase: e.OriginalBase, OrigOffset: e.OriginalFileOffset}
	err := filelock.GuardCreate(e.CachePath, func() error {
		f, err := os.OpenFile(e.CachePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				return nil // a peer won the race; nothing to do
			}
			return err
		}
		defer f.Close()
		if err := filelock.Exclusive(f); err != nil {
			return err
		}
		defer filelock.Unlock(f)
		_, err = f.Write(hdr.Marshal())
		return err
	})
	if err != nil {
		s.log.Warnf("aotcache: creating %q: %v", e.CachePath, err)
		return
	}
	e.SetHeader(hdr)
}
