/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package region

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nyxbt/aotcache/mmapfile"
)

// Entry is the in-memory object for one registered guest region. The
// design notes (§9) call for region entries to be stable objects referenced
// by a handle that survives map rebalancing rather than a language-level
// map iterator; ID is that handle. Current base, length and file offset are
// fixed at construction: an overmap replaces the entry wholesale rather than
// mutating one in place (§3 invariant 2). Original base and file offset
// start equal to the current ones and are replaced from the file header
// when an existing cache file is loaded.
type Entry struct {
	ID uuid.UUID

	CurrentBase       uint64
	CurrentLen        uint64
	CurrentFileOffset uint64

	OriginalBase       uint64
	OriginalLen        uint64
	OriginalFileOffset uint64

	FilePath   string // canonical path of the backing executable
	Executable bool
	CachePath  string // derived on-disk cache file path (§4.1)

	mapView *mmapfile.View

	idxMu sync.RWMutex
	index map[uint64]*Record

	servicing atomic.Bool // still_serializing; cleared irreversibly on corruption

	fdMu sync.Mutex
	fd   *os.File // serialize FD; nil when no writer currently holds the region

	NamedJob      *RefCount // shared = loading or holding an add reference
	PendingWrites *RefCount // shared = at least one write enqueued/in flight
	Latch         *Latch    // loading -> ready

	hdrMu  sync.Mutex
	Header Header
}

// New constructs a freshly-registered region entry with current==original
// addressing, an unset latch, and still_serializing true.
func New(base, length, fileOffset uint64, filePath string, executable bool, cachePath string) *Entry {
	e := &Entry{
		ID:                 uuid.New(),
		CurrentBase:        base,
		CurrentLen:         length,
		CurrentFileOffset:  fileOffset,
		OriginalBase:       base,
		OriginalLen:        length,
		OriginalFileOffset: fileOffset,
		FilePath:           filePath,
		Executable:         executable,
		CachePath:          cachePath,
		index:              make(map[uint64]*Record),
		NamedJob:           NewRefCount(),
		PendingWrites:      NewRefCount(),
		Latch:              NewLatch(),
	}
	e.servicing.Store(true)
	return e
}

// Contains reports whether a current-run address falls within this
// region's current [base, base+len) span.
func (e *Entry) Contains(addr uint64) bool {
	return addr >= e.CurrentBase && addr < e.CurrentBase+e.CurrentLen
}

// StillServicing reports whether the region remains eligible as a write
// target (§3 invariant 4).
func (e *Entry) StillServicing() bool {
	return e.servicing.Load()
}

// MarkCorrupt irreversibly stops the region from being written to again.
func (e *Entry) MarkCorrupt() {
	e.servicing.Store(false)
}

// AdoptMap installs a memory-mapped view and pre-built index produced by a
// successful load (§4.2 step 4). A nil view with a nil/empty index is the
// "fresh file, no cached records" case.
func (e *Entry) AdoptMap(view *mmapfile.View, idx map[uint64]*Record, hdr Header) {
	e.idxMu.Lock()
	if idx == nil {
		idx = make(map[uint64]*Record)
	}
	e.mapView = view
	e.index = idx
	e.idxMu.Unlock()

	e.hdrMu.Lock()
	e.Header = hdr
	e.hdrMu.Unlock()
}

// Lookup returns the record at ripOffset, if the index still has it.
func (e *Entry) Lookup(ripOffset uint64) (*Record, bool) {
	e.idxMu.RLock()
	defer e.idxMu.RUnlock()
	r, ok := e.index[ripOffset]
	return r, ok
}

// Invalidate removes ripOffset from the index after an integrity miss. The
// record is never erased from the underlying file (§3 invariant 3).
func (e *Entry) Invalidate(ripOffset uint64) {
	e.idxMu.Lock()
	delete(e.index, ripOffset)
	e.idxMu.Unlock()
}

// InsertIndex adds or replaces a record in the lookup index.
func (e *Entry) InsertIndex(ripOffset uint64, rec *Record) {
	e.idxMu.Lock()
	e.index[ripOffset] = rec
	e.idxMu.Unlock()
}

// IndexLen reports the number of live records in the index.
func (e *Entry) IndexLen() int {
	e.idxMu.RLock()
	defer e.idxMu.RUnlock()
	return len(e.index)
}

// CurrentHeader returns a copy of the in-memory header.
func (e *Entry) CurrentHeader() Header {
	e.hdrMu.Lock()
	defer e.hdrMu.Unlock()
	return e.Header
}

// SetHeader replaces the in-memory header, e.g. after reading a peer
// writer's update from disk or after appending a record of our own.
func (e *Entry) SetHeader(h Header) {
	e.hdrMu.Lock()
	e.Header = h
	e.hdrMu.Unlock()
}

// SerializeFD returns the currently-open serialize FD, or nil. Safe to call
// without holding the FD lock; for anything beyond an advisory peek use
// WithFDLock instead.
func (e *Entry) SerializeFD() *os.File {
	e.fdMu.Lock()
	defer e.fdMu.Unlock()
	return e.fd
}

// WithFDLock runs fn while holding the FD mutex, guaranteeing at most one
// goroutine opens, writes to, or closes the serialize FD for this region at
// a time. The single dedicated worker thread is the only writer in normal
// operation; the mutex exists to keep that invariant true even if the
// caller is reorganized to allow concurrent writers per region later. fn
// receives the FD under lock and a setter to install a replacement; neither
// SerializeFD nor a hypothetical SetSerializeFD may be called from within fn
// without deadlocking, so the setter is handed in directly instead.
func (e *Entry) WithFDLock(fn func(fd *os.File, setFD func(*os.File)) error) error {
	e.fdMu.Lock()
	defer e.fdMu.Unlock()
	return fn(e.fd, func(f *os.File) { e.fd = f })
}

// MapView returns the region's read-only memory map, or nil if unloaded.
func (e *Entry) MapView() *mmapfile.View {
	return e.mapView
}

// Close tears the entry down: closes the serialize FD (releasing its
// advisory lock) and unmaps the file view. Safe to call once per entry,
// typically from a remove job or from closure on shutdown.
func (e *Entry) Close() {
	e.fdMu.Lock()
	if e.fd != nil {
		e.fd.Close()
		e.fd = nil
	}
	e.fdMu.Unlock()

	if e.mapView != nil {
		e.mapView.Close()
		e.mapView = nil
	}
}
