/*************************************************************************
 * Copyright 2019 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mmapfile provides a read-only memory-mapped view of a region
// cache file. A region entry's fetch path reads code records directly out
// of this view; nothing in the cache ever writes through it, so the
// mapping is PROT_READ only. It is advised MADV_DONTDUMP, to keep
// translated guest code out of core dumps, and MADV_RANDOM, which turns
// off read-ahead.
package mmapfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrMapClosed         = errors.New("file mapping closed")
	ErrInvalidFileHandle = errors.New("invalid file handle")
)

// View is a read-only memory map of an entire region cache file, taken once
// at load time (§4.2). It is not kept in sync with appends made by this or
// any other process after the map is established; a region's lookup index
// only ever references record offsets that existed at load time.
type View struct {
	buf  []byte
	open bool
}

// Map establishes a read-only view over the current contents of f. The
// file's size at the moment of the call becomes the size of the view.
func Map(f *os.File) (*View, error) {
	if f == nil {
		return nil, ErrInvalidFileHandle
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	sz := fi.Size()
	if sz == 0 {
		return &View{buf: nil, open: true}, nil
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, int(sz), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(buf, unix.MADV_DONTDUMP)
	_ = unix.Madvise(buf, unix.MADV_RANDOM)
	return &View{buf: buf, open: true}, nil
}

// Bytes returns the mapped region. The slice is only valid until Close.
func (v *View) Bytes() []byte {
	if v == nil || !v.open {
		return nil
	}
	return v.buf
}

// Size returns the size of the mapped region in bytes.
func (v *View) Size() int64 {
	if v == nil {
		return 0
	}
	return int64(len(v.buf))
}

// Close unmaps the view. It is idempotent-safe to call once; a second call
// returns ErrMapClosed.
func (v *View) Close() error {
	if v == nil || !v.open {
		return ErrMapClosed
	}
	v.open = false
	if v.buf == nil {
		return nil
	}
	buf := v.buf
	v.buf = nil
	return unix.Munmap(buf)
}
