/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package filelock provides the per-FD whole-file advisory lock used to
// coordinate cooperating processes writing to the same region cache file.
// The lock is attached to the open file description, so it is inherited
// across fork and (absent O_CLOEXEC) across exec, and is released the
// moment every descriptor referring to that description is closed.
package filelock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Exclusive acquires a blocking exclusive (write) lock over the whole file
// backing f. It is held while a region's serialize FD is open for append.
func Exclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

// TryExclusive attempts a non-blocking exclusive lock, returning ok=false
// (not an error) if another description already holds it.
func TryExclusive(f *os.File) (ok bool, err error) {
	if err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Shared acquires a blocking shared (read) lock. The fetch path never takes
// this: reads only ever go through the read-only mmap view, never the FD.
func Shared(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_SH)
}

// Unlock releases whatever lock mode is currently held on f's description.
func Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
