/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package filelock

import "github.com/gofrs/flock"

// GuardCreate takes a short-lived, path-keyed lock around fn, which is
// expected to create and write the initial header of a brand-new region
// cache file. Unlike Exclusive/Shared, which operate on an FD the caller
// keeps for the life of a writer, this lock is released as soon as fn
// returns: its only job is to make goroutines or cooperating processes that
// race to create the same path take turns at O_CREAT|O_EXCL and the header
// write. Code that opens an already-existing file does not take this lock,
// so it does not keep a reader from seeing a header that is still being
// written.
func GuardCreate(path string, fn func() error) error {
	fl := flock.New(path + ".initlock")
	defer fl.Close()
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}
