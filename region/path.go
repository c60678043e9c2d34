/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package region

import (
	"fmt"
	"path/filepath"
)

// CachePath derives the on-disk file name for a region: the backing
// executable's basename, the config fingerprint's hash in hex, and the
// file-offset in hex. Collisions across distinct guest files that happen to
// share a basename are possible; they are resolved by the header comparison
// performed on load, never by the name alone.
func CachePath(cacheDir, filename string, fp uint64, offset uint64) string {
	base := filepath.Base(filename)
	return filepath.Join(cacheDir, fmt.Sprintf("%s-%016x-%x.code", base, fp, offset))
}
