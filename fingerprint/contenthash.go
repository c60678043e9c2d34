/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package fingerprint

import "github.com/cespare/xxhash/v2"

// ContentHash computes the 64-bit content hash used both for a code record's
// stored host/guest hashes and for integrity re-checks at fetch time. It is
// intentionally just xxhash: the cache treats the hash function as a
// black-box collision-resistant digest, not a cryptographic primitive.
func ContentHash(b []byte) uint64 {
	return xxhash.Sum64(b)
}
