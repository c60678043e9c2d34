/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"github.com/inhies/go-bytesize"
)

// Stats is a point-in-time snapshot of cache occupancy, for diagnostics.
// Nothing in the core six operations depends on it.
type Stats struct {
	Regions     int
	Records     uint64
	HostCodeLen uint64
}

// String renders HostCodeLen in human-readable form, e.g. "128.00KB".
func (s Stats) String() string {
	return bytesize.New(float64(s.HostCodeLen)).String()
}

// Stats walks every registered region and totals its record count and
// recorded host-code bytes. Takes a momentary read lock over the region
// set; cheap enough to call from a logging tick.
func (s *Service) Stats() Stats {
	s.regionMu.RLock()
	defer s.regionMu.RUnlock()

	var out Stats
	for _, e := range s.current.Entries() {
		hdr := e.CurrentHeader()
		out.Regions++
		out.Records += hdr.NumRecords
		out.HostCodeLen += hdr.TotalCodeSize
	}
	return out
}
