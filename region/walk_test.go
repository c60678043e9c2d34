/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package region

import (
	"testing"

	"github.com/nyxbt/aotcache/fingerprint"
)

func TestBuildIndexWalksRecords(t *testing.T) {
	hdr := Header{FP: fingerprint.New(1, 0, fingerprint.OptNone)}

	rec1 := BuildRecordBytes(Prefix{RIPOffset: 0x10, GuestLen: 3}, []byte{0x90, 0x90, 0xC3}, nil)
	rec2 := BuildRecordBytes(Prefix{RIPOffset: 0x20, GuestLen: 2}, []byte{0xC3, 0xC3}, []Reloc{{Kind: NamedThunkMove, Primary: 9}})

	buf := append([]byte{}, make([]byte, HeaderSize)...)
	buf = append(buf, rec1...)
	buf = append(buf, rec2...)

	hdr.NumRecords = 2
	hdr.TotalCodeSize = 3 + 2

	idx, corrupt := BuildIndex(buf, hdr)
	if corrupt {
		t.Fatalf("unexpected corruption")
	}
	if len(idx) != 2 {
		t.Fatalf("got %d index entries, want 2", len(idx))
	}
	r1, ok := idx[0x10]
	if !ok || len(r1.HostCode) != 3 {
		t.Fatalf("record at 0x10 missing or wrong length: %+v", r1)
	}
	r2, ok := idx[0x20]
	if !ok || len(r2.HostCode) != 2 || len(r2.Relocs) != RelocEntrySize {
		t.Fatalf("record at 0x20 missing or malformed: %+v", r2)
	}
}

func TestBuildIndexDetectsCorruption(t *testing.T) {
	hdr := Header{FP: fingerprint.New(1, 0, fingerprint.OptNone), NumRecords: 1, TotalCodeSize: 1}

	// Encodes HostLen=100 while the header's TotalCodeSize is 1; this
	// must be treated as corruption (§4.2 step 4, §7) rather than panic
	// or silently truncate.
	bogus := BuildRecordBytes(Prefix{RIPOffset: 0, GuestLen: 0}, make([]byte, 100), nil)
	bogus[PrefixSize+1] = 0 // still consistent with itself, so craft header mismatch instead

	buf := append(make([]byte, HeaderSize), bogus...)
	hdr.TotalCodeSize = 1 // smaller than the 100-byte HostLen encoded above

	_, corrupt := BuildIndex(buf, hdr)
	if !corrupt {
		t.Fatalf("expected corruption to be detected")
	}
}

func TestAddRecordPreservesOrigBase(t *testing.T) {
	h := Header{OrigBase: 0x70000000}
	h2 := h.AddRecord(8, 0, 1)
	if h2.OrigBase != h.OrigBase {
		t.Fatalf("AddRecord must not touch OrigBase: got %x, want %x", h2.OrigBase, h.OrigBase)
	}
	if h2.NumRecords != 1 || h2.TotalCodeSize != 8 || h2.TotalReloc != 1 {
		t.Fatalf("AddRecord bookkeeping wrong: %+v", h2)
	}
}

func TestAddInboundReloc(t *testing.T) {
	h := Header{}
	h = h.AddInboundReloc()
	h = h.AddInboundReloc()
	if h.NumRelocTo != 2 {
		t.Fatalf("NumRelocTo = %d, want 2", h.NumRelocTo)
	}
}
