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

	"github.com/stretchr/testify/require"

	"github.com/nyxbt/aotcache/fingerprint"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		FP:            fingerprint.New(3, fingerprint.FlagSMCDetection, fingerprint.OptSpeed),
		OrigBase:      0x40000000,
		OrigOffset:    0x1000,
		TotalCodeSize: 128,
		NumRecords:    2,
		NumRelocTo:    1,
		TotalReloc:    3,
	}
	buf := h.Marshal()
	require.Len(t, buf, HeaderSize)
	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestPrefixRoundTrip(t *testing.T) {
	p := Prefix{RIPOffset: 0x10, HostHash: 1, HostLen: 8, NumRelocs: 1, RelocSize: RelocEntrySize, GuestHash: 2, GuestLen: 3}
	buf := p.Marshal()
	got, err := UnmarshalPrefix(buf)
	if err != nil {
		t.Fatalf("UnmarshalPrefix: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: %+v != %+v", got, p)
	}
}

func TestRelocRoundTrip(t *testing.T) {
	for _, r := range []Reloc{
		{Kind: NamedSymbolMove, Primary: 1, Addend: 0, InstrOffset: 4},
		{Kind: NamedSymbolLiteral, Primary: 2, Addend: -8, InstrOffset: 8},
		{Kind: NamedThunkMove, Primary: 3, Addend: 0, InstrOffset: 12},
		{Kind: GuestRIPMove, Primary: 0x70000200, Addend: 0, InstrOffset: 16},
	} {
		buf := r.Marshal()
		require.Len(t, buf, RelocEntrySize)
		got, err := UnmarshalReloc(buf)
		require.NoError(t, err)
		require.Equalf(t, r, got, "round trip mismatch for %v", r.Kind)
	}
}

func TestMarshalUnmarshalRelocs(t *testing.T) {
	rs := []Reloc{
		{Kind: NamedSymbolMove, Primary: 1},
		{Kind: GuestRIPMove, Primary: 2},
	}
	buf := MarshalRelocs(rs)
	got, err := UnmarshalRelocs(buf, uint64(len(rs)))
	if err != nil {
		t.Fatalf("UnmarshalRelocs: %v", err)
	}
	if len(got) != len(rs) {
		t.Fatalf("got %d relocs, want %d", len(got), len(rs))
	}
	for i := range rs {
		if got[i] != rs[i] {
			t.Fatalf("reloc %d mismatch: %v != %v", i, got[i], rs[i])
		}
	}
}

func TestKindString(t *testing.T) {
	if GuestRIPMove.String() != "GUEST_RIP_MOVE" {
		t.Fatalf("String() = %q", GuestRIPMove.String())
	}
	if Kind(99).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for invalid kind")
	}
}
