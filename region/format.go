/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package region implements the on-disk region cache file format and the
// in-memory region entry that tracks one guest executable region.
//
// File layout (little-endian, native alignment, no padding between
// records):
//
//	[ header: fingerprint(16B) | orig_base(8) | orig_off(8) |
//	  total_code_size(8) | num_records(8) | num_reloc_to(8) | total_reloc(8) ]
//	[ record 0: prefix(56B) | host_code[HostLen] | relocs[RelocSize] ]
//	[ record 1: ... ] ...
package region

import (
	"encoding/binary"
	"errors"

	"github.com/nyxbt/aotcache/fingerprint"
)

// HeaderSize is the fixed byte width of the file header.
const HeaderSize = fingerprint.Size + 8*6

// PrefixSize is the fixed byte width of a code record's prefix.
const PrefixSize = 8 * 7

// RelocEntrySize is the fixed byte width of every relocation entry,
// regardless of Kind: the tag plus the widest payload any kind needs.
const RelocEntrySize = 32

var (
	ErrShortHeader = errors.New("buffer too short for a region header")
	ErrShortPrefix = errors.New("buffer too short for a record prefix")
	ErrShortReloc  = errors.New("buffer too short for a relocation entry")
)

// Header is the fixed-size file header at offset 0.
type Header struct {
	FP            fingerprint.Fingerprint
	OrigBase      uint64
	OrigOffset    uint64
	TotalCodeSize uint64
	NumRecords    uint64
	NumRelocTo    uint64
	TotalReloc    uint64
}

// Marshal encodes the header into its 64-byte on-disk form.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:fingerprint.Size], h.FP.MarshalBinary())
	o := fingerprint.Size
	binary.LittleEndian.PutUint64(buf[o:o+8], h.OrigBase)
	binary.LittleEndian.PutUint64(buf[o+8:o+16], h.OrigOffset)
	binary.LittleEndian.PutUint64(buf[o+16:o+24], h.TotalCodeSize)
	binary.LittleEndian.PutUint64(buf[o+24:o+32], h.NumRecords)
	binary.LittleEndian.PutUint64(buf[o+32:o+40], h.NumRelocTo)
	binary.LittleEndian.PutUint64(buf[o+40:o+48], h.TotalReloc)
	return buf
}

// UnmarshalHeader decodes a header from its 64-byte on-disk form.
func UnmarshalHeader(buf []byte) (h Header, err error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	fp, ok := fingerprint.UnmarshalFingerprint(buf[0:fingerprint.Size])
	if !ok {
		return Header{}, ErrShortHeader
	}
	h.FP = fp
	o := fingerprint.Size
	h.OrigBase = binary.LittleEndian.Uint64(buf[o : o+8])
	h.OrigOffset = binary.LittleEndian.Uint64(buf[o+8 : o+16])
	h.TotalCodeSize = binary.LittleEndian.Uint64(buf[o+16 : o+24])
	h.NumRecords = binary.LittleEndian.Uint64(buf[o+24 : o+32])
	h.NumRelocTo = binary.LittleEndian.Uint64(buf[o+32 : o+40])
	h.TotalReloc = binary.LittleEndian.Uint64(buf[o+40 : o+48])
	return h, nil
}

// Prefix is the fixed-size preamble of a code record.
type Prefix struct {
	RIPOffset uint64 // relative to the region's original base
	HostHash  uint64
	HostLen   uint64
	NumRelocs uint64
	RelocSize uint64
	GuestHash uint64
	GuestLen  uint64
}

func (p Prefix) Marshal() []byte {
	buf := make([]byte, PrefixSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.RIPOffset)
	binary.LittleEndian.PutUint64(buf[8:16], p.HostHash)
	binary.LittleEndian.PutUint64(buf[16:24], p.HostLen)
	binary.LittleEndian.PutUint64(buf[24:32], p.NumRelocs)
	binary.LittleEndian.PutUint64(buf[32:40], p.RelocSize)
	binary.LittleEndian.PutUint64(buf[40:48], p.GuestHash)
	binary.LittleEndian.PutUint64(buf[48:56], p.GuestLen)
	return buf
}

func UnmarshalPrefix(buf []byte) (p Prefix, err error) {
	if len(buf) < PrefixSize {
		return Prefix{}, ErrShortPrefix
	}
	p.RIPOffset = binary.LittleEndian.Uint64(buf[0:8])
	p.HostHash = binary.LittleEndian.Uint64(buf[8:16])
	p.HostLen = binary.LittleEndian.Uint64(buf[16:24])
	p.NumRelocs = binary.LittleEndian.Uint64(buf[24:32])
	p.RelocSize = binary.LittleEndian.Uint64(buf[32:40])
	p.GuestHash = binary.LittleEndian.Uint64(buf[40:48])
	p.GuestLen = binary.LittleEndian.Uint64(buf[48:56])
	return p, nil
}

// Kind tags the four relocation flavors a translator can emit.
type Kind uint8

const (
	NamedSymbolMove Kind = iota
	NamedSymbolLiteral
	NamedThunkMove
	GuestRIPMove
)

func (k Kind) String() string {
	switch k {
	case NamedSymbolMove:
		return "NAMED_SYMBOL_MOVE"
	case NamedSymbolLiteral:
		return "NAMED_SYMBOL_LITERAL"
	case NamedThunkMove:
		return "NAMED_THUNK_MOVE"
	case GuestRIPMove:
		return "GUEST_RIP_MOVE"
	default:
		return "UNKNOWN"
	}
}

// Reloc is one relocation entry. Primary carries the symbol hash, thunk id,
// or (for GuestRIPMove) the target address, depending on Kind; Addend is
// only meaningful for NamedSymbolLiteral. All four kinds share the same
// fixed wire size so the record prefix's RelocSize is always
// NumRelocs*RelocEntrySize regardless of the kind mix.
type Reloc struct {
	Kind        Kind
	Primary     uint64
	Addend      int64
	InstrOffset uint32
}

func (r Reloc) Marshal() []byte {
	buf := make([]byte, RelocEntrySize)
	buf[0] = byte(r.Kind)
	binary.LittleEndian.PutUint64(buf[8:16], r.Primary)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.Addend))
	binary.LittleEndian.PutUint32(buf[24:28], r.InstrOffset)
	return buf
}

func UnmarshalReloc(buf []byte) (r Reloc, err error) {
	if len(buf) < RelocEntrySize {
		return Reloc{}, ErrShortReloc
	}
	r.Kind = Kind(buf[0])
	r.Primary = binary.LittleEndian.Uint64(buf[8:16])
	r.Addend = int64(binary.LittleEndian.Uint64(buf[16:24]))
	r.InstrOffset = binary.LittleEndian.Uint32(buf[24:28])
	return r, nil
}

// MarshalRelocs encodes a slice of relocations back-to-back.
func MarshalRelocs(rs []Reloc) []byte {
	buf := make([]byte, len(rs)*RelocEntrySize)
	for i, r := range rs {
		copy(buf[i*RelocEntrySize:], r.Marshal())
	}
	return buf
}

// UnmarshalRelocs decodes n relocations from buf.
func UnmarshalRelocs(buf []byte, n uint64) ([]Reloc, error) {
	out := make([]Reloc, 0, n)
	for i := uint64(0); i < n; i++ {
		start := i * RelocEntrySize
		if start+RelocEntrySize > uint64(len(buf)) {
			return nil, ErrShortReloc
		}
		r, err := UnmarshalReloc(buf[start : start+RelocEntrySize])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
