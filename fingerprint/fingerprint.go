/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package fingerprint packs a translator's ahead-of-time cache compatibility
// settings into a fixed-size, comparable value. A region file's stored
// fingerprint must match the running translator's fingerprint before any of
// its code records are trusted.
package fingerprint

import (
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"

	"github.com/nyxbt/aotcache/version"
)

// OptLevel is a small enum packed into Flags alongside the boolean options.
type OptLevel uint8

const (
	OptNone OptLevel = iota
	OptSpeed
	OptSize
	optLevelMask OptLevel = 0x3
)

// Flag bits packed into Fingerprint.Flags. Each bit (or small group of bits)
// reflects one translator knob that changes the meaning of a host-code byte
// sequence: two configurations that disagree on any of these can never share
// cached translations.
const (
	FlagLargePages uint64 = 1 << iota
	FlagStrictFPRounding
	FlagSMCDetection
	FlagLinkRegisterShadow
	FlagIndirectBranchHardening

	optLevelShift = 56 // top byte reserved for the 2-bit OptLevel enum
)

// Fingerprint is an immutable 128-bit cache-compatibility key: a cookie
// (on-disk format version), an integer (ABI/config revision), and a packed
// bitfield of boolean and small-enum translator options.
//
// Two fingerprints are Equal only if every field matches. The Hash of a
// fingerprint excludes Cookie by design: Cookie gates the wire format itself
// (a mismatched cookie means "do not even try to parse this file"), while
// Hash is used purely to keep same-named cache files for different
// configurations from colliding on disk.
type Fingerprint struct {
	Cookie uint32 // on-disk format version tag
	Config uint32 // translator ABI / build revision
	Flags  uint64 // packed booleans + OptLevel
}

// New builds a Fingerprint from a translator config revision and the boolean
// flags OR'd together, with opt packed into the top byte of Flags.
func New(config uint32, flags uint64, opt OptLevel) Fingerprint {
	flags &^= uint64(optLevelMask) << optLevelShift
	flags |= uint64(opt&optLevelMask) << optLevelShift
	return Fingerprint{
		Cookie: version.FormatCookie,
		Config: config,
		Flags:  flags,
	}
}

// OptLevel extracts the small enum packed into the top byte of Flags.
func (f Fingerprint) OptLevel() OptLevel {
	return OptLevel(f.Flags>>optLevelShift) & optLevelMask
}

// Has reports whether every bit set in mask is also set in Flags.
func (f Fingerprint) Has(mask uint64) bool {
	return f.Flags&mask == mask
}

// Equal compares every field; this is the authoritative compatibility check
// used when deciding whether a loaded region file can be trusted.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Cookie == o.Cookie && f.Config == o.Config && f.Flags == o.Flags
}

// CookieMatches reports whether just the format-version tag matches,
// independent of configuration. A mismatched cookie means the file predates
// or postdates a breaking change to the on-disk layout and must be rejected
// outright rather than merely treated as "a different configuration".
func (f Fingerprint) CookieMatches(o Fingerprint) bool {
	return f.Cookie == o.Cookie
}

// Hash derives a stable 64-bit value from every field except Cookie. It is
// used only to keep same-basename cache files for distinct configurations
// from colliding in the cache directory; the header comparison on load
// remains the authoritative compatibility check.
func (f Fingerprint) Hash() uint64 {
	h := newHasher()
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], f.Config)
	binary.LittleEndian.PutUint64(buf[4:12], f.Flags)
	h.Write(buf[:])
	return h.Sum64()
}

func newHasher() *xxhash.Digest {
	return xxhash.New()
}

// MarshalBinary encodes the fingerprint into the 16-byte on-disk form used
// by the region file header (§3, §6).
func (f Fingerprint) MarshalBinary() []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], f.Cookie)
	binary.LittleEndian.PutUint32(buf[4:8], f.Config)
	binary.LittleEndian.PutUint64(buf[8:16], f.Flags)
	return buf[:]
}

// UnmarshalFingerprint decodes the 16-byte on-disk form. The caller must
// supply at least 16 bytes.
func UnmarshalFingerprint(buf []byte) (f Fingerprint, ok bool) {
	if len(buf) < Size {
		return Fingerprint{}, false
	}
	f.Cookie = binary.LittleEndian.Uint32(buf[0:4])
	f.Config = binary.LittleEndian.Uint32(buf[4:8])
	f.Flags = binary.LittleEndian.Uint64(buf[8:16])
	return f, true
}

// Size is the fixed on-disk byte width of a marshaled Fingerprint.
const Size = 16

var _ hash.Hash64 = (*xxhash.Digest)(nil)
