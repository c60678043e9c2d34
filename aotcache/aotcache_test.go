/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyxbt/aotcache/fingerprint"
	"github.com/nyxbt/aotcache/region"
)

// guestImage backs a Config.ReadGuestMemory for tests: a fixed byte slice
// addressed starting at base, so writes and fetches can agree on guest
// content without a real mapped process.
type guestImage struct {
	mu   sync.Mutex
	base uint64
	data []byte
}

func newGuestImage(base uint64, data []byte) *guestImage {
	return &guestImage{base: base, data: append([]byte{}, data...)}
}

func (g *guestImage) read(addr, length uint64) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	if addr < g.base {
		return nil
	}
	off := addr - g.base
	if off+length > uint64(len(g.data)) {
		return nil
	}
	return append([]byte{}, g.data[off:off+length]...)
}

func (g *guestImage) mutate(addr uint64, b byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[addr-g.base] = b
}

func testFingerprint() fingerprint.Fingerprint {
	return fingerprint.New(7, fingerprint.FlagSMCDetection, fingerprint.OptSpeed)
}

func newTestService(t *testing.T, img *guestImage) *Service {
	t.Helper()
	cfg := Config{
		CacheDir:    t.TempDir(),
		Fingerprint: testFingerprint(),
		AllowWrite:  true,
		ReadGuestMemory: func(addr, length uint64) []byte {
			return img.read(addr, length)
		},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

// waitLoaded blocks until base has finished its add-time load, with a test
// timeout instead of hanging forever if something regresses.
func waitLoaded(t *testing.T, s *Service, base uint64) *region.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		e, ok := s.current.Get(base)
		if ok && e.Latch.Ready() {
			return e
		}
		if time.Now().After(deadline) {
			t.Fatalf("region at 0x%x never finished loading", base)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitPendingDrained(t *testing.T, e *region.Entry) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.PendingWrites.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pending writes never drained")
		}
		time.Sleep(time.Millisecond)
	}
}

// --- concrete scenarios -----------------------------------------------

func TestColdWriteWarmRead(t *testing.T) {
	const base, size = 0x400000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	guestCode := []byte{0xAA, 0xBB, 0xCC}
	copy(img.data[0x10:], guestCode)

	s := newTestService(t, img)
	if err := s.AddNamedRegion(base, size, 0, "prog", true); err != nil {
		t.Fatalf("AddNamedRegion: %v", err)
	}
	e := waitLoaded(t, s, base)
	if e.IndexLen() != 0 {
		t.Fatalf("a fresh file must start with an empty index")
	}

	if _, ok := s.Fetch(base + 0x10); ok {
		t.Fatalf("Fetch before any translation was submitted must miss")
	}

	hostCode := []byte{0x90, 0x90, 0xC3}
	if err := s.SubmitTranslation(AOTData{GuestRIP: base + 0x10, HostCode: hostCode, GuestCode: guestCode}); err != nil {
		t.Fatalf("SubmitTranslation: %v", err)
	}
	waitPendingDrained(t, e)

	rec, ok := s.Fetch(base + 0x10)
	if !ok {
		t.Fatalf("Fetch after a submitted translation must hit")
	}
	if string(rec.HostCode) != string(hostCode) {
		t.Fatalf("HostCode = %v, want %v", rec.HostCode, hostCode)
	}
}

// TestWarmReloadAcrossProcessRestart is spec scenario 1's literal form:
// shut the service down, start a brand new one against the same cache
// directory, and confirm the previously-written record is served back out
// of the on-disk file rather than retranslated. This is the only test that
// actually forces loadExisting/mmapfile.Map/region.BuildIndex/Entry.AdoptMap
// to run against real, previously-written bytes instead of the in-memory
// index a same-process SubmitTranslation already populated.
func TestWarmReloadAcrossProcessRestart(t *testing.T) {
	const base, size = 0x40000000, 0x1000
	cacheDir := t.TempDir()
	fp := testFingerprint()

	img := newGuestImage(base, make([]byte, size))
	guestCode := []byte{0x90, 0x90, 0xC3}
	copy(img.data[0x10:], guestCode)
	hostCode := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}

	newService := func() *Service {
		s, err := New(Config{
			CacheDir:        cacheDir,
			Fingerprint:     fp,
			AllowWrite:      true,
			ReadGuestMemory: func(addr, length uint64) []byte { return img.read(addr, length) },
		})
		require.NoError(t, err)
		return s
	}

	first := newService()
	require.NoError(t, first.AddNamedRegion(base, size, 0, "libx", true))
	e1 := waitLoaded(t, first, base)
	require.NoError(t, first.SubmitTranslation(AOTData{GuestRIP: base + 0x10, HostCode: hostCode, GuestCode: guestCode}))
	waitPendingDrained(t, e1)
	first.Shutdown()

	second := newService()
	t.Cleanup(second.Shutdown)
	require.NoError(t, second.AddNamedRegion(base, size, 0, "libx", true))
	e2 := waitLoaded(t, second, base)
	require.Equal(t, uint64(1), e2.CurrentHeader().NumRecords, "the reopened region must load the record persisted by the first process")

	rec, ok := second.Fetch(base + 0x10)
	require.True(t, ok, "Fetch after a warm reload must hit the persisted record")
	require.Equal(t, hostCode, rec.HostCode)

	// Now corrupt the guest byte the cached translation was built from and
	// confirm the reloaded record is rejected exactly like a live one would
	// be (scenario 1's second half).
	img.mutate(base+0x12, 0x00)
	_, ok = second.Fetch(base + 0x10)
	require.False(t, ok, "Fetch must miss once guest memory no longer matches the persisted guest hash")
}

func TestNoDuplicateRecordOnResubmit(t *testing.T) {
	const base, size = 0x500000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	e := waitLoaded(t, s, base)

	data := AOTData{GuestRIP: base + 4, HostCode: []byte{0xC3}, GuestCode: []byte{0x01}}
	s.SubmitTranslation(data)
	waitPendingDrained(t, e)
	hdrAfterFirst := e.CurrentHeader()

	s.SubmitTranslation(data)
	waitPendingDrained(t, e)
	hdrAfterSecond := e.CurrentHeader()

	if hdrAfterFirst.NumRecords != hdrAfterSecond.NumRecords {
		t.Fatalf("resubmitting an already-persisted offset must not append a second record: %d != %d",
			hdrAfterFirst.NumRecords, hdrAfterSecond.NumRecords)
	}
}

func TestHashMissIsIdempotentAndInvalidates(t *testing.T) {
	const base, size = 0x600000, 0x1000
	guestCode := []byte{0x01, 0x02, 0x03}
	img := newGuestImage(base, make([]byte, size))
	copy(img.data[0x20:], guestCode)

	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	e := waitLoaded(t, s, base)

	s.SubmitTranslation(AOTData{GuestRIP: base + 0x20, HostCode: []byte{0xC3}, GuestCode: guestCode})
	waitPendingDrained(t, e)

	if _, ok := s.Fetch(base + 0x20); !ok {
		t.Fatalf("expected a hit before guest memory changed")
	}

	img.mutate(base+0x20, 0xFF) // self-modifying code invalidates the cached translation

	if _, ok := s.Fetch(base + 0x20); ok {
		t.Fatalf("Fetch must miss once guest memory no longer matches the stored hash")
	}
	// Repeating the miss must not panic or corrupt state.
	if _, ok := s.Fetch(base + 0x20); ok {
		t.Fatalf("a second Fetch after invalidation must still miss")
	}
}

func TestEscapeRelocationDropped(t *testing.T) {
	const base, size = 0x700000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	e := waitLoaded(t, s, base)

	// A GUEST_RIP_MOVE pointing outside this region's own span must cause
	// the whole translation to be dropped, not just the one relocation.
	data := AOTData{
		GuestRIP:  base + 8,
		HostCode:  []byte{0xC3},
		GuestCode: []byte{0x01},
		Relocs:    []region.Reloc{{Kind: region.GuestRIPMove, Primary: base + size + 0x100}},
	}
	s.SubmitTranslation(data)
	waitPendingDrained(t, e)

	if _, ok := s.Fetch(base + 8); ok {
		t.Fatalf("a translation with an escaping relocation must never be fetchable")
	}
}

func TestOvermapEvictsIdleLoadedRegion(t *testing.T) {
	const base, size = 0x800000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "v1", true)
	waitLoaded(t, s, base)

	if err := s.AddNamedRegion(base, size, 0, "v2", true); err != nil {
		t.Fatalf("overmap add: %v", err)
	}
	e2 := waitLoaded(t, s, base)
	if e2.FilePath != "v2" {
		t.Fatalf("overmap must replace the entry at base: FilePath = %q, want v2", e2.FilePath)
	}
}

func TestRemoveDrainsBeforeDeletion(t *testing.T) {
	const base, size = 0x900000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	e := waitLoaded(t, s, base)

	s.SubmitTranslation(AOTData{GuestRIP: base + 4, HostCode: []byte{0xC3}, GuestCode: []byte{0x01}})
	waitPendingDrained(t, e)

	if err := s.RemoveNamedRegion(base, size); err != nil {
		t.Fatalf("RemoveNamedRegion: %v", err)
	}
	if _, ok := s.current.Get(base); ok {
		t.Fatalf("region must be gone from F after RemoveNamedRegion")
	}
	if _, ok := s.Fetch(base + 4); ok {
		t.Fatalf("a removed region must never answer Fetch again")
	}
}

func TestRelocateAddrRoundTrip(t *testing.T) {
	const base1, size = 0xA00000, 0x1000
	img := newGuestImage(base1, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base1, size, 0, "prog", true)
	e := waitLoaded(t, s, base1)

	s.SubmitTranslation(AOTData{GuestRIP: base1 + 0x40, HostCode: []byte{0xC3}, GuestCode: []byte{0x09}})
	waitPendingDrained(t, e)

	orig, ok := s.RelocateAddr(base1 + 0x40)
	if !ok {
		t.Fatalf("RelocateAddr should resolve an address inside the owning region")
	}
	if orig != e.OriginalBase+0x40 {
		t.Fatalf("RelocateAddr = 0x%x, want 0x%x", orig, e.OriginalBase+0x40)
	}

	back, ok := s.resolveOriginal(orig)
	if !ok || back != base1+0x40 {
		t.Fatalf("resolveOriginal round trip failed: got (0x%x, %v)", back, ok)
	}
}

func TestConcurrentWritersSingleRegion(t *testing.T) {
	const base, size = 0xB00000, 0x4000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	e := waitLoaded(t, s, base)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off := uint64(i * 8)
			img.mutate(base+off, byte(i))
			s.SubmitTranslation(AOTData{
				GuestRIP:  base + off,
				HostCode:  []byte{0x90, 0xC3},
				GuestCode: []byte{byte(i)},
			})
		}(i)
	}
	wg.Wait()
	waitPendingDrained(t, e)

	for i := 0; i < n; i++ {
		off := uint64(i * 8)
		if _, ok := s.Fetch(base + off); !ok {
			t.Fatalf("offset %d: expected a hit after concurrent submission", i)
		}
	}
	if e.CurrentHeader().NumRecords != n {
		t.Fatalf("NumRecords = %d, want %d", e.CurrentHeader().NumRecords, n)
	}
}

func TestForkQuiescenceDisablesChildByDefault(t *testing.T) {
	const base, size = 0xC00000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	waitLoaded(t, s, base)

	s.PrepareForFork()
	s.CleanupAfterFork(true)

	if ServiceAfterFork {
		t.Skip("ServiceAfterFork policy flag is true; child-disabled assertions don't apply")
	}
	if err := s.AddNamedRegion(0xD00000, size, 0, "other", true); err != ErrShutdown {
		t.Fatalf("AddNamedRegion in a disabled post-fork child = %v, want ErrShutdown", err)
	}
	if s.regionCount() != 0 {
		t.Fatalf("child region state must be reset after CleanupAfterFork(true)")
	}
}

func TestForkQuiescenceParentUnaffected(t *testing.T) {
	const base, size = 0xE00000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	waitLoaded(t, s, base)

	s.PrepareForFork()
	s.CleanupAfterFork(false) // parent path: no reset

	if s.regionCount() != 1 {
		t.Fatalf("parent region state must survive CleanupAfterFork(false)")
	}
	if _, ok := s.current.Get(base); !ok {
		t.Fatalf("parent must retain its registered region after fork quiescence")
	}
}

func TestExecveQuiescenceRoundTrip(t *testing.T) {
	const base, size = 0xF00000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "prog", true)
	waitLoaded(t, s, base)

	s.PrepareForExecve()
	s.CleanupAfterExecve()

	if s.regionCount() != 1 {
		t.Fatalf("a failed-exec round trip must leave region state untouched")
	}
}

// --- universal invariants ----------------------------------------------

func TestOriginalBaseStableAcrossOvermap(t *testing.T) {
	const base, size = 0x1000000, 0x1000
	img := newGuestImage(base, make([]byte, size))
	s := newTestService(t, img)
	s.AddNamedRegion(base, size, 0, "v1", true)
	e1 := waitLoaded(t, s, base)
	origBase := e1.OriginalBase

	s.AddNamedRegion(base, size, 0, "v2", true)
	e2 := waitLoaded(t, s, base)
	if e2.OriginalBase != origBase {
		t.Fatalf("OriginalBase drifted across overmap: %x != %x", e2.OriginalBase, origBase)
	}
}

func TestNoSuchRangeErrors(t *testing.T) {
	img := newGuestImage(0, nil)
	s := newTestService(t, img)
	if err := s.SubmitTranslation(AOTData{GuestRIP: 0xDEAD}); err != ErrNoSuchRange {
		t.Fatalf("SubmitTranslation on an unregistered address = %v, want ErrNoSuchRange", err)
	}
	if err := s.RemoveNamedRegion(0xDEAD, 0x10); err != ErrNoSuchRange {
		t.Fatalf("RemoveNamedRegion on an unregistered address = %v, want ErrNoSuchRange", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	img := newGuestImage(0, nil)
	cfg := Config{
		CacheDir:        t.TempDir(),
		Fingerprint:     testFingerprint(),
		AllowWrite:      true,
		ReadGuestMemory: func(addr, length uint64) []byte { return img.read(addr, length) },
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Shutdown()
	s.Shutdown() // must not panic or block
}

func TestOperationsAfterShutdownFail(t *testing.T) {
	img := newGuestImage(0x10000, make([]byte, 0x1000))
	s := newTestService(t, img)
	s.AddNamedRegion(0x10000, 0x1000, 0, "prog", true)
	waitLoaded(t, s, 0x10000)
	s.Shutdown()

	if err := s.AddNamedRegion(0x20000, 0x1000, 0, "other", true); err != ErrShutdown {
		t.Fatalf("AddNamedRegion after Shutdown = %v, want ErrShutdown", err)
	}
	if err := s.SubmitTranslation(AOTData{GuestRIP: 0x10000}); err != ErrShutdown {
		t.Fatalf("SubmitTranslation after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestWithDefaultsRejectsMissingCacheDir(t *testing.T) {
	_, err := New(Config{ReadGuestMemory: func(uint64, uint64) []byte { return nil }})
	if err != ErrNoCacheDir {
		t.Fatalf("New with empty CacheDir = %v, want ErrNoCacheDir", err)
	}
}

func TestWithDefaultsRejectsMissingGuestReader(t *testing.T) {
	_, err := New(Config{CacheDir: t.TempDir()})
	if err != ErrNoGuestMemoryReader {
		t.Fatalf("New with nil ReadGuestMemory = %v, want ErrNoGuestMemoryReader", err)
	}
}
