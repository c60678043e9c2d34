/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package relocmap implements the two ordered interval maps that back
// address relocation: a current-address map (F) used by fetch and the
// write path to answer "which region owns this current RIP", and an
// original-address map (G) used to answer the inverse question for
// addresses already expressed in a region's original address space (e.g.
// a GUEST_RIP_MOVE target loaded back out of a pre-existing cache file).
//
// Both are implemented over the same ordered B-tree; the design notes (§9)
// explicitly reject the source's canary-sentinel trick of inserting a
// max-key entry so lookup never special-cases "before first"/"after last".
// This implementation just handles the empty and boundary cases directly.
package relocmap

import (
	"sync"

	"github.com/google/btree"

	"github.com/nyxbt/aotcache/region"
)

type item struct {
	key   uint64
	entry *region.Entry
}

func less(a, b item) bool {
	return a.key < b.key
}

// Map is an ordered, interval-style map from a 64-bit base address to the
// region entry whose span starts there. Lookups by arbitrary address use
// the predecessor (floor) entry and then check containment, since regions
// never overlap once successfully inserted (§3 invariant).
type Map struct {
	mu sync.RWMutex
	bt *btree.BTreeG[item]
}

// New returns an empty ordered map.
func New() *Map {
	return &Map{bt: btree.NewG(32, less)}
}

// Insert adds or replaces the entry keyed by base.
func (m *Map) Insert(base uint64, e *region.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.ReplaceOrInsert(item{key: base, entry: e})
}

// Delete removes whatever entry is keyed by base, if any.
func (m *Map) Delete(base uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.Delete(item{key: base})
}

// Get returns the entry keyed exactly by base.
func (m *Map) Get(base uint64) (*region.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.bt.Get(item{key: base})
	if !ok {
		return nil, false
	}
	return it.entry, true
}

// containing returns the entry whose [base, base+len) span contains addr,
// using contains to test the predecessor entry found by descending from
// addr. Only one entry can ever contain addr because regions never overlap.
func (m *Map) containing(addr uint64, contains func(e *region.Entry, addr uint64) bool) (*region.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *region.Entry
	m.bt.DescendLessOrEqual(item{key: addr}, func(it item) bool {
		if contains(it.entry, addr) {
			found = it.entry
		}
		return false // only the floor entry can possibly contain addr
	})
	return found, found != nil
}

// Len reports the number of entries currently tracked.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bt.Len()
}

// Entries returns a snapshot slice of every tracked entry, in key order.
// Used by shutdown/closure to walk every remaining region.
func (m *Map) Entries() []*region.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked()
}

func (m *Map) entriesLocked() []*region.Entry {
	out := make([]*region.Entry, 0, m.bt.Len())
	m.bt.Ascend(func(it item) bool {
		out = append(out, it.entry)
		return true
	})
	return out
}

// Lock and Unlock expose the map's own write lock directly. They exist
// only for the fork/exec quiescence hooks (§5, §6), which must hold every
// lock in the system across the fork/exec boundary in a fixed order; no
// other caller should ever need raw access to this mutex.
func (m *Map) Lock()   { m.mu.Lock() }
func (m *Map) Unlock() { m.mu.Unlock() }

// EntriesLocked is Entries for a caller that already holds Lock.
func (m *Map) EntriesLocked() []*region.Entry { return m.entriesLocked() }

// ResetLocked discards every tracked entry without closing them; the
// caller (a fork quiescence hook) is responsible for closing entries
// first via EntriesLocked. The caller must already hold Lock.
func (m *Map) ResetLocked() {
	m.bt = btree.NewG(32, less)
}
