/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package aotcache is the ahead-of-time code cache: it registers guest
// executable regions, accepts completed translations off the translator's
// worker threads, and serves synchronous fetches against on-disk per-region
// cache files. Everything outside this package — the decoder, the IR, the
// host code emitter, guest process lifecycle, configuration file parsing,
// and the CLI — is an external collaborator; this package only consumes an
// already-resolved Config.
package aotcache

import (
	"errors"

	"github.com/nyxbt/aotcache/fingerprint"
	"github.com/nyxbt/aotcache/log"
)

// ServiceAfterFork controls whether a forked child keeps serving its cache
// state or is left fully disabled (queues closed, regions torn down, no new
// adds or writes accepted) after CleanupAfterFork(Child) runs. The source
// this was distilled from hard-codes this false; DESIGN.md records the
// decision to keep it a policy flag rather than bake in either behavior.
const ServiceAfterFork = false

var (
	ErrShutdown            = errors.New("aotcache: service is shutting down")
	ErrNoCacheDir          = errors.New("aotcache: Config.CacheDir is empty")
	ErrClosed              = errors.New("aotcache: service already shut down")
	ErrNoSuchRange         = errors.New("aotcache: no registered region at that base")
	ErrNoGuestMemoryReader = errors.New("aotcache: Config.ReadGuestMemory is nil")
)

// Config is constructed by the embedding translator; nothing in this
// package parses a config file or flag set.
type Config struct {
	// CacheDir is the per-user directory holding region cache files. It is
	// created on first use if it does not already exist.
	CacheDir string

	// Fingerprint gates every cache file this service will read or write.
	Fingerprint fingerprint.Fingerprint

	// AllowWrite permits this process to create cache files that do not
	// yet exist (O_CREAT|O_EXCL, §4.2 step 5). A read-only worker in a
	// fleet of cooperating processes can set this false and still benefit
	// from files another process created.
	AllowWrite bool

	// NamedQueueDepth and CompileQueueDepth bound the two job FIFOs
	// (components H and I). Zero selects a small sensible default.
	NamedQueueDepth   int
	CompileQueueDepth int

	// Logger receives diagnostics for every non-fatal error kind in the
	// taxonomy (§7): config mismatch, corruption, integrity miss, overmap
	// during load, escape relocation, FD failures. A nil Logger installs
	// a discard logger.
	Logger *log.Logger

	// ReadGuestMemory reads length bytes of live guest memory at addr, for
	// the fetch path's guest-code integrity recheck (§4.4 step 5). Guest
	// process memory access is named out of scope in §1 (a collaborator
	// of the guest/host process lifecycle), so this package never touches
	// it directly; the embedding translator supplies the reader. A nil
	// result (short read, unmapped address) is treated as an integrity
	// miss.
	ReadGuestMemory func(addr, length uint64) []byte
}

const (
	defaultNamedQueueDepth   = 64
	defaultCompileQueueDepth = 1024
)

func (c Config) withDefaults() (Config, error) {
	if c.CacheDir == "" {
		return c, ErrNoCacheDir
	}
	if c.ReadGuestMemory == nil {
		return c, ErrNoGuestMemoryReader
	}
	if c.NamedQueueDepth <= 0 {
		c.NamedQueueDepth = defaultNamedQueueDepth
	}
	if c.CompileQueueDepth <= 0 {
		c.CompileQueueDepth = defaultCompileQueueDepth
	}
	if c.Logger == nil {
		c.Logger = log.NewDiscardLogger()
	}
	return c, nil
}
