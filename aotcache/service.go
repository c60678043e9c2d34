/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package aotcache

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/nyxbt/aotcache/fingerprint"
	"github.com/nyxbt/aotcache/log"
	"github.com/nyxbt/aotcache/queue"
	"github.com/nyxbt/aotcache/relocmap"
)

// Service is the cache core: one named-region registry, one serialization
// pipeline, one bidirectional relocation map, coordinated by a single
// background worker. The six operations in §6 are its methods.
type Service struct {
	cfg Config
	fp  fingerprint.Fingerprint
	log *log.Logger

	// regionMu is the "region-modifying" lock: exclusive around add/
	// remove, shared around fetch (§5).
	regionMu sync.RWMutex

	current  *relocmap.Current  // F
	original *relocmap.Original // G

	namedQ   *queue.FIFO[namedJob]
	compileQ *queue.FIFO[translationJob]

	// compileAdmitMu is the "compile-queue lock" of §4.3 step 1: held
	// exclusively for the duration of a remove to block new
	// submit_translation admissions system-wide, and acquired briefly by
	// SubmitTranslation around each push.
	compileAdmitMu sync.Mutex

	// wakeMu/wakeCond let the worker block when both queues are empty
	// without spinning, and give Push a single place to rouse it. Cond's
	// atomic unlock-and-sleep is what keeps a push that lands between the
	// worker's emptiness check and its Wait call from being missed.
	wakeMu   sync.Mutex
	wakeCond *sync.Cond

	workerDone   chan struct{}
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// New constructs a Service and starts its background worker. The caller
// owns cfg.CacheDir's existence; New creates it if missing.
func New(cfg Config) (*Service, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:        cfg,
		fp:         cfg.Fingerprint,
		log:        cfg.Logger,
		current:    relocmap.NewCurrent(),
		original:   relocmap.NewOriginal(),
		namedQ:     queue.New[namedJob](cfg.NamedQueueDepth),
		compileQ:   queue.New[translationJob](cfg.CompileQueueDepth),
		workerDone: make(chan struct{}),
	}
	s.wakeCond = sync.NewCond(&s.wakeMu)
	go s.workerLoop()
	return s, nil
}

// wake rouses the worker if it is blocked waiting for work.
func (s *Service) wake() {
	s.wakeMu.Lock()
	s.wakeCond.Broadcast()
	s.wakeMu.Unlock()
}

// pushNamed enqueues a named-region job and wakes the worker.
func (s *Service) pushNamed(j namedJob) bool {
	ok := s.namedQ.Push(j)
	s.wake()
	return ok
}

// pushCompile enqueues a translation job and wakes the worker.
func (s *Service) pushCompile(j translationJob) bool {
	ok := s.compileQ.Push(j)
	s.wake()
	return ok
}

// regionCount reports how many regions are currently registered, for tests
// and diagnostics.
func (s *Service) regionCount() int {
	return s.current.Len()
}
