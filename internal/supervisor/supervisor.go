package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor owns the handle table. Entries are created lazily on first
// Acquire and live for the daemon's lifetime; their state tracks the
// underlying process. mu guards the entry map, slot accounting, and the
// closed flag; everything per-alias lives behind the entry's own mutex.
type Supervisor struct {
	cfg       Config
	engine    Engine
	log       zerolog.Logger
	publisher EventPublisher

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	slots   int
	closed  bool

	janitorCancel context.CancelFunc
	janitorDone   chan struct{}
	startedAt     time.Time
}

// New constructs a Supervisor and starts its idle-eviction janitor.
func New(engine Engine, cfg Config, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		engine:    engine,
		log:       log,
		publisher: noopPublisher{},
		entries:   make(map[string]*entry),
		startedAt: time.Now(),
	}
	s.cond = sync.NewCond(&s.mu)
	ctx, cancel := context.WithCancel(context.Background())
	s.janitorCancel = cancel
	s.janitorDone = make(chan struct{})
	go s.janitor(ctx)
	return s
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (s *Supervisor) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
}

// entryFor returns the entry for alias, creating it if needed.
func (s *Supervisor) entryFor(alias string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[alias]
	if !ok {
		e = &entry{alias: alias, sup: s, state: StateAbsent}
		s.entries[alias] = e
	}
	return e
}

// lookup returns the entry for alias or nil.
func (s *Supervisor) lookup(alias string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[alias]
}

// reserveSlot blocks until a process slot is free, evicting the
// least-recently-used idle handle when the table is full. It gives up when
// the supervisor closes or when every request queued on e has gone away
// (nothing is waiting for this start anymore).
func (s *Supervisor) reserveSlot(e *entry) error {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.slots < s.cfg.MaxReady {
			s.slots++
			s.mu.Unlock()
			return nil
		}
		if victim := s.lruIdleLocked(e); victim != nil {
			s.mu.Unlock()
			s.evict(victim, "lru")
			s.mu.Lock()
			continue
		}
		e.mu.Lock()
		abandoned := e.pendingLocked() == 0
		e.mu.Unlock()
		if abandoned {
			s.mu.Unlock()
			return context.Canceled
		}
		// All live handles have in-flight work: queue this start rather
		// than forcing an eviction.
		s.cond.Wait()
	}
}

// releaseSlot frees one process slot and wakes queued starts.
func (s *Supervisor) releaseSlot() {
	s.mu.Lock()
	s.slots--
	s.mu.Unlock()
	s.cond.Broadcast()
}

// lruIdleLocked picks the Ready handle with the oldest last-used time that
// has no in-flight requests and no waiters. Caller holds s.mu.
func (s *Supervisor) lruIdleLocked(skip *entry) *entry {
	var victim *entry
	var oldest time.Time
	for _, e := range s.entries {
		if e == skip {
			continue
		}
		e.mu.Lock()
		ok := e.state == StateReady && e.inflight == 0 && e.pendingLocked() == 0
		used := e.lastUsed
		e.mu.Unlock()
		if !ok {
			continue
		}
		if victim == nil || used.Before(oldest) {
			victim = e
			oldest = used
		}
	}
	return victim
}

// Uptime reports how long the supervisor has been running.
func (s *Supervisor) Uptime() time.Duration { return time.Since(s.startedAt) }
