package supervisor

import (
	"context"
	"time"

	"llamad/pkg/types"
)

// Acquire returns a Lease on a Ready handle for the alias, starting the
// engine if necessary. Startup is single-flight: concurrent callers for the
// same alias share one attempt and are granted leases in arrival order once
// the handle is Ready. Callers must Release the lease when done.
func (s *Supervisor) Acquire(ctx context.Context, cfg types.Alias) (*Lease, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	e := s.entryFor(cfg.Alias)
	e.mu.Lock()
	e.cfg = cfg
	switch e.state {
	case StateReady:
		e.inflight++
		e.lastUsed = time.Now()
		l := &Lease{h: e.handle, e: e}
		e.mu.Unlock()
		return l, nil
	case StateUnavailable:
		err := unavailableError{alias: e.alias, cause: e.lastErr}
		e.mu.Unlock()
		return nil, err
	case StateAbsent:
		e.state = StateStarting
		e.gen++
		gen := e.gen
		go s.runStart(e, gen, false)
	case StateStarting, StateCrashed, StateEvicting:
		// Join the in-progress attempt (or the scheduled restart).
	}
	w := &waiter{ch: make(chan acquireResult, 1)}
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()
	queueWaiters.Inc()
	defer queueWaiters.Dec()

	select {
	case r := <-w.ch:
		return r.lease, r.err
	case <-ctx.Done():
		e.mu.Lock()
		w.canceled = true
		e.removeWaiterLocked(w)
		e.mu.Unlock()
		// A grant may have raced the cancellation; return it if so.
		select {
		case r := <-w.ch:
			if r.lease != nil {
				r.lease.Release()
			}
		default:
		}
		// Wake any start blocked on capacity so it can notice abandonment.
		s.cond.Broadcast()
		return nil, ctx.Err()
	}
}

// removeWaiterLocked drops w from the queue. Caller holds e.mu.
func (e *entry) removeWaiterLocked(w *waiter) {
	for i, q := range e.waiters {
		if q == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// grantWaitersLocked hands leases to all queued waiters in FIFO order.
// Caller holds e.mu and has already set state to Ready.
func (e *entry) grantWaitersLocked(now time.Time) {
	for _, w := range e.waiters {
		if w.canceled {
			continue
		}
		e.inflight++
		w.ch <- acquireResult{lease: &Lease{h: e.handle, e: e}}
	}
	e.waiters = nil
	e.lastUsed = now
}

// failWaitersLocked fails all queued waiters with err. Caller holds e.mu.
func (e *entry) failWaitersLocked(err error) {
	for _, w := range e.waiters {
		if w.canceled {
			continue
		}
		w.ch <- acquireResult{err: err}
	}
	e.waiters = nil
}
