package supervisor

import (
	"context"
	"sync"
	"time"
)

// janitor periodically sweeps idle handles until the supervisor closes.
func (s *Supervisor) janitor(ctx context.Context) {
	defer close(s.janitorDone)
	t := time.NewTicker(s.cfg.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepIdle(time.Now())
		}
	}
}

// sweepIdle evicts every Ready handle whose idle time exceeds the TTL.
// Handles with in-flight requests or queued waiters are never candidates.
func (s *Supervisor) sweepIdle(now time.Time) {
	s.mu.Lock()
	var victims []*entry
	for _, e := range s.entries {
		e.mu.Lock()
		idle := e.state == StateReady && e.inflight == 0 && e.pendingLocked() == 0 &&
			now.Sub(e.lastUsed) >= s.cfg.IdleTimeout
		e.mu.Unlock()
		if idle {
			victims = append(victims, e)
		}
	}
	s.mu.Unlock()
	for _, e := range victims {
		s.evict(e, "idle")
	}
}

// evict tears down one Ready handle. The check-and-transition is atomic
// under e.mu, so a request that sneaks in between candidate selection and
// here aborts the eviction. If demand arrives while the process is being
// stopped, the entry restarts immediately and keeps its slot.
func (s *Supervisor) evict(e *entry, reason string) {
	e.mu.Lock()
	if e.state != StateReady || e.inflight > 0 || e.pendingLocked() > 0 {
		e.mu.Unlock()
		return
	}
	e.state = StateEvicting
	e.gen++
	proc := e.proc
	e.mu.Unlock()

	readyHandles.Dec()
	evictionsTotal.WithLabelValues(reason).Inc()
	s.publisher.Publish(Event{Name: "evict", Alias: e.alias, Fields: map[string]any{"reason": reason}})
	s.log.Info().Str("alias", e.alias).Str("reason", reason).Msg("evicting idle engine")
	if proc != nil {
		s.stopProc(proc)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	e.mu.Lock()
	e.proc = nil
	e.handle = Handle{}
	if !closed && e.pendingLocked() > 0 {
		// A request queued during teardown: restart on the same slot.
		e.state = StateStarting
		e.gen++
		gen := e.gen
		e.mu.Unlock()
		go s.runStart(e, gen, true)
		return
	}
	e.state = StateAbsent
	e.mu.Unlock()
	s.releaseSlot()
}

// StopAlias force-stops the alias's handle and cancels any pending restart.
// In-flight requests fail at the HTTP layer. Returns notRunningError when
// the alias has no live handle.
func (s *Supervisor) StopAlias(ctx context.Context, alias string) error {
	e := s.lookup(alias)
	if e == nil {
		return notRunningError{alias: alias}
	}
	e.mu.Lock()
	prev := e.state
	switch prev {
	case StateAbsent, StateUnavailable:
		e.mu.Unlock()
		return notRunningError{alias: alias}
	case StateEvicting:
		e.mu.Unlock()
		return nil
	}
	if e.restart != nil {
		e.restart.Stop()
		e.restart = nil
	}
	e.gen++
	proc := e.proc
	e.proc = nil
	e.handle = Handle{}
	e.failWaitersLocked(notRunningError{alias: alias})
	e.state = StateAbsent
	e.mu.Unlock()

	if proc != nil {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
		_ = proc.Stop(sctx)
		cancel()
	}
	switch prev {
	case StateReady:
		readyHandles.Dec()
		s.releaseSlot()
	case StateCrashed:
		s.releaseSlot()
	case StateStarting:
		// The start goroutine owns the slot and releases it when it
		// notices the generation moved on.
	}
	s.publisher.Publish(Event{Name: "stopped", Alias: alias})
	s.log.Info().Str("alias", alias).Msg("engine stopped by request")
	return nil
}

// Reset clears an Unavailable alias back to Absent so the next request may
// try again with a fresh crash budget. Any other state is left untouched.
func (s *Supervisor) Reset(alias string) error {
	e := s.lookup(alias)
	if e == nil {
		return notRunningError{alias: alias}
	}
	e.mu.Lock()
	if e.state != StateUnavailable {
		e.mu.Unlock()
		return nil
	}
	e.state = StateAbsent
	e.crashes = nil
	e.attempt = 0
	e.lastErr = nil
	e.gen++
	e.mu.Unlock()
	s.publisher.Publish(Event{Name: "reset", Alias: alias})
	s.log.Info().Str("alias", alias).Msg("crash budget reset")
	return nil
}

// Close shuts the supervisor down: future Acquires fail with ErrClosed,
// queued waiters are failed, and every live process is stopped. It returns
// once all processes exited or ctx expires.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	s.cond.Broadcast()
	s.janitorCancel()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			s.shutdownEntry(e)
		}(e)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-s.janitorDone
	return nil
}

func (s *Supervisor) shutdownEntry(e *entry) {
	e.mu.Lock()
	if e.restart != nil {
		e.restart.Stop()
		e.restart = nil
	}
	e.failWaitersLocked(ErrClosed)
	prev := e.state
	proc := e.proc
	switch prev {
	case StateReady, StateCrashed, StateStarting:
		e.gen++
		e.state = StateAbsent
		e.proc = nil
		e.handle = Handle{}
	}
	e.mu.Unlock()

	if proc != nil {
		s.stopProc(proc)
	}
	switch prev {
	case StateReady:
		readyHandles.Dec()
		s.releaseSlot()
	case StateCrashed:
		s.releaseSlot()
	case StateStarting, StateEvicting:
		// Slot is owned by the start or evict goroutine; it releases on
		// stale detection.
	}
}
