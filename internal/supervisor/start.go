package supervisor

import (
	"context"
	"fmt"
	"time"

	"llamad/internal/common/backoff"
)

// runStart drives one startup attempt: reserve a process slot, spawn the
// engine, poll readiness, then either grant the queued waiters or record a
// crash. gen identifies this attempt; any mismatch means the entry moved on
// (shutdown or admin stop) and this goroutine must clean up after itself.
func (s *Supervisor) runStart(e *entry, gen uint64, haveSlot bool) {
	if !haveSlot {
		if err := s.reserveSlot(e); err != nil {
			e.mu.Lock()
			if e.gen == gen && e.state == StateStarting {
				e.state = StateAbsent
				e.failWaitersLocked(err)
			}
			e.mu.Unlock()
			return
		}
	}

	e.mu.Lock()
	if e.gen != gen || e.state != StateStarting {
		e.mu.Unlock()
		s.releaseSlot()
		return
	}
	cfg := e.cfg
	e.mu.Unlock()

	s.publisher.Publish(Event{Name: "spawn_start", Alias: e.alias})
	spawnsTotal.WithLabelValues(e.alias).Inc()
	s.log.Info().Str("alias", e.alias).Msg("starting engine")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StartTimeout)
	defer cancel()
	proc, err := s.engine.Spawn(ctx, cfg)
	if err != nil {
		s.startFailed(e, gen, nil, err)
		return
	}

	e.mu.Lock()
	if e.gen != gen || e.state != StateStarting {
		e.mu.Unlock()
		s.stopProc(proc)
		s.releaseSlot()
		return
	}
	e.proc = proc
	e.mu.Unlock()

	deadline := time.Now().Add(s.cfg.StartTimeout)
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-proc.Done():
			err := crashedError{alias: e.alias, cause: exitDiagnostic(proc)}
			s.publisher.Publish(Event{Name: "spawn_exit", Alias: e.alias, Fields: map[string]any{"error": err.Error()}})
			s.startFailed(e, gen, nil, err)
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				s.publisher.Publish(Event{Name: "spawn_timeout", Alias: e.alias, Fields: map[string]any{"pid": proc.PID()}})
				s.startFailed(e, gen, proc, startTimeoutError{alias: e.alias})
				return
			}
			pctx, pcancel := context.WithTimeout(context.Background(), probeTimeout)
			perr := proc.ProbeReady(pctx)
			pcancel()
			if perr == nil {
				s.becameReady(e, gen, proc)
				return
			}
		}
	}
}

// becameReady commits the Starting -> Ready transition and unblocks the
// FIFO waiter queue.
func (s *Supervisor) becameReady(e *entry, gen uint64, proc Process) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateStarting {
		e.mu.Unlock()
		s.stopProc(proc)
		s.releaseSlot()
		return
	}
	now := time.Now()
	e.handle = Handle{
		Alias:     e.alias,
		PID:       proc.PID(),
		Port:      proc.Port(),
		BaseURL:   proc.BaseURL(),
		StartedAt: now,
	}
	e.state = StateReady
	e.attempt = 0
	e.lastErr = nil
	e.grantWaitersLocked(now)
	e.mu.Unlock()

	readyHandles.Inc()
	s.publisher.Publish(Event{Name: "spawn_ready", Alias: e.alias, Fields: map[string]any{"pid": proc.PID(), "port": proc.Port()}})
	s.log.Info().Str("alias", e.alias).Int("pid", proc.PID()).Int("port", proc.Port()).Msg("engine ready")
	go s.watchProc(e, proc, gen)
}

// startFailed records a failed attempt (spawn error, early exit, or
// readiness timeout), fails the queued waiters, and either schedules a
// backoff restart or declares the alias Unavailable when the crash budget
// inside the rolling window is spent.
func (s *Supervisor) startFailed(e *entry, gen uint64, proc Process, cause error) {
	if proc != nil {
		s.stopProc(proc)
	}
	crashesTotal.WithLabelValues(e.alias).Inc()
	e.mu.Lock()
	if e.gen != gen || e.state != StateStarting {
		e.mu.Unlock()
		s.releaseSlot()
		return
	}
	e.proc = nil
	e.handle = Handle{}
	e.lastErr = cause
	e.attempt++
	now := time.Now()
	e.crashes = append(e.crashes, now)
	n := e.countCrashesLocked(now, s.cfg.CrashWindow)
	e.failWaitersLocked(cause)
	if n >= s.cfg.MaxCrashes {
		e.state = StateUnavailable
		e.mu.Unlock()
		s.releaseSlot()
		s.publisher.Publish(Event{Name: "unavailable", Alias: e.alias, Fields: map[string]any{"crashes": n}})
		s.log.Error().Str("alias", e.alias).Int("crashes", n).Err(cause).Msg("alias unavailable, crash budget spent")
		return
	}
	e.state = StateCrashed
	attempt := e.attempt
	s.scheduleRestartLocked(e)
	e.mu.Unlock()
	s.publisher.Publish(Event{Name: "crash", Alias: e.alias, Fields: map[string]any{"error": cause.Error(), "attempt": attempt}})
	s.log.Warn().Str("alias", e.alias).Err(cause).Msg("engine start failed")
}

// watchProc observes a Ready process until it exits. An exit in Ready state
// is a crash: in-flight requests fail at the HTTP layer on their own; here
// we account for it and drive the restart schedule.
func (s *Supervisor) watchProc(e *entry, proc Process, gen uint64) {
	<-proc.Done()
	e.mu.Lock()
	if e.gen != gen || e.state != StateReady {
		// Eviction, admin stop, or shutdown: expected exit.
		e.mu.Unlock()
		return
	}
	readyHandles.Dec()
	crashesTotal.WithLabelValues(e.alias).Inc()
	cause := crashedError{alias: e.alias, cause: exitDiagnostic(proc)}
	e.proc = nil
	e.handle = Handle{}
	e.lastErr = cause
	e.attempt++
	now := time.Now()
	e.crashes = append(e.crashes, now)
	n := e.countCrashesLocked(now, s.cfg.CrashWindow)
	e.failWaitersLocked(cause)
	if n >= s.cfg.MaxCrashes {
		e.state = StateUnavailable
		e.mu.Unlock()
		s.releaseSlot()
		s.publisher.Publish(Event{Name: "unavailable", Alias: e.alias, Fields: map[string]any{"crashes": n}})
		s.log.Error().Str("alias", e.alias).Int("crashes", n).Msg("alias unavailable, crash budget spent")
		return
	}
	e.state = StateCrashed
	s.scheduleRestartLocked(e)
	e.mu.Unlock()
	s.publisher.Publish(Event{Name: "crash", Alias: e.alias, Fields: map[string]any{"error": cause.Error()}})
	s.log.Warn().Str("alias", e.alias).Err(cause.cause).Msg("engine crashed while serving")
}

// scheduleRestartLocked arms the backoff timer for a Crashed entry.
// Caller holds e.mu with state == StateCrashed. The crashed entry keeps its
// process slot so the restart cannot be starved by other aliases.
func (s *Supervisor) scheduleRestartLocked(e *entry) {
	delay := backoff.Delay(e.attempt, s.cfg.BackoffBase, s.cfg.BackoffMax)
	gen := e.gen
	s.publisher.Publish(Event{Name: "restart_scheduled", Alias: e.alias, Fields: map[string]any{"delay_ms": int(delay / time.Millisecond)}})
	e.restart = time.AfterFunc(delay, func() {
		e.mu.Lock()
		if e.gen != gen || e.state != StateCrashed {
			e.mu.Unlock()
			return
		}
		e.restart = nil
		e.state = StateStarting
		e.gen++
		next := e.gen
		e.mu.Unlock()
		s.runStart(e, next, true)
	})
}

// stopProc force-stops a process with the configured grace period.
func (s *Supervisor) stopProc(proc Process) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	_ = proc.Stop(ctx)
}

// exitDiagnostic reduces a dead process to the smallest useful error,
// including a stderr tail when the engine captured one.
func exitDiagnostic(proc Process) error {
	err := proc.ExitErr()
	type tailer interface{ StderrTail() string }
	if t, ok := proc.(tailer); ok {
		if tail := t.StderrTail(); tail != "" {
			if err != nil {
				return fmt.Errorf("%v; stderr tail: %s", err, tail)
			}
			return fmt.Errorf("exited; stderr tail: %s", tail)
		}
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("exited unexpectedly")
}
