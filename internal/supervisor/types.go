package supervisor

import (
	"sync"
	"time"

	"llamad/pkg/types"
)

// State is the lifecycle state of one alias's handle.
type State string

const (
	StateAbsent      State = "absent"
	StateStarting    State = "starting"
	StateReady       State = "ready"
	StateEvicting    State = "evicting"
	StateCrashed     State = "crashed"
	StateUnavailable State = "unavailable"
)

// Handle describes one running engine process. It is a snapshot; the
// gateway only ever sees it through a Lease.
type Handle struct {
	Alias     string
	PID       int
	Port      int
	BaseURL   string
	StartedAt time.Time
}

// Lease grants access to a Ready handle until released. Release updates the
// handle's last-used time and in-flight accounting; it is idempotent.
type Lease struct {
	h    Handle
	e    *entry
	once sync.Once
}

// BaseURL returns the engine's local endpoint.
func (l *Lease) BaseURL() string { return l.h.BaseURL }

// Handle returns the snapshot this lease was granted against.
func (l *Lease) Handle() Handle { return l.h }

// Release returns the lease. Safe to call more than once. A release can turn
// the handle into an eviction candidate, so it wakes starts blocked on
// capacity.
func (l *Lease) Release() {
	l.once.Do(func() {
		e := l.e
		e.mu.Lock()
		e.inflight--
		e.lastUsed = time.Now()
		e.mu.Unlock()
		e.sup.cond.Broadcast()
	})
}

// acquireResult is delivered to a queued waiter when its alias becomes
// Ready (lease set) or fails terminally (err set).
type acquireResult struct {
	lease *Lease
	err   error
}

// waiter is one queued request waiting for readiness. FIFO per alias.
type waiter struct {
	ch       chan acquireResult // buffered, len 1
	canceled bool
}

// entry is the supervisor's record for one alias. All fields are guarded
// by mu. gen increments on every startup attempt so goroutines from a
// previous life of the entry can detect they are stale.
type entry struct {
	alias string
	sup   *Supervisor

	mu       sync.Mutex
	state    State
	cfg      types.Alias
	proc     Process
	handle   Handle
	inflight int
	lastUsed time.Time
	waiters  []*waiter
	crashes  []time.Time
	attempt  int
	lastErr  error
	restart  *time.Timer
	gen      uint64
}

// countCrashesLocked prunes crash timestamps older than window and returns
// how many remain. Caller holds e.mu.
func (e *entry) countCrashesLocked(now time.Time, window time.Duration) int {
	kept := e.crashes[:0]
	for _, ts := range e.crashes {
		if now.Sub(ts) <= window {
			kept = append(kept, ts)
		}
	}
	e.crashes = kept
	return len(e.crashes)
}

// pendingLocked returns the number of live (non-canceled) waiters.
// Caller holds e.mu.
func (e *entry) pendingLocked() int {
	n := 0
	for _, w := range e.waiters {
		if !w.canceled {
			n++
		}
	}
	return n
}
