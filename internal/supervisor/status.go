package supervisor

import (
	"sort"
	"time"

	"llamad/pkg/types"
)

// Handles returns a status snapshot of every non-absent entry, sorted by
// alias. Counters are read under each entry's lock, so a row is internally
// consistent even while the table keeps moving.
func (s *Supervisor) Handles() []types.HandleStatus {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]types.HandleStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.state == StateAbsent {
			e.mu.Unlock()
			continue
		}
		h := types.HandleStatus{
			Alias:    e.alias,
			State:    string(e.state),
			Inflight: e.inflight,
			QueueLen: e.pendingLocked(),
			Crashes:  e.countCrashesLocked(time.Now(), s.cfg.CrashWindow),
		}
		if e.state == StateReady || e.state == StateEvicting {
			h.PID = e.handle.PID
			h.Port = e.handle.Port
			h.StartedAt = e.handle.StartedAt.Unix()
		}
		if !e.lastUsed.IsZero() {
			h.LastUsed = e.lastUsed.Unix()
		}
		if e.lastErr != nil {
			h.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// MaxReady reports the configured handle-table capacity.
func (s *Supervisor) MaxReady() int { return s.cfg.MaxReady }
