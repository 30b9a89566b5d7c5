// Package supervisor owns the lifecycle of llama-server subprocesses, one
// per active model alias, and coordinates request admission against them.
// It is structured into small files by concern:
//
//   - supervisor.go: core Supervisor type, constructor, slot accounting.
//   - config.go: Config and package defaults.
//   - types.go: states, Handle, Lease, and the per-alias entry.
//   - errors.go: error types and predicate helpers.
//   - engine.go: Engine/Process abstraction and the llama-server implementation.
//   - acquire.go: request coordination (single-flight startup, FIFO waiters).
//   - start.go: spawn, readiness probing, crash accounting, backoff restarts.
//   - evict.go: idle-TTL and LRU eviction, admin stop/reset, shutdown.
//   - events.go: lifecycle event publishing.
//   - status.go: handle table snapshots for /status.
//   - metrics.go: Prometheus collectors.
//
// Per-alias state transitions are serialized by the entry's own mutex; the
// supervisor-level mutex guards only the entry map and slot accounting, so
// unrelated aliases never block one another.
package supervisor
