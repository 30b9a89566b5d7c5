package supervisor

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Acquire after the supervisor shut down.
var ErrClosed = errors.New("supervisor closed")

// unavailableError is terminal: the alias exhausted its crash budget and
// needs an external reset. Maps to 503, non-retryable.
type unavailableError struct {
	alias string
	cause error
}

func (e unavailableError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("model %q unavailable after repeated crashes: %v", e.alias, e.cause)
	}
	return fmt.Sprintf("model %q unavailable after repeated crashes", e.alias)
}

func (e unavailableError) Unwrap() error { return e.cause }

// IsUnavailable reports whether err indicates a crash-looped alias.
func IsUnavailable(err error) bool {
	var ue unavailableError
	return errors.As(err, &ue)
}

// startTimeoutError signals the engine did not become ready in time.
// Transient from the caller's view: a retry may hit a warm process.
type startTimeoutError struct {
	alias string
	cause error
}

func (e startTimeoutError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("model %q did not become ready: %v", e.alias, e.cause)
	}
	return fmt.Sprintf("model %q did not become ready in time", e.alias)
}

func (e startTimeoutError) Unwrap() error { return e.cause }

// IsStartTimeout reports whether err indicates a readiness timeout.
func IsStartTimeout(err error) bool {
	var se startTimeoutError
	return errors.As(err, &se)
}

// crashedError fails a queued request when the engine exits before that
// request was served. Retryable: the supervisor restarts with backoff.
type crashedError struct {
	alias string
	cause error
}

func (e crashedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("model %q crashed: %v", e.alias, e.cause)
	}
	return fmt.Sprintf("model %q crashed", e.alias)
}

func (e crashedError) Unwrap() error { return e.cause }

// IsCrashed reports whether err indicates an engine crash.
func IsCrashed(err error) bool {
	var ce crashedError
	return errors.As(err, &ce)
}

// spawnError wraps a failure to even launch the engine binary.
type spawnError struct{ cause error }

func (e spawnError) Error() string { return fmt.Sprintf("spawn llama-server: %v", e.cause) }
func (e spawnError) Unwrap() error { return e.cause }

// notRunningError is returned by admin operations targeting an alias with
// no live handle.
type notRunningError struct{ alias string }

func (e notRunningError) Error() string { return fmt.Sprintf("model %q is not running", e.alias) }

// IsNotRunning reports whether err indicates an absent handle.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}
