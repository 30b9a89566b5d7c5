package supervisor

import "time"

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxReady        = 2
	defaultIdleTimeout     = 5 * time.Minute
	defaultStartTimeout    = 2 * time.Minute
	defaultStopTimeout     = 5 * time.Second
	defaultMaxCrashes      = 3
	defaultCrashWindow     = time.Minute
	defaultBackoffBase     = 500 * time.Millisecond
	defaultBackoffMax      = 30 * time.Second
	defaultProbeInterval   = 250 * time.Millisecond
	defaultJanitorInterval = 10 * time.Second
)

// Config encapsulates all supervisor tunables. These are deployment policy,
// not design constants; main wires them from the config file.
type Config struct {
	// Maximum number of simultaneously live handles (Starting or Ready).
	MaxReady int
	// A Ready handle idle longer than this with no in-flight requests is evicted.
	IdleTimeout time.Duration
	// Overall budget for spawn plus readiness probing.
	StartTimeout time.Duration
	// Grace period between SIGTERM and SIGKILL when stopping an engine.
	StopTimeout time.Duration
	// Crash budget: MaxCrashes within CrashWindow moves the alias to Unavailable.
	MaxCrashes  int
	CrashWindow time.Duration
	// Exponential restart backoff bounds.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Interval between readiness probes while Starting.
	ProbeInterval time.Duration
	// Interval between idle-eviction sweeps.
	JanitorInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReady <= 0 {
		c.MaxReady = defaultMaxReady
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
	if c.MaxCrashes <= 0 {
		c.MaxCrashes = defaultMaxCrashes
	}
	if c.CrashWindow <= 0 {
		c.CrashWindow = defaultCrashWindow
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = defaultProbeInterval
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
	return c
}
