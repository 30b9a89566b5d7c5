package config

import "time"

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
// Durations are expressed in seconds in config files for format neutrality
// (yaml/json/toml all lack a portable duration type).
type Config struct {
	Addr       string `json:"addr" yaml:"addr" toml:"addr"`
	AliasesDir string `json:"aliases_dir" yaml:"aliases_dir" toml:"aliases_dir"`
	ModelsDir  string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ExecDir    string `json:"exec_dir" yaml:"exec_dir" toml:"exec_dir"`
	// Forced engine variant; empty means auto-detect. The LLAMAD_EXEC_VARIANT
	// environment variable takes precedence over this field.
	ExecVariant string `json:"exec_variant" yaml:"exec_variant" toml:"exec_variant"`
	// Alias used when a request omits the model field. Empty rejects such requests.
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	// Reload the registry when alias files change on disk.
	WatchAliases bool `json:"watch_aliases" yaml:"watch_aliases" toml:"watch_aliases"`

	// Supervisor policy.
	MaxReady            int `json:"max_ready" yaml:"max_ready" toml:"max_ready"`
	IdleTimeoutSecs     int `json:"idle_timeout_secs" yaml:"idle_timeout_secs" toml:"idle_timeout_secs"`
	StartTimeoutSecs    int `json:"start_timeout_secs" yaml:"start_timeout_secs" toml:"start_timeout_secs"`
	StopTimeoutSecs     int `json:"stop_timeout_secs" yaml:"stop_timeout_secs" toml:"stop_timeout_secs"`
	RequestTimeoutSecs  int `json:"request_timeout_secs" yaml:"request_timeout_secs" toml:"request_timeout_secs"`
	MaxCrashes          int `json:"max_crashes" yaml:"max_crashes" toml:"max_crashes"`
	CrashWindowSecs     int `json:"crash_window_secs" yaml:"crash_window_secs" toml:"crash_window_secs"`
	BackoffBaseMillis   int `json:"backoff_base_ms" yaml:"backoff_base_ms" toml:"backoff_base_ms"`
	BackoffMaxSecs      int `json:"backoff_max_secs" yaml:"backoff_max_secs" toml:"backoff_max_secs"`
	PortMin             int `json:"port_min" yaml:"port_min" toml:"port_min"`
	PortMax             int `json:"port_max" yaml:"port_max" toml:"port_max"`
	ProbeIntervalMillis int `json:"probe_interval_ms" yaml:"probe_interval_ms" toml:"probe_interval_ms"`

	// HTTP surface.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Log          Log   `json:"log" yaml:"log" toml:"log"`
	CORS         CORS  `json:"cors" yaml:"cors" toml:"cors"`
}

// Log configures zerolog output.
type Log struct {
	// debug, info, warn, error. Empty means info.
	Level string `json:"level" yaml:"level" toml:"level"`
	// When set, logs are written here (rotated) instead of stderr.
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	// Pretty console output instead of JSON. Intended for interactive use.
	Console bool `json:"console" yaml:"console" toml:"console"`
}

// CORS configures the optional CORS middleware. Disabled by default.
type CORS struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultAddr            = ":8090"
	DefaultMaxReady        = 2
	DefaultIdleTimeout     = 300 * time.Second
	DefaultStartTimeout    = 120 * time.Second
	DefaultStopTimeout     = 5 * time.Second
	DefaultRequestTimeout  = 600 * time.Second
	DefaultMaxCrashes      = 3
	DefaultCrashWindow     = 60 * time.Second
	DefaultBackoffBase     = 500 * time.Millisecond
	DefaultBackoffMax      = 30 * time.Second
	DefaultProbeInterval   = 250 * time.Millisecond
	DefaultMaxBodyBytes    = int64(10 << 20)
	DefaultLogMaxSizeMB    = 50
	DefaultLogMaxBackups   = 3
)

// ApplyDefaults fills unset fields in place and returns the config.
func (c Config) ApplyDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxReady <= 0 {
		c.MaxReady = DefaultMaxReady
	}
	if c.IdleTimeoutSecs <= 0 {
		c.IdleTimeoutSecs = int(DefaultIdleTimeout / time.Second)
	}
	if c.StartTimeoutSecs <= 0 {
		c.StartTimeoutSecs = int(DefaultStartTimeout / time.Second)
	}
	if c.StopTimeoutSecs <= 0 {
		c.StopTimeoutSecs = int(DefaultStopTimeout / time.Second)
	}
	if c.RequestTimeoutSecs <= 0 {
		c.RequestTimeoutSecs = int(DefaultRequestTimeout / time.Second)
	}
	if c.MaxCrashes <= 0 {
		c.MaxCrashes = DefaultMaxCrashes
	}
	if c.CrashWindowSecs <= 0 {
		c.CrashWindowSecs = int(DefaultCrashWindow / time.Second)
	}
	if c.BackoffBaseMillis <= 0 {
		c.BackoffBaseMillis = int(DefaultBackoffBase / time.Millisecond)
	}
	if c.BackoffMaxSecs <= 0 {
		c.BackoffMaxSecs = int(DefaultBackoffMax / time.Second)
	}
	if c.ProbeIntervalMillis <= 0 {
		c.ProbeIntervalMillis = int(DefaultProbeInterval / time.Millisecond)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	return c
}

// Convenience duration accessors.

func (c Config) IdleTimeout() time.Duration    { return time.Duration(c.IdleTimeoutSecs) * time.Second }
func (c Config) StartTimeout() time.Duration   { return time.Duration(c.StartTimeoutSecs) * time.Second }
func (c Config) StopTimeout() time.Duration    { return time.Duration(c.StopTimeoutSecs) * time.Second }
func (c Config) RequestTimeout() time.Duration { return time.Duration(c.RequestTimeoutSecs) * time.Second }
func (c Config) CrashWindow() time.Duration    { return time.Duration(c.CrashWindowSecs) * time.Second }
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMillis) * time.Millisecond
}
func (c Config) BackoffMax() time.Duration { return time.Duration(c.BackoffMaxSecs) * time.Second }
func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMillis) * time.Millisecond
}
