package types

// HandleStatus summarizes one supervised engine process for GET /status.
type HandleStatus struct {
	// Alias this handle serves.
	// example: llama3:instruct
	Alias string `json:"alias" example:"llama3:instruct"`
	// Lifecycle state (starting, ready, evicting, crashed, unavailable).
	// example: ready
	State string `json:"state" example:"ready"`
	// Process ID of the engine, 0 while not running.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Loopback port the engine listens on.
	// example: 32801
	Port int `json:"port,omitempty" example:"32801"`
	// Time the process was started (unix seconds).
	// example: 1700000000
	StartedAt int64 `json:"started_at_unix,omitempty" example:"1700000000"`
	// Last time a request used this handle (unix seconds).
	// example: 1700000042
	LastUsed int64 `json:"last_used_unix,omitempty" example:"1700000042"`
	// Requests currently being served by this handle.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Requests queued waiting for readiness.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Consecutive crashes inside the rolling crash window.
	// example: 0
	Crashes int `json:"crashes" example:"0"`
	// Last startup or crash error, if any.
	LastError string `json:"last_error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Live handles, one per alias that is not absent.
	Handles []HandleStatus `json:"handles"`
	// Maximum number of simultaneously ready handles.
	// example: 2
	MaxReady int `json:"max_ready" example:"2"`
	// Engine build variant selected at startup.
	// example: metal
	Variant string `json:"variant" example:"metal"`
	// Number of aliases currently registered.
	// example: 4
	Aliases int `json:"aliases" example:"4"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
