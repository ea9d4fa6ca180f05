package types

// LoadedResourceStatus summarizes one loaded resource for /status.
type LoadedResourceStatus struct {
	ID       string   `json:"id"`
	SizeMB   int      `json:"size_mb"`
	Priority Priority `json:"priority"`
	// Unix seconds.
	LoadedAt int64 `json:"loaded_at_unix"`
	LastUsed int64 `json:"last_used_unix"`
}

// OrchestratorStatus reports capacity accounting and the loaded set.
type OrchestratorStatus struct {
	LimitMB     int                    `json:"limit_mb"`
	UsedMB      int                    `json:"used_mb"`
	AvailableMB int                    `json:"available_mb"`
	Loaded      []LoadedResourceStatus `json:"loaded"`
	Loading     []string               `json:"loading,omitempty"`
	// Lifetime counters.
	EvictionsTotal uint64 `json:"evictions_total"`
	LoadsTotal     uint64 `json:"loads_total"`
}

// QueueMetrics is the monitor-side view of the request queue.
type QueueMetrics struct {
	Depth    int `json:"depth"`
	InFlight int `json:"in_flight"`
	// Lifetime counters.
	Enqueued  uint64 `json:"enqueued_total"`
	Completed uint64 `json:"completed_total"`
	Failed    uint64 `json:"failed_total"`
	TimedOut  uint64 `json:"timed_out_total"`
	Cancelled uint64 `json:"cancelled_total"`
	Retried   uint64 `json:"retried_total"`
	Rejected  uint64 `json:"rejected_total"`
	// Rolling averages in milliseconds.
	AvgWaitMs    float64 `json:"avg_wait_ms"`
	AvgProcessMs float64 `json:"avg_process_ms"`
}

// BreakerMetrics snapshots one circuit breaker.
type BreakerMetrics struct {
	Name                 string  `json:"name"`
	State                string  `json:"state"`
	ConsecutiveFailures  int     `json:"consecutive_failures"`
	ConsecutiveSuccesses int     `json:"consecutive_successes"`
	TotalSuccesses       uint64  `json:"total_successes"`
	TotalFailures        uint64  `json:"total_failures"`
	WindowFailureRate    float64 `json:"window_failure_rate"`
	// Unix seconds; 0 when never.
	LastFailureAt    int64 `json:"last_failure_unix,omitempty"`
	LastStateChange  int64 `json:"last_state_change_unix,omitempty"`
	OpenCount        uint64 `json:"open_count"`
	HalfOpenAttempts int    `json:"half_open_attempts"`
}

// ProfileStatus reports the fallback state machine.
type ProfileStatus struct {
	State                string `json:"state"` // normal | degraded
	ActiveProfile        string `json:"active_profile"`
	OriginalProfile      string `json:"original_profile"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	ConsecutiveSuccesses int    `json:"consecutive_successes"`
	TotalFailures        uint64 `json:"total_failures"`
	TotalSuccesses       uint64 `json:"total_successes"`
	Fallbacks            uint64 `json:"fallbacks_total"`
	Recoveries           uint64 `json:"recoveries_total"`
	ProbeEligible        bool   `json:"probe_eligible"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Queue        QueueMetrics       `json:"queue"`
	Breaker      BreakerMetrics     `json:"breaker"`
	Profile      ProfileStatus      `json:"profile"`
	Orchestrator OrchestratorStatus `json:"orchestrator"`
	Workers      int                `json:"workers"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
