package queue

import (
	"time"

	"agentd/pkg/types"
)

// Request is one admission-control unit. Created on Submit; timing and
// retry fields are mutated only by the queue under its lock.
type Request struct {
	ID        string
	UserID    string
	SessionID string

	Tier           types.Tier
	TaskType       types.TaskType
	Classification string
	Routing        types.RoutingDecision
	Input          string
	Context        map[string]any

	// Per-request execution timeout; 0 uses the class default.
	Timeout time.Duration

	QueuedAt     time.Time
	StartedAt    time.Time
	FirstAttempt time.Time
	RetryCount   int
	LastError    string
}

// InFlightInfo is a read-only projection of an in-flight request used by
// the visibility monitor.
type InFlightInfo struct {
	ID             string
	TaskType       types.TaskType
	Classification string
	StartedAt      time.Time
	RetryCount     int
}
