package types

// Priority classifies a resource for eviction preference. LOW is evicted
// first, CRITICAL last (and only as a last resort).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank maps a priority to its eviction order: lower ranks are evicted first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priority classes.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ResourceSpec describes one loadable resource (model) in a profile.
type ResourceSpec struct {
	// Stable identifier the backend knows the resource by.
	ID string `json:"id"`
	// Human-friendly name.
	Name string `json:"name,omitempty"`
	// Approximate memory footprint in MB when loaded.
	SizeMB int `json:"size_mb"`
	// Eviction preference class.
	Priority Priority `json:"priority"`
	// Optional capability flags (e.g., "tools", "vision", "embedding").
	Capabilities []string `json:"capabilities,omitempty"`
}

// Tier is the user tier a request was submitted under.
type Tier string

const (
	TierVIP     Tier = "vip"
	TierPremium Tier = "premium"
	TierNormal  Tier = "normal"
)

// TaskType distinguishes lightweight skill tasks from heavier agent tasks.
type TaskType string

const (
	TaskSkill TaskType = "skill"
	TaskAgent TaskType = "agent"
)

// RoutingDecision tells the executor which resource (or role) should serve
// a request. Either ResourceID or Role may be set; ResourceID wins.
type RoutingDecision struct {
	ResourceID string `json:"resource_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// ExecutionResult is the terminal output of one executed request.
type ExecutionResult struct {
	RequestID  string `json:"request_id"`
	ResourceID string `json:"resource_id,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
