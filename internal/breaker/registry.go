package breaker

import (
	"agentd/internal/profile"
	"agentd/pkg/types"
)

// Registry couples the queue-level breaker with the profile fallback
// state machine: opening the circuit forces an immediate profile
// fallback, and a successful HALF_OPEN probe cycle counts toward
// recovery eligibility. Every outcome recorded here is also forwarded to
// the profile manager so end-to-end execution failures count toward
// degradation alongside raw load failures.
type Registry struct {
	queue    *Breaker
	profiles *profile.Manager
}

// NewRegistry builds the registry around a single queue-level breaker.
func NewRegistry(cfg Config, profiles *profile.Manager) *Registry {
	r := &Registry{profiles: profiles}
	r.queue = New("queue", cfg, r.onStateChange)
	return r
}

func (r *Registry) onStateChange(name string, from, to State) {
	if r.profiles == nil {
		return
	}
	switch {
	case to == StateOpen:
		r.profiles.ForceFallback("circuit " + name + " open")
	case from == StateHalfOpen && to == StateClosed:
		r.profiles.RecordLoadSuccess()
	}
}

// Allow reports whether the queue breaker admits a new execution.
func (r *Registry) Allow() bool {
	return r.queue.Allow()
}

// RecordSuccess notes a successful execution on the breaker and the
// profile manager.
func (r *Registry) RecordSuccess() {
	r.queue.RecordSuccess()
	if r.profiles != nil {
		r.profiles.RecordLoadSuccess()
	}
}

// RecordFailure notes a failed execution on the breaker and the profile
// manager.
func (r *Registry) RecordFailure(reason string) {
	r.queue.RecordFailure(reason)
	if r.profiles != nil {
		r.profiles.RecordLoadFailure(reason)
	}
}

// State returns the queue breaker state.
func (r *Registry) State() State {
	return r.queue.State()
}

// Metrics snapshots the queue breaker.
func (r *Registry) Metrics() types.BreakerMetrics {
	return r.queue.Metrics()
}
