package breaker

import (
	"testing"
	"time"

	"agentd/internal/profile"
	"agentd/pkg/types"
)

func newTestRegistry(cfg Config) (*Registry, *profile.Manager, *fakeClock) {
	pm := profile.NewManager(profile.ManagerConfig{
		Original: profile.Profile{Name: "standard", Resources: []types.ResourceSpec{{ID: "a", SizeMB: 100}}},
		Fallback: profile.Profile{Name: "conservative", Resources: []types.ResourceSpec{{ID: "b", SizeMB: 50}}},
		// High threshold so only the breaker path can degrade in these tests.
		FallbackThreshold: 1000,
	})
	r := NewRegistry(cfg, pm)
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r.queue.now = clk.now
	r.queue.lastStateChange = clk.t
	return r, pm, clk
}

func TestRegistryOpenForcesFallback(t *testing.T) {
	r, pm, _ := newTestRegistry(Config{FailureThreshold: 2})
	r.RecordFailure("backend down")
	if pm.Degraded() {
		t.Fatalf("degraded before the breaker opened")
	}
	r.RecordFailure("backend down")
	if got := r.State(); got != StateOpen {
		t.Fatalf("State() = %s, want %s", got, StateOpen)
	}
	if !pm.Degraded() {
		t.Fatalf("open breaker did not force profile fallback")
	}
}

func TestRegistryRecoveryCycleCountsTowardProbe(t *testing.T) {
	r, pm, clk := newTestRegistry(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		SuccessThreshold: 1,
	})
	r.RecordFailure("backend down")
	if !pm.Degraded() {
		t.Fatalf("not degraded after breaker opened")
	}
	clk.advance(2 * time.Second)
	if !r.Allow() {
		t.Fatalf("probe not admitted after open timeout")
	}
	// Closing the circuit and the forwarded success both count toward
	// recovery eligibility.
	before := pm.Status().ConsecutiveSuccesses
	r.RecordSuccess()
	if got := r.State(); got != StateClosed {
		t.Fatalf("State() = %s after probe success, want %s", got, StateClosed)
	}
	after := pm.Status().ConsecutiveSuccesses
	if after <= before {
		t.Fatalf("profile success counter did not advance: %d -> %d", before, after)
	}
}

func TestRegistryForwardsOutcomes(t *testing.T) {
	r, pm, _ := newTestRegistry(Config{FailureThreshold: 100})
	r.RecordSuccess()
	r.RecordFailure("slow")
	st := pm.Status()
	if st.TotalSuccesses != 1 || st.TotalFailures != 1 {
		t.Fatalf("profile totals = %d/%d, want 1/1", st.TotalSuccesses, st.TotalFailures)
	}
	m := r.Metrics()
	if m.TotalSuccesses != 1 || m.TotalFailures != 1 {
		t.Fatalf("breaker totals = %d/%d, want 1/1", m.TotalSuccesses, m.TotalFailures)
	}
}

func TestRegistryAllowClosed(t *testing.T) {
	r, _, _ := newTestRegistry(Config{})
	if !r.Allow() {
		t.Fatalf("Allow() = false on a fresh registry")
	}
}
