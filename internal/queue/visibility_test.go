package queue

import (
	"context"
	"testing"
	"time"

	"agentd/pkg/types"
)

func TestSweepRequeuesStuckRequest(t *testing.T) {
	q := NewQueue(QueueConfig{})
	br := newFakeBreakers()
	m := NewMonitor(q, MonitorConfig{
		Timeouts:   VisibilityTable{Default: time.Minute},
		MaxRetries: 2,
		Breakers:   br,
	})

	id := submitOrFatal(t, q, &Request{})
	q.Dequeue() // now in flight, worker presumed stuck

	m.Sweep(time.Now().Add(2 * time.Minute))
	if got := q.Metrics().Retried; got != 1 {
		t.Fatalf("Retried = %d after first sweep, want 1", got)
	}
	req := q.Dequeue()
	if req.ID != id || req.RetryCount != 1 {
		t.Fatalf("requeued = %s retry=%d, want %s retry=1", req.ID, req.RetryCount, id)
	}
}

func TestSweepGivesUpAfterMaxRetries(t *testing.T) {
	q := NewQueue(QueueConfig{})
	br := newFakeBreakers()
	m := NewMonitor(q, MonitorConfig{
		Timeouts:   VisibilityTable{Default: time.Minute},
		MaxRetries: 2,
		Breakers:   br,
	})

	id := submitOrFatal(t, q, &Request{})
	for i := 0; i < 2; i++ {
		q.Dequeue()
		m.Sweep(time.Now().Add(2 * time.Minute))
	}
	// Third attempt: retry budget exhausted, the request fails for good.
	q.Dequeue()
	m.Sweep(time.Now().Add(2 * time.Minute))

	_, err := q.WaitResult(context.Background(), id, time.Second)
	if !IsExecutionTimeout(err) {
		t.Fatalf("err = %v, want execution-timeout", err)
	}
	if got := q.Metrics().Retried; got != 2 {
		t.Fatalf("Retried = %d, want 2", got)
	}
	_, fails := br.snapshot()
	if len(fails) != 1 || fails[0] != "visibility timeout" {
		t.Fatalf("breaker failures = %v, want [visibility timeout]", fails)
	}
}

func TestSweepLeavesHealthyRequestsAlone(t *testing.T) {
	q := NewQueue(QueueConfig{})
	m := NewMonitor(q, MonitorConfig{Timeouts: VisibilityTable{Default: time.Minute}})
	submitOrFatal(t, q, &Request{})
	q.Dequeue()
	m.Sweep(time.Now().Add(30 * time.Second))
	if got := q.Metrics().Retried; got != 0 {
		t.Fatalf("Retried = %d for a healthy request, want 0", got)
	}
	if got := q.Metrics().InFlight; got != 1 {
		t.Fatalf("InFlight = %d, want 1", got)
	}
}

func TestDefaultVisibilityDoublesBudgets(t *testing.T) {
	v := DefaultVisibility(DefaultTimeouts())
	if got := v.Resolve(types.TaskSkill, ""); got != time.Minute {
		t.Fatalf("skill = %s, want 1m", got)
	}
	if got := v.Resolve(types.TaskAgent, ""); got != 4*time.Minute {
		t.Fatalf("agent = %s, want 4m", got)
	}
	if got := v.Resolve(types.TaskAgent, "image_generation"); got != 10*time.Minute {
		t.Fatalf("image_generation = %s, want 10m", got)
	}
	if got := v.Resolve(types.TaskType("other"), ""); got != 2*time.Minute {
		t.Fatalf("default = %s, want 2m", got)
	}
}
