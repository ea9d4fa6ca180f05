package queue

import (
	"context"
	"testing"
	"time"

	"agentd/pkg/types"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(ManagerConfig{
		Pool: PoolConfig{
			Workers: 2,
			Executor: funcExecutor(func(ctx context.Context, req *Request) (*types.ExecutionResult, error) {
				return &types.ExecutionResult{RequestID: req.ID, Output: "echo: " + req.Input}, nil
			}),
		},
		OrchestratorStatus: func() types.OrchestratorStatus { return types.OrchestratorStatus{LimitMB: 1234} },
		ProfileStatus:      func() types.ProfileStatus { return types.ProfileStatus{State: "normal"} },
		BreakerMetrics:     func() types.BreakerMetrics { return types.BreakerMetrics{State: "closed"} },
	})
	if m.Ready() {
		t.Fatalf("Ready() = true before Start")
	}
	m.Start(context.Background())
	defer m.Stop()
	if !m.Ready() {
		t.Fatalf("Ready() = false after Start")
	}

	sub, err := m.Submit(types.SubmitRequest{Input: "hello"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.RequestID == "" {
		t.Fatalf("empty request id")
	}
	res, err := m.Wait(context.Background(), sub.RequestID, 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Output != "echo: hello" {
		t.Fatalf("Output = %q", res.Output)
	}

	st := m.Status()
	if st.Workers != 2 {
		t.Fatalf("Workers = %d, want 2", st.Workers)
	}
	if st.Orchestrator.LimitMB != 1234 || st.Profile.State != "normal" || st.Breaker.State != "closed" {
		t.Fatalf("status providers not merged: %+v", st)
	}
	if st.Queue.Completed != 1 {
		t.Fatalf("Completed = %d, want 1", st.Queue.Completed)
	}
}

func TestManagerStatusDuringLifecycle(t *testing.T) {
	m := NewManager(ManagerConfig{
		Pool: PoolConfig{
			Workers: 1,
			Executor: funcExecutor(func(ctx context.Context, req *Request) (*types.ExecutionResult, error) {
				return &types.ExecutionResult{RequestID: req.ID}, nil
			}),
		},
	})
	// Ready and Status run from handler goroutines while the lifecycle
	// flips; the race detector flags unguarded access.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			m.Ready()
			m.Status()
		}
	}()
	m.Start(context.Background())
	m.Stop()
	<-done
	if m.Ready() {
		t.Fatalf("Ready() = true after Stop")
	}
}

func TestManagerSubmitDefaults(t *testing.T) {
	m := NewManager(ManagerConfig{
		Pool: PoolConfig{
			Workers: 1,
			Executor: funcExecutor(func(ctx context.Context, req *Request) (*types.ExecutionResult, error) {
				if req.Tier != types.TierNormal || req.TaskType != types.TaskAgent {
					t.Errorf("defaults not applied: tier=%s task=%s", req.Tier, req.TaskType)
				}
				return &types.ExecutionResult{RequestID: req.ID}, nil
			}),
		},
	})
	m.Start(context.Background())
	defer m.Stop()
	sub, err := m.Submit(types.SubmitRequest{Input: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.Wait(context.Background(), sub.RequestID, 2*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestManagerStopRejectsNewWork(t *testing.T) {
	m := NewManager(ManagerConfig{
		Pool: PoolConfig{
			Workers: 1,
			Executor: funcExecutor(func(ctx context.Context, req *Request) (*types.ExecutionResult, error) {
				return &types.ExecutionResult{RequestID: req.ID}, nil
			}),
		},
	})
	m.Start(context.Background())
	m.Stop()
	if m.Ready() {
		t.Fatalf("Ready() = true after Stop")
	}
	if _, err := m.Submit(types.SubmitRequest{Input: "late"}); !IsShutdown(err) {
		t.Fatalf("Submit after Stop err = %v, want shutdown", err)
	}
}
