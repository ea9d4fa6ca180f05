package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentd/pkg/types"
)

func submitOrFatal(t *testing.T, q *Queue, req *Request) string {
	t.Helper()
	id, err := q.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return id
}

func TestDequeueOrderHybrid(t *testing.T) {
	q := NewQueue(QueueConfig{})
	normAgent := submitOrFatal(t, q, &Request{Tier: types.TierNormal, TaskType: types.TaskAgent})
	normSkill := submitOrFatal(t, q, &Request{Tier: types.TierNormal, TaskType: types.TaskSkill})
	vipAgent := submitOrFatal(t, q, &Request{Tier: types.TierVIP, TaskType: types.TaskAgent})

	want := []string{vipAgent, normSkill, normAgent}
	for i, id := range want {
		req := q.Dequeue()
		if req == nil || req.ID != id {
			t.Fatalf("dequeue %d = %v, want %s", i, req, id)
		}
	}
}

func TestDequeueFIFOWithinScore(t *testing.T) {
	q := NewQueue(QueueConfig{})
	first := submitOrFatal(t, q, &Request{Tier: types.TierNormal, TaskType: types.TaskAgent})
	second := submitOrFatal(t, q, &Request{Tier: types.TierNormal, TaskType: types.TaskAgent})
	if got := q.Dequeue().ID; got != first {
		t.Fatalf("first dequeue = %s, want %s", got, first)
	}
	if got := q.Dequeue().ID; got != second {
		t.Fatalf("second dequeue = %s, want %s", got, second)
	}
}

func TestDequeueFIFOStrategy(t *testing.T) {
	q := NewQueue(QueueConfig{Strategy: FIFOStrategy{}})
	first := submitOrFatal(t, q, &Request{Tier: types.TierVIP})
	second := submitOrFatal(t, q, &Request{Tier: types.TierNormal})
	// FIFO ignores tiers entirely.
	if got := q.Dequeue().ID; got != first {
		t.Fatalf("first dequeue = %s, want %s", got, first)
	}
	_ = second
}

func TestSubmitBackpressure(t *testing.T) {
	q := NewQueue(QueueConfig{MaxDepth: 2})
	submitOrFatal(t, q, &Request{})
	submitOrFatal(t, q, &Request{})
	_, err := q.Submit(&Request{})
	if !IsTooBusy(err) {
		t.Fatalf("err = %v, want too-busy", err)
	}
	if got := q.Metrics().Rejected; got != 1 {
		t.Fatalf("Rejected = %d, want 1", got)
	}
}

func TestSubmitDuplicateID(t *testing.T) {
	q := NewQueue(QueueConfig{})
	submitOrFatal(t, q, &Request{ID: "dup-1"})
	_, err := q.Submit(&Request{ID: "dup-1"})
	if !IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if IsTooBusy(err) {
		t.Fatalf("duplicate id reported as backpressure")
	}
	// The original request is untouched.
	if got := q.Dequeue().ID; got != "dup-1" {
		t.Fatalf("Dequeue = %s, want dup-1", got)
	}
}

func TestCancelQueued(t *testing.T) {
	q := NewQueue(QueueConfig{})
	a := submitOrFatal(t, q, &Request{})
	b := submitOrFatal(t, q, &Request{})
	if !q.Cancel(a) {
		t.Fatalf("Cancel(queued) = false, want true")
	}
	// Stale heap entry is skipped; the survivor comes out.
	if got := q.Dequeue().ID; got != b {
		t.Fatalf("Dequeue = %s, want %s", got, b)
	}
	_, err := q.WaitResult(context.Background(), a, time.Second)
	if !IsCancelled(err) {
		t.Fatalf("WaitResult(cancelled) err = %v, want cancelled", err)
	}
}

func TestCancelInFlightIsAdvisory(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	req := q.Dequeue()
	ctx, cancel := context.WithCancel(context.Background())
	q.BindCancel(req.ID, cancel)
	if q.Cancel(id) {
		t.Fatalf("Cancel(in-flight) = true, want false")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("bound context not cancelled")
	}
}

func TestBindCancelAfterCancelFiresImmediately(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	q.Dequeue()
	q.Cancel(id) // lands before the worker binds
	ctx, cancel := context.WithCancel(context.Background())
	q.BindCancel(id, cancel)
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("late-bound context not cancelled")
	}
}

func TestCancelUnknown(t *testing.T) {
	q := NewQueue(QueueConfig{})
	if q.Cancel("ghost") {
		t.Fatalf("Cancel(unknown) = true")
	}
}

func TestWaitResultComplete(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	req := q.Dequeue()
	want := &types.ExecutionResult{RequestID: req.ID, Output: "hi"}
	if err := q.MarkComplete(req.ID, want); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	res, err := q.WaitResult(context.Background(), id, time.Second)
	if err != nil {
		t.Fatalf("WaitResult: %v", err)
	}
	if res.Output != "hi" {
		t.Fatalf("Output = %q, want %q", res.Output, "hi")
	}
	// The holder is released on collection.
	_, err = q.WaitResult(context.Background(), id, time.Second)
	if !IsNotFound(err) {
		t.Fatalf("second WaitResult err = %v, want not-found", err)
	}
}

func TestWaitResultFailure(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	q.Dequeue()
	if err := q.MarkFailed(id, errors.New("boom")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	_, err := q.WaitResult(context.Background(), id, time.Second)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("WaitResult err = %v, want boom", err)
	}
}

func TestWaitResultTimeout(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	_, err := q.WaitResult(context.Background(), id, 10*time.Millisecond)
	if !IsWaitTimeout(err) {
		t.Fatalf("err = %v, want wait-timeout", err)
	}
	// A wait timeout does not consume the result.
	q.Dequeue()
	if err := q.MarkComplete(id, &types.ExecutionResult{RequestID: id}); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if _, err := q.WaitResult(context.Background(), id, time.Second); err != nil {
		t.Fatalf("WaitResult after completion: %v", err)
	}
}

func TestWaitResultContextCancelled(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.WaitResult(ctx, id, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWaitResultUnknown(t *testing.T) {
	q := NewQueue(QueueConfig{})
	_, err := q.WaitResult(context.Background(), "ghost", time.Millisecond)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestRequeueForRetry(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{Tier: types.TierNormal})
	req := q.Dequeue()
	firstAttempt := req.FirstAttempt
	if firstAttempt.IsZero() {
		t.Fatalf("FirstAttempt not set on dequeue")
	}
	if !q.RequeueForRetry(id) {
		t.Fatalf("RequeueForRetry = false")
	}
	again := q.Dequeue()
	if again.ID != id {
		t.Fatalf("requeued dequeue = %s, want %s", again.ID, id)
	}
	if again.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", again.RetryCount)
	}
	if !again.FirstAttempt.Equal(firstAttempt) {
		t.Fatalf("FirstAttempt changed on requeue")
	}
	if got := q.Metrics().Retried; got != 1 {
		t.Fatalf("Retried = %d, want 1", got)
	}
}

func TestRequeueUnknown(t *testing.T) {
	q := NewQueue(QueueConfig{})
	if q.RequeueForRetry("ghost") {
		t.Fatalf("RequeueForRetry(unknown) = true")
	}
}

func TestPosition(t *testing.T) {
	q := NewQueue(QueueConfig{})
	norm := submitOrFatal(t, q, &Request{Tier: types.TierNormal})
	vip := submitOrFatal(t, q, &Request{Tier: types.TierVIP})
	if got := q.Position(vip); got != 0 {
		t.Fatalf("Position(vip) = %d, want 0", got)
	}
	if got := q.Position(norm); got != 1 {
		t.Fatalf("Position(norm) = %d, want 1", got)
	}
	if got := q.Position("ghost"); got != -1 {
		t.Fatalf("Position(unknown) = %d, want -1", got)
	}
	q.Dequeue()
	if got := q.Position(vip); got != -1 {
		t.Fatalf("Position(in-flight) = %d, want -1", got)
	}
}

func TestCloseFailsPendingAndUnblocksDequeue(t *testing.T) {
	q := NewQueue(QueueConfig{})
	id := submitOrFatal(t, q, &Request{})

	done := make(chan *Request, 1)
	go func() {
		// Drain the one pending request, then block until Close.
		q.Dequeue()
		done <- q.Dequeue()
	}()
	// Give the goroutine a moment to take the pending request.
	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case req := <-done:
		if req != nil {
			t.Fatalf("Dequeue after Close = %v, want nil", req)
		}
	case <-time.After(time.Second):
		t.Fatalf("Dequeue did not unblock on Close")
	}
	// The drained request became in-flight before Close, so its holder
	// still resolves through MarkFailed; a queued-only request would have
	// been failed with shutdown.
	_ = id

	q2 := NewQueue(QueueConfig{})
	queued := submitOrFatal(t, q2, &Request{})
	q2.Close()
	_, err := q2.WaitResult(context.Background(), queued, time.Second)
	if !IsShutdown(err) {
		t.Fatalf("WaitResult after Close err = %v, want shutdown", err)
	}
	if _, err := q2.Submit(&Request{}); !IsShutdown(err) {
		t.Fatalf("Submit after Close err = %v, want shutdown", err)
	}
}

func TestMetricsCounters(t *testing.T) {
	q := NewQueue(QueueConfig{})
	a := submitOrFatal(t, q, &Request{})
	b := submitOrFatal(t, q, &Request{})
	c := submitOrFatal(t, q, &Request{})

	q.Dequeue()
	if err := q.MarkComplete(a, &types.ExecutionResult{RequestID: a}); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	q.Dequeue()
	if err := q.MarkFailed(b, ErrExecutionTimeout("budget exceeded")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	q.Cancel(c)

	m := q.Metrics()
	if m.Enqueued != 3 || m.Completed != 1 || m.TimedOut != 1 || m.Cancelled != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.Depth != 0 || m.InFlight != 0 {
		t.Fatalf("depth/inflight = %d/%d, want 0/0", m.Depth, m.InFlight)
	}
}

func TestScoreConstants(t *testing.T) {
	now := time.Now()
	s := HybridStrategy{}
	vip := s.Score(&Request{Tier: types.TierVIP, TaskType: types.TaskAgent, QueuedAt: now}, now)
	if vip != 100 {
		t.Fatalf("vip/agent score = %v, want 100", vip)
	}
	prem := s.Score(&Request{Tier: types.TierPremium, TaskType: types.TaskSkill, QueuedAt: now}, now)
	if prem != 100 {
		t.Fatalf("premium/skill score = %v, want 100", prem)
	}
	// Age bonus caps at 30: an hour-old normal/agent request still loses
	// to a fresh premium/agent one.
	old := s.Score(&Request{Tier: types.TierNormal, TaskType: types.TaskAgent, QueuedAt: now.Add(-time.Hour)}, now)
	if old != 30 {
		t.Fatalf("aged score = %v, want 30", old)
	}
}
