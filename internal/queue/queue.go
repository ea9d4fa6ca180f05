package queue

import (
	"container/heap"
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentd/pkg/types"
)

// Defaults applied when corresponding QueueConfig fields are unset.
const defaultMaxDepth = 256

// QueueConfig encapsulates priority queue tunables.
type QueueConfig struct {
	// Strategy computes priority scores; nil uses HybridStrategy.
	Strategy ScoreStrategy
	// MaxDepth bounds queued (not in-flight) requests; <0 means unbounded,
	// 0 uses the default.
	MaxDepth int
}

// Queue is a concurrency-safe priority queue of submitted requests plus
// an in-flight table. One mutex guards all mutable state; Dequeue blocks
// on a condition variable signaled by Submit/RequeueForRetry and released
// by Close.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	strategy ScoreStrategy
	maxDepth int

	heap     entryHeap
	seq      uint64
	pending  map[string]*Request
	inflight map[string]*Request
	results  map[string]*resultHolder
	cancels  map[string]context.CancelFunc
	wantStop map[string]bool
	closed   bool

	// Lifetime counters and rolling sums.
	enqueued, completed, failed, timedOut, cancelled, retried, rejected uint64
	waitTotal, processTotal                                            time.Duration
	waitCount, processCount                                            uint64
}

// NewQueue constructs an empty queue.
func NewQueue(cfg QueueConfig) *Queue {
	q := &Queue{
		strategy: cfg.Strategy,
		maxDepth: cfg.MaxDepth,
		pending:  make(map[string]*Request),
		inflight: make(map[string]*Request),
		results:  make(map[string]*resultHolder),
		cancels:  make(map[string]context.CancelFunc),
		wantStop: make(map[string]bool),
	}
	if q.strategy == nil {
		q.strategy = HybridStrategy{}
	}
	if q.maxDepth == 0 {
		q.maxDepth = defaultMaxDepth
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit admits a request and returns its id. The priority score is
// computed once here; a request's position changes only on requeue.
func (q *Queue) Submit(req *Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrShutdown()
	}
	if q.maxDepth > 0 && len(q.pending) >= q.maxDepth {
		q.rejected++
		metricOutcomes.WithLabelValues("rejected").Inc()
		return "", ErrTooBusy()
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, dup := q.results[req.ID]; dup {
		return "", ErrConflict(req.ID)
	}
	now := time.Now()
	req.QueuedAt = now
	q.pending[req.ID] = req
	q.results[req.ID] = newResultHolder()
	q.pushLocked(req, now)
	q.enqueued++
	metricDepth.Set(float64(len(q.pending)))
	q.cond.Signal()
	return req.ID, nil
}

func (q *Queue) pushLocked(req *Request, now time.Time) {
	q.seq++
	heap.Push(&q.heap, entry{
		negScore: -q.strategy.Score(req, now),
		seq:      q.seq,
		id:       req.ID,
	})
}

// Dequeue blocks until a request is available and returns it, or nil once
// the queue is closed. Stale heap entries left behind by cancellation are
// skipped lazily here.
func (q *Queue) Dequeue() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(entry)
			req, ok := q.pending[e.id]
			if !ok {
				continue // cancelled while queued
			}
			delete(q.pending, e.id)
			now := time.Now()
			req.StartedAt = now
			if req.FirstAttempt.IsZero() {
				req.FirstAttempt = now
			}
			q.inflight[req.ID] = req
			wait := now.Sub(req.QueuedAt)
			q.waitTotal += wait
			q.waitCount++
			metricDepth.Set(float64(len(q.pending)))
			metricInFlight.Set(float64(len(q.inflight)))
			metricWaitSeconds.Observe(wait.Seconds())
			return req
		}
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
}

// WaitResult blocks until the request completes, the timeout elapses or
// ctx is done. The holder is released on first collection.
func (q *Queue) WaitResult(ctx context.Context, id string, timeout time.Duration) (*types.ExecutionResult, error) {
	q.mu.Lock()
	h, ok := q.results[id]
	q.mu.Unlock()
	if !ok {
		return nil, ErrNotFound(id)
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case <-h.done:
		q.mu.Lock()
		delete(q.results, id)
		q.mu.Unlock()
		return h.res, h.err
	case <-timeoutCh:
		return nil, ErrWaitTimeout(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel cancels a request. A still-queued request is removed immediately
// and its result resolves with a cancellation error; for an in-flight
// request the bound context cancel (if any) fires and false is returned,
// since the queue cannot interrupt a running worker.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	if req, ok := q.pending[id]; ok {
		delete(q.pending, id) // stale heap entry skipped on dequeue
		req.LastError = "cancelled"
		h := q.results[id]
		q.cancelled++
		metricDepth.Set(float64(len(q.pending)))
		metricOutcomes.WithLabelValues("cancelled").Inc()
		q.mu.Unlock()
		if h != nil {
			h.set(nil, ErrCancelled(id))
		}
		log.Printf("queue event=cancelled_queued request=%q", id)
		return true
	}
	if _, ok := q.inflight[id]; ok {
		q.wantStop[id] = true
		cancel := q.cancels[id]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		log.Printf("queue event=cancel_inflight request=%q", id)
		return false
	}
	q.mu.Unlock()
	return false
}

// BindCancel attaches the worker's per-request CancelFunc so an advisory
// in-flight cancellation can propagate into the executor. If cancellation
// was requested before the worker got here, it fires immediately.
func (q *Queue) BindCancel(id string, cancel context.CancelFunc) {
	q.mu.Lock()
	if _, ok := q.inflight[id]; !ok {
		q.mu.Unlock()
		return
	}
	q.cancels[id] = cancel
	fire := q.wantStop[id]
	q.mu.Unlock()
	if fire {
		cancel()
	}
}

// MarkComplete records a successful execution.
func (q *Queue) MarkComplete(id string, res *types.ExecutionResult) error {
	return q.finish(id, res, nil)
}

// MarkFailed records a terminal failure.
func (q *Queue) MarkFailed(id string, failure error) error {
	return q.finish(id, nil, failure)
}

func (q *Queue) finish(id string, res *types.ExecutionResult, failure error) error {
	q.mu.Lock()
	req, ok := q.inflight[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound(id)
	}
	delete(q.inflight, id)
	delete(q.cancels, id)
	delete(q.wantStop, id)
	if !req.StartedAt.IsZero() {
		d := time.Since(req.StartedAt)
		q.processTotal += d
		q.processCount++
		metricProcessSeconds.Observe(d.Seconds())
	}
	outcome := "completed"
	switch {
	case failure == nil:
		q.completed++
	case IsExecutionTimeout(failure):
		q.timedOut++
		outcome = "timed_out"
		req.LastError = failure.Error()
	case IsCancelled(failure):
		q.cancelled++
		outcome = "cancelled"
		req.LastError = failure.Error()
	case IsDegraded(failure):
		q.rejected++
		outcome = "rejected"
		req.LastError = failure.Error()
	default:
		q.failed++
		outcome = "failed"
		req.LastError = failure.Error()
	}
	h := q.results[id]
	metricInFlight.Set(float64(len(q.inflight)))
	metricOutcomes.WithLabelValues(outcome).Inc()
	q.mu.Unlock()
	if h != nil {
		h.set(res, failure)
	}
	return nil
}

// RequeueForRetry moves an in-flight request back onto the heap with a
// fresh queued-at time (the age bonus restarts) while preserving the
// first-attempt timestamp. Invoked only by the visibility monitor.
func (q *Queue) RequeueForRetry(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.inflight[id]
	if !ok || q.closed {
		return false
	}
	delete(q.inflight, id)
	delete(q.cancels, id)
	delete(q.wantStop, id)
	req.RetryCount++
	now := time.Now()
	req.QueuedAt = now
	req.StartedAt = time.Time{}
	q.pending[id] = req
	q.pushLocked(req, now)
	q.retried++
	metricDepth.Set(float64(len(q.pending)))
	metricInFlight.Set(float64(len(q.inflight)))
	q.cond.Signal()
	log.Printf("queue event=requeued request=%q retry=%d", id, req.RetryCount)
	return true
}

// Position returns the 0-based queue position of a still-queued request,
// or -1 when the id is unknown or already running.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return -1
	}
	live := make([]entry, 0, len(q.heap))
	for _, e := range q.heap {
		if _, ok := q.pending[e.id]; ok {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].negScore != live[j].negScore {
			return live[i].negScore < live[j].negScore
		}
		return live[i].seq < live[j].seq
	})
	for i, e := range live {
		if e.id == id {
			return i
		}
	}
	return -1
}

// InFlightSnapshot copies the in-flight table for the visibility monitor.
func (q *Queue) InFlightSnapshot() map[string]InFlightInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]InFlightInfo, len(q.inflight))
	for id, req := range q.inflight {
		out[id] = InFlightInfo{
			ID:             id,
			TaskType:       req.TaskType,
			Classification: req.Classification,
			StartedAt:      req.StartedAt,
			RetryCount:     req.RetryCount,
		}
	}
	return out
}

// Metrics snapshots queue counters for the monitoring surface.
func (q *Queue) Metrics() types.QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := types.QueueMetrics{
		Depth:     len(q.pending),
		InFlight:  len(q.inflight),
		Enqueued:  q.enqueued,
		Completed: q.completed,
		Failed:    q.failed,
		TimedOut:  q.timedOut,
		Cancelled: q.cancelled,
		Retried:   q.retried,
		Rejected:  q.rejected,
	}
	if q.waitCount > 0 {
		m.AvgWaitMs = float64(q.waitTotal.Milliseconds()) / float64(q.waitCount)
	}
	if q.processCount > 0 {
		m.AvgProcessMs = float64(q.processTotal.Milliseconds()) / float64(q.processCount)
	}
	return m
}

// Close shuts the queue down: waiting Dequeue calls return nil and every
// uncollected result resolves with a shutdown error.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var holders []*resultHolder
	for id := range q.pending {
		if h, ok := q.results[id]; ok {
			holders = append(holders, h)
		}
		delete(q.pending, id)
	}
	q.heap = q.heap[:0]
	metricDepth.Set(0)
	q.cond.Broadcast()
	q.mu.Unlock()
	for _, h := range holders {
		h.set(nil, ErrShutdown())
	}
	log.Printf("queue event=closed")
}
