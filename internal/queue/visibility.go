package queue

import (
	"context"
	"log"
	"time"

	"agentd/pkg/types"
)

// Defaults applied when corresponding MonitorConfig fields are unset.
const (
	defaultSweepInterval     = 10 * time.Second
	defaultVisibilityTimeout = 5 * time.Minute
	defaultMaxRetries        = 2
)

// VisibilityTable resolves the classification-aware visibility timeout:
// how long a request may stay in-flight before it is presumed stuck. It
// must be strictly longer than the worker's own execution budget; it is
// the only self-healing path when that budget fails to fire.
type VisibilityTable struct {
	ByClassification map[string]time.Duration
	ByTaskType       map[types.TaskType]time.Duration
	Default          time.Duration
}

// DefaultVisibility derives a visibility table from the execution budget
// table by doubling every entry.
func DefaultVisibility(t TimeoutTable) VisibilityTable {
	v := VisibilityTable{Default: defaultVisibilityTimeout}
	if t.Default > 0 {
		v.Default = 2 * t.Default
	}
	if len(t.ByClassification) > 0 {
		v.ByClassification = make(map[string]time.Duration, len(t.ByClassification))
		for k, d := range t.ByClassification {
			v.ByClassification[k] = 2 * d
		}
	}
	if len(t.ByTaskType) > 0 {
		v.ByTaskType = make(map[types.TaskType]time.Duration, len(t.ByTaskType))
		for k, d := range t.ByTaskType {
			v.ByTaskType[k] = 2 * d
		}
	}
	return v
}

// Resolve returns the visibility timeout for a request class.
func (v VisibilityTable) Resolve(task types.TaskType, classification string) time.Duration {
	if classification != "" {
		if d, ok := v.ByClassification[classification]; ok && d > 0 {
			return d
		}
	}
	if d, ok := v.ByTaskType[task]; ok && d > 0 {
		return d
	}
	if v.Default > 0 {
		return v.Default
	}
	return defaultVisibilityTimeout
}

// MonitorConfig encapsulates visibility monitor tunables.
type MonitorConfig struct {
	Interval   time.Duration
	Timeouts   VisibilityTable
	MaxRetries int
	Breakers   Breakers
}

// Monitor periodically sweeps the in-flight table and requeues requests
// that exceeded their visibility timeout, up to a retry budget; beyond it
// they fail permanently and the circuit breaker is informed.
type Monitor struct {
	queue      *Queue
	interval   time.Duration
	timeouts   VisibilityTable
	maxRetries int
	breakers   Breakers
}

// NewMonitor constructs a Monitor around q.
func NewMonitor(q *Queue, cfg MonitorConfig) *Monitor {
	m := &Monitor{
		queue:      q,
		interval:   cfg.Interval,
		timeouts:   cfg.Timeouts,
		maxRetries: cfg.MaxRetries,
		breakers:   cfg.Breakers,
	}
	if m.interval <= 0 {
		m.interval = defaultSweepInterval
	}
	if m.maxRetries <= 0 {
		m.maxRetries = defaultMaxRetries
	}
	if m.timeouts.Default == 0 && m.timeouts.ByClassification == nil && m.timeouts.ByTaskType == nil {
		m.timeouts = DefaultVisibility(DefaultTimeouts())
	}
	return m
}

// Run blocks until ctx is done, sweeping at the configured interval.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(time.Now())
		}
	}
}

// Sweep performs one pass over the in-flight table. Exported so tests and
// operators can force a sweep.
func (m *Monitor) Sweep(now time.Time) {
	for id, info := range m.queue.InFlightSnapshot() {
		if info.StartedAt.IsZero() {
			continue
		}
		limit := m.timeouts.Resolve(info.TaskType, info.Classification)
		elapsed := now.Sub(info.StartedAt)
		if elapsed <= limit {
			continue
		}
		if info.RetryCount < m.maxRetries {
			if m.queue.RequeueForRetry(id) {
				log.Printf("visibility event=requeued request=%q elapsed=%s retry=%d", id, elapsed, info.RetryCount+1)
			}
			continue
		}
		log.Printf("visibility event=gave_up request=%q elapsed=%s retries=%d", id, elapsed, info.RetryCount)
		if err := m.queue.MarkFailed(id, ErrExecutionTimeout("stuck in flight for "+elapsed.String())); err == nil {
			if m.breakers != nil {
				m.breakers.RecordFailure("visibility timeout")
			}
		}
	}
}
