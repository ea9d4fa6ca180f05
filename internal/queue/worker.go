package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"agentd/pkg/types"
)

// Executor runs one request end to end. Implementations live outside
// this package; they are expected to honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*types.ExecutionResult, error)
}

// Breakers is the admission slice of the circuit breaker registry the
// pool needs. Cancellations are never reported: a user abort is not a
// service defect.
type Breakers interface {
	Allow() bool
	RecordSuccess()
	RecordFailure(reason string)
}

// Defaults applied when corresponding fields are unset.
const (
	defaultWorkers      = 4
	defaultSkillTimeout = 30 * time.Second
	defaultAgentTimeout = 2 * time.Minute
	workerCrashBackoff  = 100 * time.Millisecond
	defaultTimeoutFinal = time.Minute
)

// TimeoutTable resolves a per-request execution budget from (task type,
// classification). Classification entries win over task-type entries.
type TimeoutTable struct {
	ByClassification map[string]time.Duration
	ByTaskType       map[types.TaskType]time.Duration
	Default          time.Duration
}

// DefaultTimeouts is the static budget table: heavier classes get longer
// budgets.
func DefaultTimeouts() TimeoutTable {
	return TimeoutTable{
		ByClassification: map[string]time.Duration{
			"image_generation": 5 * time.Minute,
			"embedding":        15 * time.Second,
		},
		ByTaskType: map[types.TaskType]time.Duration{
			types.TaskSkill: defaultSkillTimeout,
			types.TaskAgent: defaultAgentTimeout,
		},
		Default: defaultTimeoutFinal,
	}
}

// Resolve returns the execution budget for a request class.
func (t TimeoutTable) Resolve(task types.TaskType, classification string) time.Duration {
	if classification != "" {
		if d, ok := t.ByClassification[classification]; ok && d > 0 {
			return d
		}
	}
	if d, ok := t.ByTaskType[task]; ok && d > 0 {
		return d
	}
	if t.Default > 0 {
		return t.Default
	}
	return defaultTimeoutFinal
}

// PoolConfig encapsulates worker pool tunables.
type PoolConfig struct {
	Workers  int
	Timeouts TimeoutTable
	Breakers Breakers
	Executor Executor
}

// Pool is a fixed-size set of workers pulling from the queue, enforcing
// per-request timeouts and consulting the circuit breaker before every
// execution. Worker failures never crash the loop; each iteration is
// independently fault-isolated.
type Pool struct {
	queue    *Queue
	workers  int
	timeouts TimeoutTable
	breakers Breakers
	exec     Executor

	wg      sync.WaitGroup
	baseCtx context.Context
	started bool
}

// NewPool constructs a Pool around q.
func NewPool(q *Queue, cfg PoolConfig) *Pool {
	p := &Pool{
		queue:    q,
		workers:  cfg.Workers,
		timeouts: cfg.Timeouts,
		breakers: cfg.Breakers,
		exec:     cfg.Executor,
	}
	if p.workers <= 0 {
		p.workers = defaultWorkers
	}
	if p.timeouts.ByTaskType == nil && p.timeouts.ByClassification == nil && p.timeouts.Default == 0 {
		p.timeouts = DefaultTimeouts()
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers. ctx is the parent for every per-request
// context; canceling it aborts in-flight executions.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	p.baseCtx = ctx
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	log.Printf("workers event=started count=%d", p.workers)
}

// Wait blocks until all workers exited (after queue Close).
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(worker int) {
	defer p.wg.Done()
	for {
		req := p.queue.Dequeue()
		if req == nil {
			return // shutdown
		}
		if crashed := p.processIsolated(worker, req); crashed {
			time.Sleep(workerCrashBackoff)
		}
	}
}

// processIsolated contains panics from a single iteration.
func (p *Pool) processIsolated(worker int, req *Request) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			log.Printf("workers event=panic worker=%d request=%q recovered=%v", worker, req.ID, r)
			err := fmt.Errorf("worker panic: %v", r)
			_ = p.queue.MarkFailed(req.ID, err)
			if p.breakers != nil {
				p.breakers.RecordFailure(err.Error())
			}
		}
	}()
	p.process(req)
	return false
}

func (p *Pool) process(req *Request) {
	if p.breakers != nil && !p.breakers.Allow() {
		_ = p.queue.MarkFailed(req.ID, ErrDegraded())
		return
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeouts.Resolve(req.TaskType, req.Classification)
	}
	ctx, cancel := context.WithTimeout(p.baseCtx, timeout)
	defer cancel()
	p.queue.BindCancel(req.ID, cancel)

	// Cancellation may have raced the dequeue.
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		_ = p.queue.MarkFailed(req.ID, ErrCancelled(req.ID))
		return
	}

	res, err := p.exec.Execute(ctx, req)
	switch {
	case err == nil:
		_ = p.queue.MarkComplete(req.ID, res)
		if p.breakers != nil {
			p.breakers.RecordSuccess()
		}
	case errors.Is(err, context.DeadlineExceeded):
		_ = p.queue.MarkFailed(req.ID, ErrExecutionTimeout("execution exceeded "+timeout.String()))
		if p.breakers != nil {
			p.breakers.RecordFailure("timeout")
		}
	case errors.Is(err, context.Canceled) || IsCancelled(err):
		_ = p.queue.MarkFailed(req.ID, ErrCancelled(req.ID))
	default:
		_ = p.queue.MarkFailed(req.ID, err)
		if p.breakers != nil {
			p.breakers.RecordFailure(err.Error())
		}
	}
}
