package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"agentd/pkg/types"
)

// ManagerConfig wires the queue, worker pool and visibility monitor plus
// the status providers of the surrounding components.
type ManagerConfig struct {
	Queue   QueueConfig
	Pool    PoolConfig
	Monitor MonitorConfig

	// Optional status providers merged into StatusResponse.
	OrchestratorStatus func() types.OrchestratorStatus
	ProfileStatus      func() types.ProfileStatus
	BreakerMetrics     func() types.BreakerMetrics
}

// Manager is the composition root for the admission plane: one lifecycle
// (Start/Stop) around PriorityRequestQueue + WorkerPool +
// VisibilityMonitor, and the submit/wait/cancel surface handed to the
// HTTP layer.
type Manager struct {
	queue   *Queue
	pool    *Pool
	monitor *Monitor

	orchStatus     func() types.OrchestratorStatus
	profileStatus  func() types.ProfileStatus
	breakerMetrics func() types.BreakerMetrics

	// mu guards the lifecycle fields; Ready and Status are called from
	// HTTP handler goroutines.
	mu        sync.Mutex
	cancel    context.CancelFunc
	startTime time.Time
	started   bool
}

// NewManager constructs the composed lifecycle. Collaborators (executor,
// breakers) arrive pre-built inside cfg; no container, just wiring.
func NewManager(cfg ManagerConfig) *Manager {
	q := NewQueue(cfg.Queue)
	if cfg.Monitor.Breakers == nil {
		cfg.Monitor.Breakers = cfg.Pool.Breakers
	}
	return &Manager{
		queue:          q,
		pool:           NewPool(q, cfg.Pool),
		monitor:        NewMonitor(q, cfg.Monitor),
		orchStatus:     cfg.OrchestratorStatus,
		profileStatus:  cfg.ProfileStatus,
		breakerMetrics: cfg.BreakerMetrics,
	}
}

// Queue exposes the underlying queue (consumer/monitor surface).
func (m *Manager) Queue() *Queue { return m.queue }

// Start launches workers and the visibility monitor.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.startTime = time.Now()
	ctx, m.cancel = context.WithCancel(ctx)
	m.pool.Start(ctx)
	go m.monitor.Run(ctx)
	log.Printf("manager event=started workers=%d", m.pool.Workers())
}

// Stop closes intake, aborts in-flight executions and waits for the
// workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.queue.Close()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.pool.Wait()
	log.Printf("manager event=stopped")
}

// Submit admits an API request and returns its id plus queue position.
func (m *Manager) Submit(sr types.SubmitRequest) (types.SubmitResponse, error) {
	req := &Request{
		ID:             sr.RequestID,
		UserID:         sr.UserID,
		SessionID:      sr.SessionID,
		Tier:           sr.Tier,
		TaskType:       sr.TaskType,
		Classification: sr.Classification,
		Routing:        sr.Routing,
		Input:          sr.Input,
		Context:        sr.Context,
	}
	if req.Tier == "" {
		req.Tier = types.TierNormal
	}
	if req.TaskType == "" {
		req.TaskType = types.TaskAgent
	}
	if sr.TimeoutMs > 0 {
		req.Timeout = time.Duration(sr.TimeoutMs) * time.Millisecond
	}
	id, err := m.queue.Submit(req)
	if err != nil {
		return types.SubmitResponse{}, err
	}
	return types.SubmitResponse{RequestID: id, Position: m.queue.Position(id)}, nil
}

// Wait blocks for a request's result.
func (m *Manager) Wait(ctx context.Context, id string, timeout time.Duration) (*types.ExecutionResult, error) {
	return m.queue.WaitResult(ctx, id, timeout)
}

// Cancel cancels a request; see Queue.Cancel for semantics.
func (m *Manager) Cancel(id string) bool {
	return m.queue.Cancel(id)
}

// Ready reports whether the admission plane accepts work: started and
// not currently rejecting everything through an open circuit.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return false
	}
	if m.breakerMetrics != nil && m.breakerMetrics().State == "open" {
		return false
	}
	return true
}

// Status assembles the full status document.
func (m *Manager) Status() types.StatusResponse {
	st := types.StatusResponse{
		Queue:          m.queue.Metrics(),
		Workers:        m.pool.Workers(),
		ServerTimeUnix: time.Now().Unix(),
	}
	m.mu.Lock()
	startTime := m.startTime
	m.mu.Unlock()
	if !startTime.IsZero() {
		st.UptimeSeconds = int64(time.Since(startTime).Seconds())
	}
	if m.breakerMetrics != nil {
		st.Breaker = m.breakerMetrics()
	}
	if m.profileStatus != nil {
		st.Profile = m.profileStatus()
	}
	if m.orchStatus != nil {
		st.Orchestrator = m.orchStatus()
	}
	return st
}
