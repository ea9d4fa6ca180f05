package breaker

import (
	"log"
	"sync"
	"time"

	"agentd/pkg/types"
)

// State is the circuit breaker lifecycle state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultFailureThreshold     = 5
	defaultFailureRateThreshold = 0.5
	defaultWindowSize           = 60 * time.Second
	defaultMinWindowSamples     = 10
	defaultSuccessThreshold     = 3
	defaultOpenTimeout          = 30 * time.Second
	defaultHalfOpenMaxRequests  = 1
)

// Config encapsulates circuit breaker tunables.
type Config struct {
	// Consecutive failures in CLOSED before opening.
	FailureThreshold int
	// Windowed failure rate in CLOSED before opening (0..1).
	FailureRateThreshold float64
	// Sliding window span for the failure rate.
	WindowSize time.Duration
	// Minimum samples in the window before the rate can trip the breaker.
	MinWindowSamples int
	// Consecutive successes in HALF_OPEN before closing.
	SuccessThreshold int
	// Time spent OPEN before a probe is admitted.
	OpenTimeout time.Duration
	// Max concurrent probes admitted while HALF_OPEN.
	HalfOpenMaxRequests int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = defaultFailureRateThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.MinWindowSamples <= 0 {
		c.MinWindowSamples = defaultMinWindowSamples
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaultSuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = defaultHalfOpenMaxRequests
	}
	return c
}

// StateChangeFunc observes breaker transitions. It runs synchronously on
// the recording goroutine; panics are contained and logged.
type StateChangeFunc func(name string, from, to State)

type sample struct {
	at time.Time
	ok bool
}

// Breaker is a three-state circuit breaker with consecutive-failure and
// sliding-window failure-rate detection. Safe for concurrent use; its
// critical sections never block, so a plain mutex suffices.
type Breaker struct {
	name string
	cfg  Config

	mu               sync.Mutex
	state            State
	consecFailures   int
	consecSuccesses  int
	totalFailures    uint64
	totalSuccesses   uint64
	window           []sample
	lastFailure      time.Time
	lastStateChange  time.Time
	openCount        uint64
	halfOpenInFlight int

	onChange StateChangeFunc
	now      func() time.Time
}

// New constructs a CLOSED breaker. onChange may be nil.
func New(name string, cfg Config, onChange StateChangeFunc) *Breaker {
	metricState.WithLabelValues(name).Set(stateValue(StateClosed))
	return &Breaker{
		name:            name,
		cfg:             cfg.withDefaults(),
		state:           StateClosed,
		lastStateChange: time.Now(),
		onChange:        onChange,
		now:             time.Now,
	}
}

// Allow reports whether a request may proceed. In OPEN it admits the call
// that first observes the open timeout elapsed, transitioning to
// HALF_OPEN; in HALF_OPEN it admits up to HalfOpenMaxRequests unresolved
// probes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastStateChange) < b.cfg.OpenTimeout {
			return false
		}
		b.transitionLocked(StateHalfOpen)
		b.halfOpenInFlight = 1
		return true
	default: // StateHalfOpen
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxRequests {
			return false
		}
		b.halfOpenInFlight++
		return true
	}
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.pushSampleLocked(sample{at: now, ok: true})
	b.totalSuccesses++
	b.consecSuccesses++
	b.consecFailures = 0
	if b.state == StateHalfOpen {
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if b.consecSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure notes a failed call. In HALF_OPEN any failure reopens the
// circuit; in CLOSED the breaker opens on either the consecutive-failure
// threshold or the windowed failure rate.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.pushSampleLocked(sample{at: now, ok: false})
	b.totalFailures++
	b.consecFailures++
	b.consecSuccesses = 0
	b.lastFailure = now
	switch b.state {
	case StateHalfOpen:
		log.Printf("breaker name=%q event=probe_failed reason=%q", b.name, reason)
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.consecFailures >= b.cfg.FailureThreshold || b.windowRateLocked(now) >= b.cfg.FailureRateThreshold {
			log.Printf("breaker name=%q event=tripped consecutive=%d reason=%q", b.name, b.consecFailures, reason)
			b.transitionLocked(StateOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics snapshots the breaker counters.
func (b *Breaker) Metrics() types.BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := types.BreakerMetrics{
		Name:                 b.name,
		State:                string(b.state),
		ConsecutiveFailures:  b.consecFailures,
		ConsecutiveSuccesses: b.consecSuccesses,
		TotalSuccesses:       b.totalSuccesses,
		TotalFailures:        b.totalFailures,
		WindowFailureRate:    b.rawWindowRateLocked(b.now()),
		OpenCount:            b.openCount,
		HalfOpenAttempts:     b.halfOpenInFlight,
	}
	if !b.lastFailure.IsZero() {
		m.LastFailureAt = b.lastFailure.Unix()
	}
	if !b.lastStateChange.IsZero() {
		m.LastStateChange = b.lastStateChange.Unix()
	}
	return m
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.lastStateChange = b.now()
	switch to {
	case StateOpen:
		b.openCount++
		b.halfOpenInFlight = 0
	case StateHalfOpen:
		b.consecSuccesses = 0
		b.halfOpenInFlight = 0
	case StateClosed:
		b.consecFailures = 0
		b.halfOpenInFlight = 0
	}
	metricState.WithLabelValues(b.name).Set(stateValue(to))
	metricTransitions.WithLabelValues(b.name, string(to)).Inc()
	log.Printf("breaker name=%q event=state_change from=%s to=%s", b.name, from, to)
	if b.onChange != nil {
		b.fireChange(from, to)
	}
}

// fireChange runs the callback synchronously, containing panics so a bad
// observer cannot corrupt breaker state.
func (b *Breaker) fireChange(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("breaker name=%q event=callback_panic recovered=%v", b.name, r)
		}
	}()
	b.onChange(b.name, from, to)
}

func (b *Breaker) pushSampleLocked(s sample) {
	b.window = append(b.window, s)
	b.pruneLocked(s.at)
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowSize)
	i := 0
	for ; i < len(b.window); i++ {
		if b.window[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}

// windowRateLocked returns the failure rate, or 0 while the window holds
// fewer than MinWindowSamples samples so a handful of early failures
// cannot trip the rate detector on their own.
func (b *Breaker) windowRateLocked(now time.Time) float64 {
	b.pruneLocked(now)
	if len(b.window) < b.cfg.MinWindowSamples {
		return 0
	}
	return b.rawWindowRateLocked(now)
}

func (b *Breaker) rawWindowRateLocked(now time.Time) float64 {
	b.pruneLocked(now)
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, s := range b.window {
		if !s.ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}
