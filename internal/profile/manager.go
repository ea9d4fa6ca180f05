package profile

import (
	"log"
	"sync"

	"agentd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultFallbackThreshold        = 3
	defaultRecoverySuccessThreshold = 5
)

// ManagerConfig encapsulates the fallback state machine tunables.
type ManagerConfig struct {
	Original Profile
	Fallback Profile
	// Consecutive load failures before switching to the fallback profile.
	FallbackThreshold int
	// Consecutive successes while degraded before a recovery probe is due.
	RecoverySuccessThreshold int
	// Optional hooks fired after a state switch. Panics are contained.
	OnFallback func(to Profile)
	OnRecover  func(to Profile)
}

// Manager owns the NORMAL/DEGRADED fallback state machine. The active
// profile is the original one in NORMAL and the conservative fallback in
// DEGRADED. PROBING is not a stored state: it is the ShouldProbeRecovery
// predicate over DEGRADED plus accumulated successes.
type Manager struct {
	mu sync.Mutex

	original Profile
	fallback Profile
	degraded bool

	consecFailures  int
	consecSuccesses int
	totalFailures   uint64
	totalSuccesses  uint64
	fallbacks       uint64
	recoveries      uint64

	fallbackThreshold int
	recoveryThreshold int

	onFallback func(Profile)
	onRecover  func(Profile)
}

// NewManager constructs a Manager in the NORMAL state.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		original:          cfg.Original.clone(),
		fallback:          cfg.Fallback.clone(),
		fallbackThreshold: cfg.FallbackThreshold,
		recoveryThreshold: cfg.RecoverySuccessThreshold,
		onFallback:        cfg.OnFallback,
		onRecover:         cfg.OnRecover,
	}
	if m.fallbackThreshold <= 0 {
		m.fallbackThreshold = defaultFallbackThreshold
	}
	if m.recoveryThreshold <= 0 {
		m.recoveryThreshold = defaultRecoverySuccessThreshold
	}
	return m
}

// CurrentProfile returns a copy of the active profile.
func (m *Manager) CurrentProfile() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.degraded {
		return m.fallback.clone()
	}
	return m.original.clone()
}

// OriginalProfile returns a copy of the configured (non-fallback) profile.
func (m *Manager) OriginalProfile() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.original.clone()
}

// Degraded reports whether the fallback profile is active.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// RecordLoadSuccess notes a successful load or end-to-end execution.
func (m *Manager) RecordLoadSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecSuccesses++
	m.consecFailures = 0
	m.totalSuccesses++
}

// RecordLoadFailure notes a failed load or end-to-end execution and
// degrades once the consecutive-failure threshold is reached.
func (m *Manager) RecordLoadFailure(reason string) {
	m.mu.Lock()
	m.consecFailures++
	m.consecSuccesses = 0
	m.totalFailures++
	trip := !m.degraded && m.consecFailures >= m.fallbackThreshold
	if trip {
		m.degradeLocked(reason)
	}
	cb := m.onFallback
	to := m.fallback
	m.mu.Unlock()
	if trip {
		fireHook(cb, to)
	}
}

// ForceFallback switches to the fallback profile immediately, regardless
// of counters. No-op when already degraded.
func (m *Manager) ForceFallback(reason string) {
	m.mu.Lock()
	if m.degraded {
		m.mu.Unlock()
		return
	}
	m.degradeLocked(reason)
	cb := m.onFallback
	to := m.fallback
	m.mu.Unlock()
	fireHook(cb, to)
}

func (m *Manager) degradeLocked(reason string) {
	m.degraded = true
	m.fallbacks++
	m.consecFailures = 0
	log.Printf("profile event=fallback profile=%q reason=%q", m.fallback.Name, reason)
}

// ShouldProbeRecovery reports whether enough successes accumulated while
// degraded to justify probing the original profile.
func (m *Manager) ShouldProbeRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded && m.consecSuccesses >= m.recoveryThreshold
}

// RecordProbeResult reports the outcome of a recovery probe. Success
// restores the original profile and resets all counters; failure resets
// only the success counter and keeps the system degraded.
func (m *Manager) RecordProbeResult(success bool) {
	m.mu.Lock()
	if !m.degraded {
		m.mu.Unlock()
		return
	}
	if !success {
		m.consecSuccesses = 0
		m.mu.Unlock()
		log.Printf("profile event=probe_failed profile=%q", m.fallback.Name)
		return
	}
	m.degraded = false
	m.recoveries++
	m.consecFailures = 0
	m.consecSuccesses = 0
	cb := m.onRecover
	to := m.original
	m.mu.Unlock()
	log.Printf("profile event=recovered profile=%q", to.Name)
	fireHook(cb, to)
}

// Status builds a ProfileStatus snapshot.
func (m *Manager) Status() types.ProfileStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.ProfileStatus{
		State:                "normal",
		ActiveProfile:        m.original.Name,
		OriginalProfile:      m.original.Name,
		ConsecutiveFailures:  m.consecFailures,
		ConsecutiveSuccesses: m.consecSuccesses,
		TotalFailures:        m.totalFailures,
		TotalSuccesses:       m.totalSuccesses,
		Fallbacks:            m.fallbacks,
		Recoveries:           m.recoveries,
	}
	if m.degraded {
		st.State = "degraded"
		st.ActiveProfile = m.fallback.Name
		st.ProbeEligible = m.consecSuccesses >= m.recoveryThreshold
	}
	return st
}

// fireHook invokes a state-change hook outside the lock. Hook panics are
// contained so a misbehaving observer cannot take down the state machine.
func fireHook(cb func(Profile), to Profile) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("profile event=hook_panic recovered=%v", r)
		}
	}()
	cb(to)
}
