package orchestrator

import (
	"context"
	"log"
	"time"

	"agentd/internal/profile"
)

// RecoveryManager is the slice of profile.Manager the prober needs.
type RecoveryManager interface {
	ShouldProbeRecovery() bool
	RecordProbeResult(success bool)
	OriginalProfile() profile.Profile
}

// Prober is the periodic health-check loop that attempts recovery from a
// degraded profile: once the manager reports enough sustained successes,
// it tries to load the single largest resource from the original profile
// and reports the outcome back.
type Prober struct {
	orch     *Orchestrator
	manager  RecoveryManager
	interval time.Duration
}

// NewProber constructs a Prober. interval <= 0 defaults to 30s.
func NewProber(orch *Orchestrator, manager RecoveryManager, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{orch: orch, manager: manager, interval: interval}
}

// Run blocks until ctx is done, ticking at the configured interval.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.tick(ctx)
		}
	}
}

// tick performs one health check plus, when due, one recovery probe.
func (p *Prober) tick(ctx context.Context) {
	if err := p.orch.backend.HealthCheck(ctx); err != nil {
		log.Printf("orchestrator event=health_check_failed err=%v", err)
		return
	}
	if !p.manager.ShouldProbeRecovery() {
		return
	}
	spec, ok := p.manager.OriginalProfile().Largest()
	if !ok {
		return
	}
	log.Printf("orchestrator event=recovery_probe resource=%q size_mb=%d", spec.ID, spec.SizeMB)
	err := p.orch.RequestLoadSpec(ctx, spec)
	p.manager.RecordProbeResult(err == nil)
}
