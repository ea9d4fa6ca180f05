package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"agentd/internal/profile"
	"agentd/pkg/types"
)

// BackendResource is one entry from the backend's live loaded-model list.
type BackendResource struct {
	ID     string
	SizeMB int
}

// BackendClient abstracts the model backend. Implementations live outside
// this package (see internal/backend for the HTTP one).
type BackendClient interface {
	Load(ctx context.Context, id string, keepAlive time.Duration) error
	Unload(ctx context.Context, id string) error
	ListLoaded(ctx context.Context) ([]BackendResource, error)
	HealthCheck(ctx context.Context) error
}

// ProfileProvider exposes the active resource profile. Implemented by
// profile.Manager.
type ProfileProvider interface {
	CurrentProfile() profile.Profile
}

// LoadReporter receives every load outcome. Implemented by
// profile.Manager; this is the coupling point that lets the fallback
// state machine react to orchestrator-level trouble without ever
// touching the registry.
type LoadReporter interface {
	RecordLoadSuccess()
	RecordLoadFailure(reason string)
}

// LoadedResource is one resource currently held in the capacity pool.
// Owned exclusively by the Orchestrator.
type LoadedResource struct {
	ID             string
	SizeMB         int
	Priority       types.Priority
	LoadedAt       time.Time
	LastUsed       time.Time
	KeepAliveUntil time.Time
}

// Defaults applied when corresponding Config fields are unset.
const (
	defaultReserveFraction    = 0.05
	defaultKeepAlive          = 30 * time.Minute
	defaultCapacityRetries    = 15
	defaultCapacityRetryDelay = 2 * time.Second
)

// Config encapsulates all tunables for Orchestrator construction.
type Config struct {
	Backend  BackendClient
	Profiles ProfileProvider
	Reporter LoadReporter
	// Prober overrides the /proc/meminfo probe (tests).
	Prober MemProber
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
	// Fraction of total memory kept free of the soft limit.
	ReserveFraction float64
	// Keep-alive horizon passed to the backend on load and refreshed on use.
	KeepAlive time.Duration
	// Bounded wait for asynchronous backend memory release after eviction.
	CapacityRetries    int
	CapacityRetryDelay time.Duration
	// LimitMB overrides capacity detection entirely when > 0.
	LimitMB int
}

// Orchestrator tracks loaded resources against a detected capacity limit
// and performs priority+LRU eviction. One mutex covers the whole
// decide+load sequence so concurrent callers cannot double-load; status
// readers use a lock-free snapshot instead.
type Orchestrator struct {
	mu sync.Mutex

	backend   BackendClient
	profiles  ProfileProvider
	reporter  LoadReporter
	probe     MemProber
	publisher EventPublisher

	limitMB            int
	keepAlive          time.Duration
	capacityRetries    int
	capacityRetryDelay time.Duration

	loaded  map[string]*LoadedResource
	loading map[string]time.Time

	evictionsTotal uint64
	loadsTotal     uint64

	status atomic.Pointer[types.OrchestratorStatus]
}

// New constructs an Orchestrator, probing host memory once to compute the
// soft limit = total * (1 - reserve).
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("orchestrator: backend client is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("orchestrator: profile provider is required")
	}
	o := &Orchestrator{
		backend:            cfg.Backend,
		profiles:           cfg.Profiles,
		reporter:           cfg.Reporter,
		probe:              cfg.Prober,
		publisher:          cfg.Publisher,
		keepAlive:          cfg.KeepAlive,
		capacityRetries:    cfg.CapacityRetries,
		capacityRetryDelay: cfg.CapacityRetryDelay,
		loaded:             make(map[string]*LoadedResource),
		loading:            make(map[string]time.Time),
	}
	if o.probe == nil {
		o.probe = procfsProber
	}
	if o.publisher == nil {
		o.publisher = noopPublisher{}
	}
	if o.keepAlive <= 0 {
		o.keepAlive = defaultKeepAlive
	}
	if o.capacityRetries <= 0 {
		o.capacityRetries = defaultCapacityRetries
	}
	if o.capacityRetryDelay <= 0 {
		o.capacityRetryDelay = defaultCapacityRetryDelay
	}
	reserve := cfg.ReserveFraction
	if reserve <= 0 || reserve >= 1 {
		reserve = defaultReserveFraction
	}
	if cfg.LimitMB > 0 {
		o.limitMB = cfg.LimitMB
	} else {
		total, _, err := o.probe()
		if err != nil {
			return nil, fmt.Errorf("capacity probe: %w", err)
		}
		o.limitMB = int(float64(total) * (1 - reserve))
	}
	log.Printf("orchestrator event=init limit_mb=%d keep_alive=%s", o.limitMB, o.keepAlive)
	o.mu.Lock()
	o.publishStatusLocked()
	o.mu.Unlock()
	return o, nil
}

// RequestLoad makes sure the resource is loaded, evicting lower-priority
// resources when capacity is short. Idempotent: already loaded (or
// mid-load) returns success without re-loading.
func (o *Orchestrator) RequestLoad(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if lr, ok := o.loaded[id]; ok {
		o.touchLocked(lr)
		return nil
	}
	if _, ok := o.loading[id]; ok {
		return nil
	}
	spec, ok := o.profiles.CurrentProfile().Resource(id)
	if !ok {
		return ErrUnknownResource(id)
	}
	return o.loadSpecLocked(ctx, spec)
}

// RequestLoadSpec loads a resource bypassing the active-profile lookup.
// Used by the recovery prober, which loads from the original profile
// while the fallback profile is active.
func (o *Orchestrator) RequestLoadSpec(ctx context.Context, spec types.ResourceSpec) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if lr, ok := o.loaded[spec.ID]; ok {
		o.touchLocked(lr)
		return nil
	}
	if _, ok := o.loading[spec.ID]; ok {
		return nil
	}
	return o.loadSpecLocked(ctx, spec)
}

func (o *Orchestrator) loadSpecLocked(ctx context.Context, spec types.ResourceSpec) error {
	startTs := time.Now()
	log.Printf("orchestrator event=load_start resource=%q size_mb=%d", spec.ID, spec.SizeMB)
	o.publisher.Publish(Event{Name: "load_start", ResourceID: spec.ID, Fields: map[string]any{"size_mb": spec.SizeMB}})

	// The backend may already hold the resource (external desync). Import
	// backend truth before spending any capacity work.
	if list, err := o.backend.ListLoaded(ctx); err == nil {
		o.syncLocked(list)
		if lr, ok := o.loaded[spec.ID]; ok {
			o.touchLocked(lr)
			o.reportOutcome(true, "")
			o.publisher.Publish(Event{Name: "load_desync_adopt", ResourceID: spec.ID, Fields: map[string]any{}})
			return nil
		}
	}

	if required := spec.SizeMB; required > o.availableLocked() {
		if err := o.evictUntilFitsLocked(ctx, required); err != nil {
			log.Printf("orchestrator event=evict_error resource=%q err=%v", spec.ID, err)
		}
		if err := o.waitForCapacityLocked(ctx, spec.ID, required); err != nil {
			o.reportOutcome(false, err.Error())
			o.publisher.Publish(Event{Name: "load_capacity_fail", ResourceID: spec.ID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	o.loading[spec.ID] = time.Now()
	o.publishStatusLocked()
	err := o.backend.Load(ctx, spec.ID, o.keepAlive)
	delete(o.loading, spec.ID)
	if err != nil {
		o.publishStatusLocked()
		o.reportOutcome(false, err.Error())
		log.Printf("orchestrator event=load_error resource=%q err=%v", spec.ID, err)
		o.publisher.Publish(Event{Name: "load_error", ResourceID: spec.ID, Fields: map[string]any{"error": err.Error()}})
		return fmt.Errorf("backend load %s: %w", spec.ID, err)
	}

	now := time.Now()
	o.loaded[spec.ID] = &LoadedResource{
		ID:             spec.ID,
		SizeMB:         spec.SizeMB,
		Priority:       spec.Priority,
		LoadedAt:       now,
		LastUsed:       now,
		KeepAliveUntil: now.Add(o.keepAlive),
	}
	o.loadsTotal++
	o.publishStatusLocked()
	o.reportOutcome(true, "")
	log.Printf("orchestrator event=load_ready resource=%q dur_ms=%d", spec.ID, time.Since(startTs)/time.Millisecond)
	o.publisher.Publish(Event{Name: "load_ready", ResourceID: spec.ID, Fields: map[string]any{"dur_ms": int(time.Since(startTs) / time.Millisecond)}})
	return nil
}

// waitForCapacityLocked polls available capacity with a constant-delay,
// bounded retry to absorb asynchronous backend memory release. The retry
// budget is policy, not contract; see Config.
func (o *Orchestrator) waitForCapacityLocked(ctx context.Context, id string, requiredMB int) error {
	lastAvail := o.availableLocked()
	if requiredMB <= lastAvail {
		return nil
	}
	op := func() (struct{}, error) {
		avail := o.availableLocked()
		lastAvail = avail
		if requiredMB <= avail {
			return struct{}{}, nil
		}
		return struct{}{}, fmt.Errorf("need %d MB, %d MB available", requiredMB, avail)
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.capacityRetryDelay)),
		backoff.WithMaxTries(uint(o.capacityRetries)))
	if err != nil {
		return ErrInsufficientCapacity(id, requiredMB, lastAvail)
	}
	return nil
}

// Unload removes a resource. Without force, CRITICAL resources are
// refused. Unloading an unknown id is a no-op.
func (o *Orchestrator) Unload(ctx context.Context, id string, force bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	lr, ok := o.loaded[id]
	if !ok {
		return nil
	}
	if !force && lr.Priority == types.PriorityCritical {
		return fmt.Errorf("refusing to unload critical resource %s without force", id)
	}
	if err := o.backend.Unload(ctx, id); err != nil {
		return fmt.Errorf("backend unload %s: %w", id, err)
	}
	delete(o.loaded, id)
	o.publishStatusLocked()
	log.Printf("orchestrator event=unload resource=%q forced=%v", id, force)
	o.publisher.Publish(Event{Name: "unload", ResourceID: id, Fields: map[string]any{"forced": force}})
	return nil
}

// IsLoaded reports whether the resource is registered as loaded.
func (o *Orchestrator) IsLoaded(id string) bool {
	s := o.status.Load()
	if s == nil {
		return false
	}
	for _, lr := range s.Loaded {
		if lr.ID == id {
			return true
		}
	}
	return false
}

// Touch refreshes the last-accessed time and keep-alive deadline of a
// loaded resource. Returns false when the resource is not loaded.
func (o *Orchestrator) Touch(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	lr, ok := o.loaded[id]
	if !ok {
		return false
	}
	o.touchLocked(lr)
	return true
}

func (o *Orchestrator) touchLocked(lr *LoadedResource) {
	now := time.Now()
	lr.LastUsed = now
	lr.KeepAliveUntil = now.Add(o.keepAlive)
	o.publishStatusLocked()
}

// Status returns a best-effort snapshot without taking the orchestrator
// lock, so a long-running load cannot block monitoring.
func (o *Orchestrator) Status() types.OrchestratorStatus {
	if s := o.status.Load(); s != nil {
		return *s
	}
	return types.OrchestratorStatus{LimitMB: o.limitMB}
}

func (o *Orchestrator) publishStatusLocked() {
	used := o.usedLocked()
	st := types.OrchestratorStatus{
		LimitMB:        o.limitMB,
		UsedMB:         used,
		AvailableMB:    o.limitMB - used,
		EvictionsTotal: o.evictionsTotal,
		LoadsTotal:     o.loadsTotal,
	}
	st.Loaded = make([]types.LoadedResourceStatus, 0, len(o.loaded))
	for _, lr := range o.loaded {
		st.Loaded = append(st.Loaded, types.LoadedResourceStatus{
			ID:       lr.ID,
			SizeMB:   lr.SizeMB,
			Priority: lr.Priority,
			LoadedAt: lr.LoadedAt.Unix(),
			LastUsed: lr.LastUsed.Unix(),
		})
	}
	sort.Slice(st.Loaded, func(i, j int) bool { return st.Loaded[i].ID < st.Loaded[j].ID })
	for id := range o.loading {
		st.Loading = append(st.Loading, id)
	}
	sort.Strings(st.Loading)
	o.status.Store(&st)
}

func (o *Orchestrator) reportOutcome(ok bool, reason string) {
	if o.reporter == nil {
		return
	}
	if ok {
		o.reporter.RecordLoadSuccess()
		return
	}
	o.reporter.RecordLoadFailure(reason)
}
