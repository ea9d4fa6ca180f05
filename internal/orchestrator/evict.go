package orchestrator

import (
	"context"
	"log"
	"sort"
	"time"

	"agentd/pkg/types"
)

// syncLocked reconciles the registry with the backend's live loaded list.
// Entries the backend no longer reports are dropped; resources the
// backend reports that we do not track are adopted when they belong to
// the active profile. Eviction correctness depends on the registry
// reflecting backend truth, not just this process's own bookkeeping.
func (o *Orchestrator) syncLocked(list []BackendResource) {
	live := make(map[string]BackendResource, len(list))
	for _, br := range list {
		live[br.ID] = br
	}
	for id := range o.loaded {
		if _, ok := live[id]; !ok {
			log.Printf("orchestrator event=sync_drop resource=%q", id)
			delete(o.loaded, id)
		}
	}
	prof := o.profiles.CurrentProfile()
	now := time.Now()
	for id, br := range live {
		if _, ok := o.loaded[id]; ok {
			continue
		}
		spec, ok := prof.Resource(id)
		if !ok {
			continue
		}
		sizeMB := spec.SizeMB
		if br.SizeMB > 0 {
			sizeMB = br.SizeMB
		}
		o.loaded[id] = &LoadedResource{
			ID:             id,
			SizeMB:         sizeMB,
			Priority:       spec.Priority,
			LoadedAt:       now,
			LastUsed:       now,
			KeepAliveUntil: now.Add(o.keepAlive),
		}
		log.Printf("orchestrator event=sync_adopt resource=%q size_mb=%d", id, sizeMB)
	}
	o.publishStatusLocked()
}

// evictUntilFitsLocked frees capacity for requiredMB in two phases:
// non-critical resources ordered by (priority ascending from LOW, then
// least-recently-used), then, as a last resort, critical resources by
// least-recently-used only.
func (o *Orchestrator) evictUntilFitsLocked(ctx context.Context, requiredMB int) error {
	// Mandatory resync before any eviction decision.
	if list, err := o.backend.ListLoaded(ctx); err == nil {
		o.syncLocked(list)
	}
	if requiredMB <= o.availableLocked() {
		return nil
	}

	var normal, critical []*LoadedResource
	for _, lr := range o.loaded {
		if lr.Priority == types.PriorityCritical {
			critical = append(critical, lr)
		} else {
			normal = append(normal, lr)
		}
	}
	sort.Slice(normal, func(i, j int) bool {
		if normal[i].Priority.Rank() != normal[j].Priority.Rank() {
			return normal[i].Priority.Rank() < normal[j].Priority.Rank()
		}
		return normal[i].LastUsed.Before(normal[j].LastUsed)
	})
	sort.Slice(critical, func(i, j int) bool {
		return critical[i].LastUsed.Before(critical[j].LastUsed)
	})

	if done, err := o.evictListLocked(ctx, normal, requiredMB); done || err != nil {
		return err
	}
	log.Printf("orchestrator event=evict_critical_phase required_mb=%d", requiredMB)
	_, err := o.evictListLocked(ctx, critical, requiredMB)
	return err
}

// evictListLocked greedily unloads candidates until requiredMB fits.
// Returns done=true once capacity suffices.
func (o *Orchestrator) evictListLocked(ctx context.Context, candidates []*LoadedResource, requiredMB int) (bool, error) {
	for _, lr := range candidates {
		if requiredMB <= o.availableLocked() {
			return true, nil
		}
		if err := o.backend.Unload(ctx, lr.ID); err != nil {
			// Skip the stuck candidate; a later sync will reconcile it.
			log.Printf("orchestrator event=evict_unload_error resource=%q err=%v", lr.ID, err)
			continue
		}
		delete(o.loaded, lr.ID)
		o.evictionsTotal++
		o.publishStatusLocked()
		log.Printf("orchestrator event=evicted resource=%q size_mb=%d priority=%s", lr.ID, lr.SizeMB, lr.Priority)
		o.publisher.Publish(Event{Name: "evicted", ResourceID: lr.ID, Fields: map[string]any{"size_mb": lr.SizeMB, "priority": string(lr.Priority)}})
	}
	return requiredMB <= o.availableLocked(), nil
}
