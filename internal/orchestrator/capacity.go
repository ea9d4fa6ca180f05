package orchestrator

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// MemProber reports host memory in MB: total physical memory and memory
// currently available for new allocations. Injected so tests can model
// arbitrary capacity without touching /proc.
type MemProber func() (totalMB, availableMB int, err error)

// procfsProber reads /proc/meminfo. MemAvailable is the kernel's estimate
// of allocatable memory and already accounts for reclaimable caches.
func procfsProber() (int, int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, 0, fmt.Errorf("procfs: %w", err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil {
		return 0, 0, fmt.Errorf("meminfo: missing MemTotal/MemAvailable")
	}
	// meminfo values are in kB.
	return int(*mi.MemTotal / 1024), int(*mi.MemAvailable / 1024), nil
}

// availableLocked computes how much of the soft limit is free right now.
// Live usage is re-probed on every call because external processes
// consume memory outside this orchestrator's bookkeeping. When the probe
// fails we fall back to the registry's own accounting.
func (o *Orchestrator) availableLocked() int {
	total, avail, err := o.probe()
	if err != nil || total <= 0 {
		used := 0
		for _, lr := range o.loaded {
			used += lr.SizeMB
		}
		return o.limitMB - used
	}
	used := total - avail
	return o.limitMB - used
}

// usedLocked is the registry's own view of consumption, for status.
func (o *Orchestrator) usedLocked() int {
	used := 0
	for _, lr := range o.loaded {
		used += lr.SizeMB
	}
	return used
}
