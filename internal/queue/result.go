package queue

import (
	"sync"

	"agentd/pkg/types"
)

// resultHolder is a single-assignment completion cell. Exactly one of
// {result, error} is ever set, exactly once; any number of waiters may
// observe it after done closes.
type resultHolder struct {
	once sync.Once
	done chan struct{}
	res  *types.ExecutionResult
	err  error
}

func newResultHolder() *resultHolder {
	return &resultHolder{done: make(chan struct{})}
}

// set stores the outcome on first call; later calls are ignored.
func (h *resultHolder) set(res *types.ExecutionResult, err error) {
	h.once.Do(func() {
		h.res = res
		h.err = err
		close(h.done)
	})
}
