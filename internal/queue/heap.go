package queue

// entry is the heap-internal wrapper: negated priority score plus a
// monotonic insertion counter for FIFO tie-break among equal scores.
type entry struct {
	negScore float64
	seq      uint64
	id       string
}

// entryHeap is a binary min-heap over (negScore, seq). The top always
// holds the highest true priority enqueued earliest. Implemented against
// container/heap's interface.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].negScore != h[j].negScore {
		return h[i].negScore < h[j].negScore
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
