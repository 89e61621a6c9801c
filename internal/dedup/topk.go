package dedup

import "container/heap"

// Entry is one candidate in a top-k selection: an opaque owner value
// (the strategy layer stores a node reference here) and the weight it
// was ranked by.
type Entry[T any] struct {
	Owner  T
	Weight uint64
}

// TopKHeap retains only the k largest-weight entries inserted via
// Insert, using a bounded min-heap so the whole operation runs in
// O(n log k) instead of sorting every candidate. This is what the
// Rendezvous strategy uses instead of a full sort over all nodes.
type TopKHeap[T any] struct {
	cap     int
	entries minHeap[T]
}

// NewTopKHeap creates a heap that retains the k highest-weight
// entries seen across all calls to Insert.
func NewTopKHeap[T any](k int) *TopKHeap[T] {
	if k < 0 {
		k = 0
	}
	return &TopKHeap[T]{cap: k, entries: make(minHeap[T], 0, k)}
}

// Insert offers (owner, weight) to the heap. If the heap has fewer
// than k elements it is always kept; otherwise it replaces the
// current minimum only if its weight is strictly greater.
func (h *TopKHeap[T]) Insert(owner T, weight uint64) {
	if h.cap == 0 {
		return
	}
	if len(h.entries) < h.cap {
		heap.Push(&h.entries, Entry[T]{Owner: owner, Weight: weight})
		return
	}
	if weight > h.entries[0].Weight {
		h.entries[0] = Entry[T]{Owner: owner, Weight: weight}
		heap.Fix(&h.entries, 0)
	}
}

// Len reports how many entries are currently retained (<= k).
func (h *TopKHeap[T]) Len() int {
	return len(h.entries)
}

// Extract drains the heap and returns its entries in descending
// weight order. The heap is empty after this call.
func (h *TopKHeap[T]) Extract() []Entry[T] {
	n := len(h.entries)
	out := make([]Entry[T], n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h.entries).(Entry[T])
	}
	return out
}

// minHeap is the container/heap plumbing for TopKHeap: the smallest
// weight sits at the root so a new, larger candidate can evict it in
// O(log k).
type minHeap[T any] []Entry[T]

func (m minHeap[T]) Len() int            { return len(m) }
func (m minHeap[T]) Less(i, j int) bool  { return m[i].Weight < m[j].Weight }
func (m minHeap[T]) Swap(i, j int)       { m[i], m[j] = m[j], m[i] }
func (m *minHeap[T]) Push(x interface{}) { *m = append(*m, x.(Entry[T])) }
func (m *minHeap[T]) Pop() interface{} {
	old := *m
	n := len(old)
	item := old[n-1]
	*m = old[:n-1]
	return item
}
