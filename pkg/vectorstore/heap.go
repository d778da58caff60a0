package vectorstore

import (
	"container/heap"
	"math"
)

// Candidate pairs a row index with its distance to some query. It is the
// common currency passed around every index family's search path.
type Candidate struct {
	Row  int
	Dist float32
}

// candHeap is a container/heap.Interface over []Candidate ordered by
// ascending distance (a min-heap). BoundedMaxHeap below reuses it with the
// comparison inverted.
type candHeap struct {
	items []Candidate
	max   bool // true: pop the largest distance first
}

func (h candHeap) Len() int { return len(h.items) }
func (h candHeap) Less(i, j int) bool {
	if h.max {
		return h.items[i].Dist > h.items[j].Dist
	}
	return h.items[i].Dist < h.items[j].Dist
}
func (h candHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candHeap) Push(x any) { h.items = append(h.items, x.(Candidate)) }

func (h *candHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// MinHeap is a min-heap of Candidates ordered by ascending distance. Used
// for HNSW's expansion frontier (closest unexpanded candidate first).
type MinHeap struct{ h candHeap }

// NewMinHeap returns an empty min-heap, optionally pre-sizing its backing
// slice to capHint.
func NewMinHeap(capHint int) *MinHeap {
	return &MinHeap{h: candHeap{items: make([]Candidate, 0, capHint)}}
}

// Len returns the number of elements in the heap.
func (m *MinHeap) Len() int { return m.h.Len() }

// Push adds c to the heap.
func (m *MinHeap) Push(c Candidate) { heap.Push(&m.h, c) }

// Pop removes and returns the smallest-distance candidate.
func (m *MinHeap) Pop() Candidate { return heap.Pop(&m.h).(Candidate) }

// Peek returns the smallest-distance candidate without removing it.
func (m *MinHeap) Peek() Candidate { return m.h.items[0] }

// Reset empties the heap, retaining its backing array.
func (m *MinHeap) Reset() { m.h.items = m.h.items[:0] }

// BoundedMaxHeap is a max-heap of Candidates capped at k elements: it keeps
// the k smallest-distance candidates seen so far, with the current worst
// (largest distance) at the root for O(log k) eviction. Used by ef-search's
// result set and by every index family's top-k accumulation.
type BoundedMaxHeap struct {
	h highHeap
	k int
}

type highHeap = candHeap

// NewBoundedMaxHeap returns an empty bounded max-heap with capacity k.
func NewBoundedMaxHeap(k int) *BoundedMaxHeap {
	return &BoundedMaxHeap{h: candHeap{items: make([]Candidate, 0, k), max: true}, k: k}
}

// Len returns the number of elements currently held (<= k).
func (b *BoundedMaxHeap) Len() int { return b.h.Len() }

// Full reports whether the heap holds k elements.
func (b *BoundedMaxHeap) Full() bool { return b.h.Len() >= b.k }

// Worst returns the current largest distance held, or math.MaxFloat32 if
// empty.
func (b *BoundedMaxHeap) Worst() float32 {
	if b.h.Len() == 0 {
		return math.MaxFloat32
	}
	return b.h.items[0].Dist
}

// Offer inserts c if the heap isn't full or c is better than the current
// worst, evicting the worst element when the heap was already full.
func (b *BoundedMaxHeap) Offer(c Candidate) {
	if b.h.Len() < b.k {
		heap.Push(&b.h, c)
		return
	}
	if c.Dist < b.Worst() {
		heap.Pop(&b.h)
		heap.Push(&b.h, c)
	}
}

// Reset empties the heap, retaining its backing array.
func (b *BoundedMaxHeap) Reset() { b.h.items = b.h.items[:0] }

// Sorted drains the heap into a slice sorted by ascending distance. The
// heap is empty after this call.
func (b *BoundedMaxHeap) Sorted() []Candidate {
	n := b.h.Len()
	out := make([]Candidate, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(&b.h).(Candidate)
	}
	return out
}
