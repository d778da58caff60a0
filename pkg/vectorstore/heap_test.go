package vectorstore

import "testing"

func TestBoundedMaxHeapKeepsSmallest(t *testing.T) {
	h := NewBoundedMaxHeap(3)
	dists := []float32{5, 1, 9, 2, 7, 0.5}
	for i, d := range dists {
		h.Offer(Candidate{Row: i, Dist: d})
	}
	if h.Len() != 3 {
		t.Fatalf("expected len 3, got %d", h.Len())
	}
	sorted := h.Sorted()
	want := []float32{0.5, 1, 2}
	for i, c := range sorted {
		if c.Dist != want[i] {
			t.Errorf("sorted[%d].Dist = %v, want %v", i, c.Dist, want[i])
		}
	}
}

func TestBoundedMaxHeapFullAndWorst(t *testing.T) {
	h := NewBoundedMaxHeap(2)
	if h.Full() {
		t.Fatal("expected not full initially")
	}
	h.Offer(Candidate{Row: 0, Dist: 3})
	h.Offer(Candidate{Row: 1, Dist: 1})
	if !h.Full() {
		t.Fatal("expected full at capacity")
	}
	if h.Worst() != 3 {
		t.Fatalf("expected worst 3, got %v", h.Worst())
	}
	h.Offer(Candidate{Row: 2, Dist: 2})
	if h.Worst() != 2 {
		t.Fatalf("expected worst 2 after eviction, got %v", h.Worst())
	}
}

func TestMinHeapOrder(t *testing.T) {
	m := NewMinHeap(4)
	for _, d := range []float32{4, 1, 3, 2} {
		m.Push(Candidate{Dist: d})
	}
	var got []float32
	for m.Len() > 0 {
		got = append(got, m.Pop().Dist)
	}
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDistanceKernels(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{1, 0, 3, 0, 5}
	if got := SqL2(a, b); got != 20 {
		t.Errorf("SqL2 = %v, want 20", got)
	}
	if got := Dot(a, a); got != 55 {
		t.Errorf("Dot = %v, want 55", got)
	}
	if got := SqNorm(a); got != 55 {
		t.Errorf("SqNorm = %v, want 55", got)
	}
}
