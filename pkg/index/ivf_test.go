package index

import (
	"math"
	"testing"
)

func gridVectors2D() ([]int32, [][]float32) {
	ids := []int32{1, 2, 3, 4}
	vecs := [][]float32{
		{0, 0},
		{10, 0},
		{0, 10},
		{10, 10},
	}
	return ids, vecs
}

func TestIVFTrainThenAddThenSearch(t *testing.T) {
	ivf, err := NewIVF(IVFConfig{Dim: 2, MaxElements: 100, NLists: 4, NProbes: 4, Seed: 1})
	if err != nil {
		t.Fatalf("NewIVF: %v", err)
	}
	ids, vecs := gridVectors2D()
	if err := ivf.Train(vecs); err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i, id := range ids {
		if _, err := ivf.Add(id, vecs[i]); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	neighbors, err := ivf.Search([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != 1 {
		t.Fatalf("expected id 1 nearest (0,0), got %+v", neighbors)
	}
	if neighbors[0].Distance != 0 {
		t.Fatalf("expected distance 0, got %v", neighbors[0].Distance)
	}
}

func TestIVFTwoClusterProbe(t *testing.T) {
	ivf, err := NewIVF(IVFConfig{Dim: 2, MaxElements: 10, NLists: 2, NProbes: 2, Seed: 8})
	if err != nil {
		t.Fatalf("NewIVF: %v", err)
	}
	samples := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {-0.1, 0}, {0, -0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {9.9, 10}, {10, 9.9},
	}
	if err := ivf.Train(samples); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := ivf.Add(1, []float32{0.1, 0.1}); err != nil {
		t.Fatalf("Add 1: %v", err)
	}
	if _, err := ivf.Add(2, []float32{10, 10}); err != nil {
		t.Fatalf("Add 2: %v", err)
	}

	neighbors, err := ivf.Search([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != 1 {
		t.Fatalf("expected id 1 near the origin cluster, got %+v", neighbors)
	}
	if d := neighbors[0].Distance; d < 0.019 || d > 0.021 {
		t.Fatalf("expected distance ~0.02, got %v", d)
	}
}

func TestIVFAddBeforeTrainFails(t *testing.T) {
	ivf, err := NewIVF(IVFConfig{Dim: 2, MaxElements: 10, NLists: 2, NProbes: 1})
	if err != nil {
		t.Fatalf("NewIVF: %v", err)
	}
	if _, err := ivf.Add(1, []float32{0, 0}); err == nil {
		t.Fatal("expected error adding before Train")
	}
}

func TestIVFPostingListUnionEqualsSize(t *testing.T) {
	ivf, err := NewIVF(IVFConfig{Dim: 2, MaxElements: 100, NLists: 4, NProbes: 2, Seed: 3})
	if err != nil {
		t.Fatalf("NewIVF: %v", err)
	}
	ids, vecs := gridVectors2D()
	if err := ivf.Train(vecs); err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i, id := range ids {
		if _, err := ivf.Add(id, vecs[i]); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	var total int
	for _, n := range ivf.PostingListSizes() {
		total += n
	}
	if total != ivf.Size() {
		t.Fatalf("posting list union %d != size %d", total, ivf.Size())
	}
}

func TestIVFSearchDimensionMismatch(t *testing.T) {
	ivf, _ := NewIVF(IVFConfig{Dim: 3, MaxElements: 10, NLists: 1, NProbes: 1})
	_, vecs := gridVectors2D()
	padded := make([][]float32, len(vecs))
	for i, v := range vecs {
		padded[i] = []float32{v[0], v[1], 0}
	}
	if err := ivf.Train(padded); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := ivf.Search([]float32{0, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestIVFRecallOnRandomData(t *testing.T) {
	const n = 500
	const dim = 16
	ids := make([]int32, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = int32(i + 1)
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32(math.Sin(float64(i)*0.37 + float64(d)*1.7))
		}
		vecs[i] = v
	}

	ivf, err := NewIVF(IVFConfig{Dim: dim, MaxElements: n, NLists: 16, NProbes: 16, Seed: 5})
	if err != nil {
		t.Fatalf("NewIVF: %v", err)
	}
	if err := ivf.Train(vecs); err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i := range ids {
		if _, err := ivf.Add(ids[i], vecs[i]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	// With NProbes == NLists every posting list is scanned, so this must be
	// exact: querying a stored vector returns itself as the top-1 match.
	neighbors, err := ivf.Search(vecs[0], 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != ids[0] {
		t.Fatalf("expected exact self-match with full probing, got %+v", neighbors)
	}
}
