package index

import (
	"math"
	"math/rand"
	"testing"
)

func TestLSHAddSearchFindsExactMatch(t *testing.T) {
	lsh, err := NewLSH(LSHConfig{Dim: 4, MaxElements: 10, NumTables: 6, NumHashes: 6, Seed: 11})
	if err != nil {
		t.Fatalf("NewLSH: %v", err)
	}
	vecs := map[int32][]float32{
		1: {1, 0, 0, 0},
		2: {0, 1, 0, 0},
		3: {0, 0, 1, 0},
		4: {0, 0, 0, 1},
	}
	for id, v := range vecs {
		if _, err := lsh.Add(id, v); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}

	neighbors, err := lsh.Search([]float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != 1 || neighbors[0].Distance != 0 {
		t.Fatalf("expected exact self-match, got %+v", neighbors)
	}
}

// A stored vector always shares every table's bucket with itself, so
// querying it must return its own id at distance zero no matter how many
// other rows hash nearby.
func TestLSHSelfMatchOnUnitVectors(t *testing.T) {
	const n = 1000
	lsh, err := NewLSH(LSHConfig{Dim: 2, MaxElements: n, NumTables: 4, NumHashes: 8, Seed: 17})
	if err != nil {
		t.Fatalf("NewLSH: %v", err)
	}

	rng := rand.New(rand.NewSource(23))
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		theta := rng.Float64() * 2 * math.Pi
		vecs[i] = []float32{float32(math.Cos(theta)), float32(math.Sin(theta))}
		if _, err := lsh.Add(int32(i), vecs[i]); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	for _, probe := range []int{0, 137, 999} {
		neighbors, err := lsh.Search(vecs[probe], 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(neighbors) != 1 || neighbors[0].ID != int32(probe) || neighbors[0].Distance != 0 {
			t.Fatalf("expected a distance-zero self-match for probe %d, got %+v", probe, neighbors)
		}
	}
}

func TestLSHBucketKeyDeterministic(t *testing.T) {
	lsh, err := NewLSH(LSHConfig{Dim: 8, MaxElements: 10, NumTables: 3, NumHashes: 4, Seed: 4})
	if err != nil {
		t.Fatalf("NewLSH: %v", err)
	}
	vec := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	k1 := lsh.BucketKey(vec, 0)
	k2 := lsh.BucketKey(vec, 0)
	if k1 != k2 {
		t.Fatalf("expected deterministic bucket key, got %d then %d", k1, k2)
	}
}

func TestLSHRemoveFiltersFromSearch(t *testing.T) {
	lsh, err := NewLSH(LSHConfig{Dim: 4, MaxElements: 10, NumTables: 6, NumHashes: 6, Seed: 2})
	if err != nil {
		t.Fatalf("NewLSH: %v", err)
	}
	if _, err := lsh.Add(1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := lsh.Add(2, []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := lsh.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	neighbors, err := lsh.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, n := range neighbors {
		if n.ID == 1 {
			t.Fatalf("tombstoned id 1 leaked into results: %+v", neighbors)
		}
	}
}

func TestLSHRemoveUnknownIDFails(t *testing.T) {
	lsh, _ := NewLSH(LSHConfig{Dim: 4, MaxElements: 10, NumTables: 2, NumHashes: 2, Seed: 1})
	if err := lsh.Remove(99); err == nil {
		t.Fatal("expected error removing unknown id")
	}
}

func TestLSHSearchDimensionMismatch(t *testing.T) {
	lsh, _ := NewLSH(LSHConfig{Dim: 4, MaxElements: 10, NumTables: 2, NumHashes: 2, Seed: 1})
	if _, err := lsh.Add(1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := lsh.Search([]float32{1, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}
