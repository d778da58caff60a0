package kmeans

import (
	"math"
	"testing"
)

func cluster(cx, cy float32, n int, spread float32, seed int64) [][]float32 {
	out := make([][]float32, n)
	// Deterministic jitter without relying on math/rand's global state.
	for i := 0; i < n; i++ {
		jx := spread * float32(math.Sin(float64(i)*1.37+float64(seed)))
		jy := spread * float32(math.Cos(float64(i)*2.11+float64(seed)))
		out[i] = []float32{cx + jx, cy + jy}
	}
	return out
}

func TestTrainFindsTwoWellSeparatedClusters(t *testing.T) {
	var vectors [][]float32
	vectors = append(vectors, cluster(0, 0, 20, 0.2, 1)...)
	vectors = append(vectors, cluster(10, 10, 20, 0.2, 2)...)

	res, err := Train(vectors, Config{K: 2, MaxIters: 25, Seed: 7, Seeding: SeedPlusPlus})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if len(res.Centroids) != 2 {
		t.Fatalf("expected 2 centroids, got %d", len(res.Centroids))
	}

	// One centroid should land near (0,0), the other near (10,10).
	var nearOrigin, nearTen bool
	for _, c := range res.Centroids {
		if dist(c, []float32{0, 0}) < 2 {
			nearOrigin = true
		}
		if dist(c, []float32{10, 10}) < 2 {
			nearTen = true
		}
	}
	if !nearOrigin || !nearTen {
		t.Fatalf("centroids %v did not land near both clusters", res.Centroids)
	}

	// Every vector in the first cluster should be assigned to the same
	// centroid, distinct from the second cluster's.
	firstAssignment := res.Assignments[0]
	for i := 0; i < 20; i++ {
		if res.Assignments[i] != firstAssignment {
			t.Errorf("vector %d assigned to %d, want %d", i, res.Assignments[i], firstAssignment)
		}
	}
	secondAssignment := res.Assignments[20]
	if secondAssignment == firstAssignment {
		t.Fatal("both clusters assigned to the same centroid")
	}
	for i := 20; i < 40; i++ {
		if res.Assignments[i] != secondAssignment {
			t.Errorf("vector %d assigned to %d, want %d", i, res.Assignments[i], secondAssignment)
		}
	}
}

func TestTrainInsufficientSamples(t *testing.T) {
	_, err := Train([][]float32{{1, 2}}, Config{K: 2})
	if err == nil {
		t.Fatal("expected error for too few samples")
	}
}

func TestTrainIsDeterministicForFixedSeed(t *testing.T) {
	vectors := append(cluster(0, 0, 10, 0.3, 1), cluster(5, 5, 10, 0.3, 2)...)
	r1, err := Train(vectors, Config{K: 2, MaxIters: 25, Seed: 42, Seeding: SeedUniform})
	if err != nil {
		t.Fatalf("train 1 failed: %v", err)
	}
	r2, err := Train(vectors, Config{K: 2, MaxIters: 25, Seed: 42, Seeding: SeedUniform})
	if err != nil {
		t.Fatalf("train 2 failed: %v", err)
	}
	for i := range r1.Centroids {
		for d := range r1.Centroids[i] {
			if r1.Centroids[i][d] != r2.Centroids[i][d] {
				t.Fatalf("same-seed training diverged at centroid %d dim %d: %v vs %v",
					i, d, r1.Centroids[i][d], r2.Centroids[i][d])
			}
		}
	}
}

func dist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}
