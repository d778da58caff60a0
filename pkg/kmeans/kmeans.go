// Package kmeans implements the Lloyd's-iteration trainer shared by the
// IVF coarse quantizer and the PQ per-subspace codebooks.
package kmeans

import (
	"fmt"
	"math/rand"

	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// Seeding selects how initial centroids are chosen.
type Seeding int

const (
	// SeedPlusPlus uses k-means++ (probability proportional to squared
	// distance to the nearest already-chosen centroid). Better suited to
	// few, well-separated clusters; used by IVF's coarse quantizer.
	SeedPlusPlus Seeding = iota
	// SeedUniform picks k distinct samples uniformly at random. Cheaper;
	// PQ trains each subspace codebook with this.
	SeedUniform
)

// Config configures a training run.
type Config struct {
	K        int   // number of centroids
	MaxIters int   // bounded Lloyd iterations
	Seed     int64 // RNG seed, for determinism (never the global rand)
	Seeding  Seeding
}

// Result is the outcome of Train: learned centroids and the final
// assignment of each input vector to its centroid.
type Result struct {
	Centroids   [][]float32
	Assignments []int
}

// Train runs bounded Lloyd's-iteration k-means over vectors (each of equal
// length) and returns the learned centroids. Empty clusters are reseeded
// by re-assigning them a random training vector (random-restart) rather
// than left degenerate. vectors must contain at least cfg.K vectors.
func Train(vectors [][]float32, cfg Config) (Result, error) {
	if cfg.K <= 0 {
		return Result{}, fmt.Errorf("kmeans: K must be positive, got %d", cfg.K)
	}
	if len(vectors) < cfg.K {
		return Result{}, fmt.Errorf("kmeans: need at least %d vectors, got %d", cfg.K, len(vectors))
	}
	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(cfg.Seed))

	var centroids [][]float32
	switch cfg.Seeding {
	case SeedPlusPlus:
		centroids = seedPlusPlus(vectors, cfg.K, rng)
	default:
		centroids = seedUniform(vectors, cfg.K, rng)
	}

	assignments := make([]int, len(vectors))
	maxIters := cfg.MaxIters
	if maxIters <= 0 {
		maxIters = 25
	}

	for iter := 0; iter < maxIters; iter++ {
		changed := assign(vectors, centroids, assignments)
		counts := update(vectors, assignments, centroids, dim)
		reseedEmpty(vectors, centroids, counts, rng)
		if !changed && iter > 0 {
			break
		}
	}

	return Result{Centroids: centroids, Assignments: assignments}, nil
}

func seedUniform(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	dim := len(vectors[0])
	centroids := make([][]float32, k)
	perm := rng.Perm(len(vectors))
	for i := 0; i < k; i++ {
		centroids[i] = make([]float32, dim)
		copy(centroids[i], vectors[perm[i]])
	}
	return centroids
}

func seedPlusPlus(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	dim := len(vectors[0])
	centroids := make([][]float32, k)

	centroids[0] = make([]float32, dim)
	copy(centroids[0], vectors[rng.Intn(len(vectors))])

	for i := 1; i < k; i++ {
		distances := make([]float32, len(vectors))
		var total float32
		for j, vec := range vectors {
			minDist := nearestSqDist(vec, centroids[:i])
			distances[j] = minDist
			total += minDist
		}
		if total == 0 {
			// All remaining vectors coincide with chosen centroids; fall
			// back to uniform pick to keep making progress.
			centroids[i] = make([]float32, dim)
			copy(centroids[i], vectors[rng.Intn(len(vectors))])
			continue
		}
		r := rng.Float32() * total
		var cum float32
		for j, d := range distances {
			cum += d
			if cum >= r {
				centroids[i] = make([]float32, dim)
				copy(centroids[i], vectors[j])
				break
			}
		}
		if centroids[i] == nil {
			centroids[i] = make([]float32, dim)
			copy(centroids[i], vectors[len(vectors)-1])
		}
	}
	return centroids
}

func nearestSqDist(vec []float32, centroids [][]float32) float32 {
	best := vectorstore.SqL2(vec, centroids[0])
	for _, c := range centroids[1:] {
		if d := vectorstore.SqL2(vec, c); d < best {
			best = d
		}
	}
	return best
}

// assign reassigns every vector to its nearest centroid, returns whether
// any assignment changed.
func assign(vectors [][]float32, centroids [][]float32, assignments []int) bool {
	changed := false
	for i, vec := range vectors {
		best := 0
		bestDist := vectorstore.SqL2(vec, centroids[0])
		for c := 1; c < len(centroids); c++ {
			if d := vectorstore.SqL2(vec, centroids[c]); d < bestDist {
				bestDist = d
				best = c
			}
		}
		if assignments[i] != best {
			changed = true
			assignments[i] = best
		}
	}
	return changed
}

// update recomputes each centroid as the mean of its assigned vectors,
// returning the per-cluster member counts.
func update(vectors [][]float32, assignments []int, centroids [][]float32, dim int) []int {
	k := len(centroids)
	counts := make([]int, k)
	sums := make([][]float32, k)
	for i := range sums {
		sums[i] = make([]float32, dim)
	}
	for i, vec := range vectors {
		c := assignments[i]
		counts[c]++
		for d := 0; d < dim; d++ {
			sums[c][d] += vec[d]
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue // left to reseedEmpty
		}
		for d := 0; d < dim; d++ {
			centroids[c][d] = sums[c][d] / float32(counts[c])
		}
	}
	return counts
}

// reseedEmpty reseeds any empty cluster with a random training vector so
// no centroid is left degenerate after an update pass.
func reseedEmpty(vectors [][]float32, centroids [][]float32, counts []int, rng *rand.Rand) {
	for c, n := range counts {
		if n == 0 {
			copy(centroids[c], vectors[rng.Intn(len(vectors))])
		}
	}
}
