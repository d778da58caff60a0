// Command annvec-bench builds each index family over synthetic vectors and
// reports recall@k and search latency. It exercises the library end to end
// without persisting anything to disk.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/elex-fu/annvec"
)

var (
	family      string
	dim         int
	numVectors  int
	numQueries  int
	topK        int
	seed        int64
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "annvec-bench",
	Short: "Benchmark the annvec index families over synthetic vectors",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build an index and report recall@k and search latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&family, "family", "hnsw", "index family: hnsw|ivf|pq|lsh|annoy")
	runCmd.Flags().IntVar(&dim, "dim", 64, "vector dimension")
	runCmd.Flags().IntVar(&numVectors, "n", 10000, "number of vectors to index")
	runCmd.Flags().IntVar(&numQueries, "queries", 200, "number of queries to run")
	runCmd.Flags().IntVar(&topK, "k", 10, "neighbors per query")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 8, "max concurrent search goroutines")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newEngine() (*annvec.Engine, error) {
	cfg := annvec.Config{
		Family:      annvec.Family(family),
		Dim:         dim,
		MaxElements: numVectors,
		Seed:        seed,
		HNSW:        annvec.HNSWParams{M: 16, EfConstruction: 200, EfSearch: 64},
		IVF:         annvec.IVFParams{NLists: 64, NProbes: 8},
		PQ:          annvec.PQParams{NumSubspaces: 8, NBits: 8},
		LSH:         annvec.LSHParams{NumTables: 8, NumHashes: 12},
		Annoy:       annvec.AnnoyParams{NumTrees: 16, LeafSize: 2 * dim, SearchK: 0},
	}
	return annvec.NewEngine(cfg)
}

func randomVector(rng *rand.Rand, d int) []float32 {
	v := make([]float32, d)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// runBench generates numVectors random rows, trains/builds the chosen
// family if it requires it, then fires numQueries concurrent searches
// (bounded by a semaphore) and reports recall@k against a brute-force
// baseline plus p50/p99 latency.
func runBench(ctx context.Context) error {
	rng := rand.New(rand.NewSource(seed))

	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("new engine: %w", err)
	}
	defer engine.Close()
	engine.SetLogger(annvec.NewStdLogger(annvec.LevelInfo))

	vectors := make([][]float32, numVectors)
	ids := make([]int32, numVectors)
	for i := 0; i < numVectors; i++ {
		vectors[i] = randomVector(rng, dim)
		ids[i] = int32(i)
	}

	if err := trainIfNeeded(engine, vectors); err != nil {
		return err
	}

	for i, v := range vectors {
		if _, err := engine.Add(ids[i], v); err != nil {
			return fmt.Errorf("add row %d: %w", i, err)
		}
	}

	if err := buildIfNeeded(engine); err != nil {
		return err
	}

	queries := make([][]float32, numQueries)
	for i := range queries {
		queries[i] = randomVector(rng, dim)
	}

	truth := bruteForceTop(vectors, ids, queries, topK)

	results := make([][]int32, numQueries)
	latencies := make([]time.Duration, numQueries)

	sem := semaphore.NewWeighted(int64(concurrency))
	errc := make(chan error, numQueries)
	for i := range queries {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire semaphore: %w", err)
		}
		go func() {
			defer sem.Release(1)
			start := time.Now()
			neighbors, err := engine.Search(queries[i], topK)
			latencies[i] = time.Since(start)
			if err != nil {
				errc <- err
				return
			}
			ids := make([]int32, len(neighbors))
			for j, n := range neighbors {
				ids[j] = n.ID
			}
			results[i] = ids
			errc <- nil
		}()
	}
	for range queries {
		if err := <-errc; err != nil {
			return fmt.Errorf("search: %w", err)
		}
	}

	recall := meanRecall(truth, results)
	p50, p99 := percentiles(latencies)

	fmt.Printf("family=%s dim=%d n=%d queries=%d k=%d\n", family, dim, numVectors, numQueries, topK)
	fmt.Printf("recall@%d = %.4f\n", topK, recall)
	fmt.Printf("latency p50=%s p99=%s\n", p50, p99)
	return nil
}

func trainIfNeeded(engine *annvec.Engine, vectors [][]float32) error {
	switch engine.Family() {
	case annvec.FamilyIVF, annvec.FamilyPQ:
		if err := engine.Train(vectors); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	}
	return nil
}

func buildIfNeeded(engine *annvec.Engine) error {
	if engine.Family() == annvec.FamilyAnnoy {
		if err := engine.Build(); err != nil {
			return fmt.Errorf("build: %w", err)
		}
	}
	return nil
}

func bruteForceTop(vectors [][]float32, ids []int32, queries [][]float32, k int) [][]int32 {
	out := make([][]int32, len(queries))
	for qi, q := range queries {
		type cand struct {
			id   int32
			dist float32
		}
		cands := make([]cand, len(vectors))
		for i, v := range vectors {
			var d float32
			for j := range v {
				diff := v[j] - q[j]
				d += diff * diff
			}
			cands[i] = cand{id: ids[i], dist: d}
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
		if k > len(cands) {
			k = len(cands)
		}
		top := make([]int32, k)
		for i := 0; i < k; i++ {
			top[i] = cands[i].id
		}
		out[qi] = top
	}
	return out
}

func meanRecall(truth, results [][]int32) float64 {
	var total float64
	for i := range truth {
		want := make(map[int32]bool, len(truth[i]))
		for _, id := range truth[i] {
			want[id] = true
		}
		var hit int
		for _, id := range results[i] {
			if want[id] {
				hit++
			}
		}
		if len(truth[i]) > 0 {
			total += float64(hit) / float64(len(truth[i]))
		}
	}
	if len(truth) == 0 {
		return 0
	}
	return total / float64(len(truth))
}

func percentiles(latencies []time.Duration) (p50, p99 time.Duration) {
	if len(latencies) == 0 {
		return 0, 0
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 = sorted[len(sorted)*50/100]
	p99 = sorted[len(sorted)*99/100]
	return p50, p99
}
