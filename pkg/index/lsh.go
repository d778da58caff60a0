package index

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// LSHConfig configures an LSH index. NumTables must be >= 1 and
// NumHashes in [1,64].
type LSHConfig struct {
	Dim         int
	MaxElements int
	NumTables   int // L
	NumHashes   int // K, hyperplanes per table
	Seed        int64
}

// LSH is a Locality-Sensitive Hashing index: L independent tables, each
// with K random hyperplanes drawn once at construction (normals sampled
// from a standard normal distribution and not rescaled to unit length,
// which leaves every dot-product sign unchanged). A row's
// bucket key in a table is the K-bit sign vector of its dot products with
// that table's hyperplanes. Search unions candidates across all tables'
// matching buckets and re-ranks them exactly by squared L2.
type LSH struct {
	cfg   LSHConfig
	store *vectorstore.Store

	hyperplanes [][][]float32 // [table][hash][dim]

	mu         sync.RWMutex
	buckets    []map[uint64][]int // buckets[table][key] -> rows
	tombstones map[int32]bool
	rowByID    map[int32]int
}

// NewLSH creates an LSH index with hyperplanes sampled from a standard
// normal distribution, seeded for reproducibility.
func NewLSH(cfg LSHConfig) (*LSH, error) {
	if cfg.NumTables < 1 {
		return nil, fmt.Errorf("lsh: %w: NumTables must be >= 1, got %d", ErrInvalidArgument, cfg.NumTables)
	}
	if cfg.NumHashes < 1 || cfg.NumHashes > 64 {
		return nil, fmt.Errorf("lsh: %w: NumHashes must be in [1,64], got %d", ErrInvalidArgument, cfg.NumHashes)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	hyperplanes := make([][][]float32, cfg.NumTables)
	buckets := make([]map[uint64][]int, cfg.NumTables)
	for t := 0; t < cfg.NumTables; t++ {
		hyperplanes[t] = make([][]float32, cfg.NumHashes)
		for h := 0; h < cfg.NumHashes; h++ {
			plane := make([]float32, cfg.Dim)
			for d := 0; d < cfg.Dim; d++ {
				plane[d] = float32(rng.NormFloat64())
			}
			hyperplanes[t][h] = plane
		}
		buckets[t] = make(map[uint64][]int)
	}

	return &LSH{
		cfg:         cfg,
		store:       vectorstore.New(cfg.Dim, cfg.MaxElements),
		hyperplanes: hyperplanes,
		buckets:     buckets,
		tombstones:  make(map[int32]bool),
		rowByID:     make(map[int32]int),
	}, nil
}

// bucketKey computes the K-bit sign-pattern key for vec in table t.
func (l *LSH) bucketKey(vec []float32, table int) uint64 {
	var key uint64
	for h, plane := range l.hyperplanes[table] {
		if vectorstore.Dot(vec, plane) > 0 {
			key |= 1 << uint(h)
		}
	}
	return key
}

// Add stores vec and inserts its row into all L tables' matching buckets.
func (l *LSH) Add(id int32, vec []float32) (int, error) {
	if len(vec) != l.cfg.Dim {
		return 0, vectorstore.ErrDimensionMismatch
	}

	row, err := l.store.Add(id, vec)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for t := 0; t < l.cfg.NumTables; t++ {
		key := l.bucketKey(vec, t)
		l.buckets[t][key] = append(l.buckets[t][key], row)
	}
	l.rowByID[id] = row
	return row, nil
}

// AddBatch stores count packed vectors and inserts their rows into every
// table's matching bucket.
func (l *LSH) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	start, err := l.store.AddBatch(ids, vecs, count)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < count; i++ {
		row := start + i
		vec := vecs[i*l.cfg.Dim : (i+1)*l.cfg.Dim]
		for t := 0; t < l.cfg.NumTables; t++ {
			key := l.bucketKey(vec, t)
			l.buckets[t][key] = append(l.buckets[t][key], row)
		}
		l.rowByID[ids[i]] = row
	}
	return start, nil
}

// Search unions the buckets matching q's sign pattern across all tables,
// de-duplicates by row, re-ranks exactly by squared L2, and returns the
// top-k.
func (l *LSH) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != l.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, fmt.Errorf("lsh: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	l.mu.RLock()
	candidateRows := make(map[int]bool)
	for t := 0; t < l.cfg.NumTables; t++ {
		key := l.bucketKey(q, t)
		for _, row := range l.buckets[t][key] {
			candidateRows[row] = true
		}
	}
	l.mu.RUnlock()

	results := vectorstore.NewBoundedMaxHeap(k)
	for row := range candidateRows {
		id, vec, _, err := l.store.Get(row)
		if err != nil {
			continue
		}
		l.mu.RLock()
		dead := l.tombstones[id]
		l.mu.RUnlock()
		if dead {
			continue
		}
		d := vectorstore.SqL2(q, vec)
		results.Offer(vectorstore.Candidate{Row: row, Dist: d})
	}

	sorted := results.Sorted()
	out := make([]Neighbor, len(sorted))
	for i, c := range sorted {
		id, _, _, _ := l.store.Get(c.Row)
		out[i] = Neighbor{ID: id, Distance: c.Dist}
	}
	return out, nil
}

// Remove logically deletes id via tombstone; its row stays in every
// table's bucket (no bucket compaction) but is filtered from results.
func (l *LSH) Remove(id int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rowByID[id]; !ok {
		return fmt.Errorf("lsh: %w: id %d", ErrNotFound, id)
	}
	l.tombstones[id] = true
	return nil
}

// BucketKey exposes the deterministic bucket key for vec in table t, for
// testing the per-table determinism invariant.
func (l *LSH) BucketKey(vec []float32, table int) uint64 {
	return l.bucketKey(vec, table)
}

// Size returns the number of stored rows (tombstoned rows still count).
func (l *LSH) Size() int { return l.store.Size() }

// Close is a no-op; LSH holds no external resources.
func (l *LSH) Close() error { return nil }

var (
	_ Index   = (*LSH)(nil)
	_ Remover = (*LSH)(nil)
)
