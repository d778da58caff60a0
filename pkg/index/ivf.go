package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/elex-fu/annvec/pkg/kmeans"
	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// IVFConfig configures an IVF index. NLists must be >= 1 and NProbes in
// [1,NLists].
type IVFConfig struct {
	Dim         int
	MaxElements int
	NLists      int // number of coarse centroids
	NProbes     int // number of centroids visited per search
	Seed        int64
}

// IVF is an Inverted File index: a coarse k-means quantizer partitions the
// space into NLists posting lists, and search visits the NProbes posting
// lists whose centroids are nearest the query. Train must complete before
// any Add or Search; after training, Add is serialized by a
// per-posting-list lock and Search runs concurrently with readers.
type IVF struct {
	cfg   IVFConfig
	store *vectorstore.Store

	mu        sync.RWMutex // guards trained/centroids; posting lists guarded individually below
	trained   bool
	centroids [][]float32

	listMu   []sync.Mutex
	postings [][]int

	log func(string, ...any)
}

// NewIVF creates an empty, untrained IVF index.
func NewIVF(cfg IVFConfig) (*IVF, error) {
	if cfg.NLists < 1 {
		return nil, fmt.Errorf("ivf: %w: NLists must be >= 1, got %d", ErrInvalidArgument, cfg.NLists)
	}
	if cfg.NProbes < 1 || cfg.NProbes > cfg.NLists {
		return nil, fmt.Errorf("ivf: %w: NProbes must be in [1,NLists], got %d", ErrInvalidArgument, cfg.NProbes)
	}
	return &IVF{
		cfg:      cfg,
		store:    vectorstore.New(cfg.Dim, cfg.MaxElements),
		listMu:   make([]sync.Mutex, cfg.NLists),
		postings: make([][]int, cfg.NLists),
		log:      func(string, ...any) {},
	}, nil
}

// SetLogger attaches a logger used to report training milestones.
func (ivf *IVF) SetLogger(logf func(string, ...any)) { ivf.log = logf }

// Train runs bounded Lloyd's-iteration k-means over samples to learn
// NLists centroids. samples must number at least NLists.
func (ivf *IVF) Train(samples [][]float32) error {
	if len(samples) < ivf.cfg.NLists {
		return fmt.Errorf("ivf: %w: need >= %d samples, got %d", ErrInsufficientSamples, ivf.cfg.NLists, len(samples))
	}
	for _, s := range samples {
		if len(s) != ivf.cfg.Dim {
			return vectorstore.ErrDimensionMismatch
		}
	}

	res, err := kmeans.Train(samples, kmeans.Config{
		K: ivf.cfg.NLists, MaxIters: 25, Seed: ivf.cfg.Seed, Seeding: kmeans.SeedPlusPlus,
	})
	if err != nil {
		return fmt.Errorf("ivf: training failed: %w", err)
	}

	ivf.mu.Lock()
	ivf.centroids = res.Centroids
	ivf.trained = true
	ivf.mu.Unlock()

	ivf.log("ivf: trained", "lists", ivf.cfg.NLists, "samples", len(samples))
	return nil
}

// nearestCentroid returns the centroid index closest to vec. Caller must
// hold at least a read lock on ivf.mu or otherwise guarantee centroids is
// immutable (true once trained).
func (ivf *IVF) nearestCentroid(vec []float32) int {
	best := 0
	bestDist := vectorstore.SqL2(vec, ivf.centroids[0])
	for i := 1; i < len(ivf.centroids); i++ {
		if d := vectorstore.SqL2(vec, ivf.centroids[i]); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// Add assigns vec to its nearest centroid's posting list.
func (ivf *IVF) Add(id int32, vec []float32) (int, error) {
	if len(vec) != ivf.cfg.Dim {
		return 0, vectorstore.ErrDimensionMismatch
	}

	ivf.mu.RLock()
	trained := ivf.trained
	ivf.mu.RUnlock()
	if !trained {
		return 0, ErrNotTrained
	}

	row, err := ivf.store.Add(id, vec)
	if err != nil {
		return 0, err
	}

	ivf.mu.RLock()
	list := ivf.nearestCentroid(vec)
	ivf.mu.RUnlock()

	ivf.listMu[list].Lock()
	ivf.postings[list] = append(ivf.postings[list], row)
	ivf.listMu[list].Unlock()
	return row, nil
}

// AddBatch assigns count packed vectors to their nearest centroids.
func (ivf *IVF) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	ivf.mu.RLock()
	trained := ivf.trained
	ivf.mu.RUnlock()
	if !trained {
		return 0, ErrNotTrained
	}

	start, err := ivf.store.AddBatch(ids, vecs, count)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		row := start + i
		vec := vecs[i*ivf.cfg.Dim : (i+1)*ivf.cfg.Dim]
		ivf.mu.RLock()
		list := ivf.nearestCentroid(vec)
		ivf.mu.RUnlock()
		ivf.listMu[list].Lock()
		ivf.postings[list] = append(ivf.postings[list], row)
		ivf.listMu[list].Unlock()
	}
	return start, nil
}

// Search finds the NProbes nearest centroids to q and scores every row in
// their union, returning the top-k by ascending squared L2 distance.
func (ivf *IVF) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != ivf.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, fmt.Errorf("ivf: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	ivf.mu.RLock()
	if !ivf.trained {
		ivf.mu.RUnlock()
		return nil, ErrNotTrained
	}
	centroidDists := make([]vectorstore.Candidate, len(ivf.centroids))
	for i, c := range ivf.centroids {
		centroidDists[i] = vectorstore.Candidate{Row: i, Dist: vectorstore.SqL2(q, c)}
	}
	ivf.mu.RUnlock()

	sort.Slice(centroidDists, func(i, j int) bool { return centroidDists[i].Dist < centroidDists[j].Dist })

	nProbes := ivf.cfg.NProbes
	if nProbes > len(centroidDists) {
		nProbes = len(centroidDists)
	}

	results := vectorstore.NewBoundedMaxHeap(k)
	for i := 0; i < nProbes; i++ {
		list := centroidDists[i].Row
		ivf.listMu[list].Lock()
		rows := append([]int(nil), ivf.postings[list]...)
		ivf.listMu[list].Unlock()

		ivf.store.PrefetchRows(rows)
		for _, row := range rows {
			_, vec, _, err := ivf.store.Get(row)
			if err != nil {
				continue
			}
			d := vectorstore.SqL2(q, vec)
			results.Offer(vectorstore.Candidate{Row: row, Dist: d})
		}
	}

	sorted := results.Sorted()
	out := make([]Neighbor, len(sorted))
	for i, c := range sorted {
		id, _, _, _ := ivf.store.Get(c.Row)
		out[i] = Neighbor{ID: id, Distance: c.Dist}
	}
	return out, nil
}

// Size returns the number of stored rows.
func (ivf *IVF) Size() int { return ivf.store.Size() }

// Close is a no-op; IVF holds no external resources.
func (ivf *IVF) Close() error { return nil }

// PostingListSizes returns the current size of every posting list, for
// tests and diagnostics (the sizes always sum to Size()).
func (ivf *IVF) PostingListSizes() []int {
	sizes := make([]int, len(ivf.postings))
	for i := range ivf.postings {
		ivf.listMu[i].Lock()
		sizes[i] = len(ivf.postings[i])
		ivf.listMu[i].Unlock()
	}
	return sizes
}

var (
	_ Index        = (*IVF)(nil)
	_ Trainable    = (*IVF)(nil)
	_ LoggerSetter = (*IVF)(nil)
)
