package index

import (
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// AnnoyConfig configures an Annoy-style random-projection forest.
// NumTrees must be >= 1 and LeafSize >= 2*Dim.
type AnnoyConfig struct {
	Dim         int
	MaxElements int
	NumTrees    int
	LeafSize    int
	SearchK     int // expansion budget per tree at query time; 0 picks a default
	Seed        int64
}

// annoyNode is one node of a random-projection tree: internal nodes carry
// a splitting hyperplane (normal, offset) derived from the midpoint of two
// randomly chosen rows in their subset; leaves hold up to LeafSize rows.
type annoyNode struct {
	isLeaf bool
	rows   []int
	normal []float32
	offset float32
	left   *annoyNode
	right  *annoyNode
}

// Annoy is a forest of NumTrees random-projection trees over the shared
// row store. Add appends to a pending row list; Build freezes the forest
// from all rows added so far. Any Add after Build invalidates the forest,
// and Search fails with NotBuilt until Build runs again.
type Annoy struct {
	cfg   AnnoyConfig
	store *vectorstore.Store

	mu      sync.RWMutex
	rows    []int
	trees   []*annoyNode
	built   bool
	rngSeed int64

	log func(string, ...any)
}

// NewAnnoy creates an empty, unbuilt Annoy index.
func NewAnnoy(cfg AnnoyConfig) (*Annoy, error) {
	if cfg.NumTrees < 1 {
		return nil, fmt.Errorf("annoy: %w: NumTrees must be >= 1, got %d", ErrInvalidArgument, cfg.NumTrees)
	}
	if cfg.LeafSize < 2*cfg.Dim {
		return nil, fmt.Errorf("annoy: %w: LeafSize must be >= 2*Dim (%d), got %d", ErrInvalidArgument, 2*cfg.Dim, cfg.LeafSize)
	}
	return &Annoy{
		cfg:     cfg,
		store:   vectorstore.New(cfg.Dim, cfg.MaxElements),
		rngSeed: cfg.Seed,
		log:     func(string, ...any) {},
	}, nil
}

// SetLogger attaches a logger used to report forest-build milestones.
func (a *Annoy) SetLogger(logf func(string, ...any)) { a.log = logf }

// Add stores vec and queues its row for the next Build. The forest is
// invalidated: Search fails until Build runs again.
func (a *Annoy) Add(id int32, vec []float32) (int, error) {
	if len(vec) != a.cfg.Dim {
		return 0, vectorstore.ErrDimensionMismatch
	}
	row, err := a.store.Add(id, vec)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.rows = append(a.rows, row)
	a.built = false
	a.mu.Unlock()
	return row, nil
}

// AddBatch stores count packed vectors and queues their rows for the next
// Build, invalidating the forest.
func (a *Annoy) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	start, err := a.store.AddBatch(ids, vecs, count)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	for i := 0; i < count; i++ {
		a.rows = append(a.rows, start+i)
	}
	a.built = false
	a.mu.Unlock()
	return start, nil
}

// Build constructs NumTrees trees over every row added so far. Subtrees
// whose row count exceeds a parallel threshold are built concurrently via
// an errgroup; smaller subtrees recurse on the calling goroutine.
func (a *Annoy) Build() error {
	a.mu.Lock()
	rows := append([]int(nil), a.rows...)
	a.mu.Unlock()

	trees := make([]*annoyNode, a.cfg.NumTrees)
	var eg errgroup.Group
	for t := 0; t < a.cfg.NumTrees; t++ {
		t := t
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(a.rngSeed + int64(t)))
			treeRows := append([]int(nil), rows...)
			rng.Shuffle(len(treeRows), func(i, j int) { treeRows[i], treeRows[j] = treeRows[j], treeRows[i] })
			root, err := a.buildSubtree(treeRows, rng)
			if err != nil {
				return err
			}
			trees[t] = root
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	a.mu.Lock()
	a.trees = trees
	a.built = true
	a.mu.Unlock()

	a.log("annoy: forest built", "trees", a.cfg.NumTrees, "rows", len(rows))
	return nil
}

const annoyParallelThreshold = 256

// buildSubtree recursively partitions rows by a random hyperplane until
// each partition is at most LeafSize rows.
func (a *Annoy) buildSubtree(rows []int, rng *rand.Rand) (*annoyNode, error) {
	if len(rows) <= a.cfg.LeafSize {
		return &annoyNode{isLeaf: true, rows: rows}, nil
	}

	i, j := rng.Intn(len(rows)), rng.Intn(len(rows))
	for j == i && len(rows) > 1 {
		j = rng.Intn(len(rows))
	}
	_, va, _, err := a.store.Get(rows[i])
	if err != nil {
		return nil, err
	}
	_, vb, _, err := a.store.Get(rows[j])
	if err != nil {
		return nil, err
	}

	normal := make([]float32, a.cfg.Dim)
	midpoint := make([]float32, a.cfg.Dim)
	for d := 0; d < a.cfg.Dim; d++ {
		normal[d] = va[d] - vb[d]
		midpoint[d] = (va[d] + vb[d]) / 2
	}
	offset := vectorstore.Dot(normal, midpoint)

	var left, right []int
	for _, row := range rows {
		_, v, _, err := a.store.Get(row)
		if err != nil {
			continue
		}
		if vectorstore.Dot(normal, v) < offset {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		mid := len(rows) / 2
		left = append([]int(nil), rows[:mid]...)
		right = append([]int(nil), rows[mid:]...)
	}

	node := &annoyNode{normal: normal, offset: offset}

	if len(rows) > annoyParallelThreshold {
		var eg errgroup.Group
		leftRng := rand.New(rand.NewSource(rng.Int63()))
		rightRng := rand.New(rand.NewSource(rng.Int63()))
		eg.Go(func() error {
			child, err := a.buildSubtree(left, leftRng)
			if err != nil {
				return err
			}
			node.left = child
			return nil
		})
		eg.Go(func() error {
			child, err := a.buildSubtree(right, rightRng)
			if err != nil {
				return err
			}
			node.right = child
			return nil
		})
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	} else {
		leftChild, err := a.buildSubtree(left, rng)
		if err != nil {
			return nil, err
		}
		rightChild, err := a.buildSubtree(right, rng)
		if err != nil {
			return nil, err
		}
		node.left = leftChild
		node.right = rightChild
	}

	return node, nil
}

// traceToLeaves descends from node toward q, collecting every leaf's rows
// visited within the search_k expansion budget: at each internal node, the
// side on the query's far side of the hyperplane is also explored if
// budget remains. The walk is a plain depth-first recursion (near side
// first); there is no priority queue, so far sides are not ordered by
// their margin to the hyperplane.
func traceToLeaves(node *annoyNode, q []float32, budget *int, out *[]int) {
	if node == nil || *budget <= 0 {
		return
	}
	if node.isLeaf {
		*out = append(*out, node.rows...)
		*budget -= len(node.rows)
		return
	}
	dot := vectorstore.Dot(q, node.normal)
	near, far := node.left, node.right
	if dot >= node.offset {
		near, far = node.right, node.left
	}
	traceToLeaves(near, q, budget, out)
	if *budget > 0 {
		traceToLeaves(far, q, budget, out)
	}
}

// Search traces q down each tree within the configured search_k budget,
// unions the visited leaves' rows, re-ranks exactly by squared L2, and
// returns the top-k. Fails with NotBuilt if Build has not run since the
// last Add.
func (a *Annoy) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != a.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, fmt.Errorf("annoy: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	a.mu.RLock()
	if !a.built {
		a.mu.RUnlock()
		return nil, ErrNotBuilt
	}
	trees := a.trees
	a.mu.RUnlock()

	searchK := a.cfg.SearchK
	if searchK <= 0 {
		searchK = a.cfg.LeafSize * a.cfg.NumTrees * 4
	}

	seen := make(map[int]bool)
	for _, tree := range trees {
		budget := searchK
		var rows []int
		traceToLeaves(tree, q, &budget, &rows)
		for _, r := range rows {
			seen[r] = true
		}
	}

	results := vectorstore.NewBoundedMaxHeap(k)
	for row := range seen {
		_, vec, _, err := a.store.Get(row)
		if err != nil {
			continue
		}
		results.Offer(vectorstore.Candidate{Row: row, Dist: vectorstore.SqL2(q, vec)})
	}

	sorted := results.Sorted()
	out := make([]Neighbor, len(sorted))
	for i, c := range sorted {
		id, _, _, _ := a.store.Get(c.Row)
		out[i] = Neighbor{ID: id, Distance: c.Dist}
	}
	return out, nil
}

// Size returns the number of stored rows.
func (a *Annoy) Size() int { return a.store.Size() }

// Close is a no-op; Annoy holds no external resources.
func (a *Annoy) Close() error { return nil }

var (
	_ Index        = (*Annoy)(nil)
	_ Builder      = (*Annoy)(nil)
	_ LoggerSetter = (*Annoy)(nil)
)
