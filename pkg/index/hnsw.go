package index

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// HNSWConfig configures a HNSW index. M must be in [4,64], EfConstruction
// in [M,800], EfSearch in [1,1000].
type HNSWConfig struct {
	Dim            int
	MaxElements    int
	M              int // neighbors per node on upper levels; 2*M at level 0
	EfConstruction int // candidate pool width during insert
	EfSearch       int // default candidate pool width at query time
	Seed           int64
}

// hnswNode is one row's entry in the layered graph. Neighbors is indexed
// by level; Neighbors[0] is level 0 and capped at 2*M, every other level
// is capped at M.
type hnswNode struct {
	level     int
	neighbors [][]int32 // level -> neighbor row indices (int32 to keep this small; HNSW is memory-bound)
	deleted   bool
}

// HNSW is a Hierarchical Navigable Small World graph index. Inserts are
// serialized by a coarse lock over the whole graph; searches may run
// concurrently with each other, but not with an insert; the host must
// serialize its own reader/writer access.
type HNSW struct {
	cfg   HNSWConfig
	store *vectorstore.Store

	mu         sync.RWMutex
	nodes      []*hnswNode // row -> node; nil until the row has been linked
	entryPoint int
	maxLevel   int
	mL         float64
	rng        *rand.Rand

	tombstones map[int32]bool // external id -> deleted; results are filtered by hnswNode.deleted
	rowByID    map[int32]int  // external id -> row, used only by Remove

	pool *visitedPool

	log func(string, ...any)
}

// NewHNSW creates an empty HNSW index backed by a freshly allocated
// vectorstore.Store of the configured dimension and capacity.
func NewHNSW(cfg HNSWConfig) (*HNSW, error) {
	if cfg.M < 4 || cfg.M > 64 {
		return nil, fmt.Errorf("hnsw: %w: M must be in [4,64], got %d", ErrInvalidArgument, cfg.M)
	}
	if cfg.EfConstruction < cfg.M || cfg.EfConstruction > 800 {
		return nil, fmt.Errorf("hnsw: %w: efConstruction must be in [M,800], got %d", ErrInvalidArgument, cfg.EfConstruction)
	}
	if cfg.EfSearch < 1 || cfg.EfSearch > 1000 {
		return nil, fmt.Errorf("hnsw: %w: efSearch must be in [1,1000], got %d", ErrInvalidArgument, cfg.EfSearch)
	}
	return &HNSW{
		cfg:        cfg,
		store:      vectorstore.New(cfg.Dim, cfg.MaxElements),
		nodes:      make([]*hnswNode, cfg.MaxElements),
		entryPoint: -1,
		mL:         1.0 / math.Log(float64(cfg.M)),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		tombstones: make(map[int32]bool),
		rowByID:    make(map[int32]int),
		pool:       newVisitedPool(),
		log:        func(string, ...any) {},
	}, nil
}

// SetLogger attaches a logger used to report insert/entry-point milestones.
func (h *HNSW) SetLogger(logf func(string, ...any)) { h.log = logf }

// selectLevel draws L(r) = floor(-ln(U(0,1]) * mL).
func (h *HNSW) selectLevel() int {
	u := h.rng.Float64()
	for u <= 0 {
		u = h.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * h.mL))
	const hardCap = 32 // guards against a pathological draw with tiny M
	if level > hardCap {
		level = hardCap
	}
	return level
}

// Add inserts vec under id, serialized against any other writer.
func (h *HNSW) Add(id int32, vec []float32) (int, error) {
	if len(vec) != h.cfg.Dim {
		return 0, vectorstore.ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	row, err := h.store.Add(id, vec)
	if err != nil {
		return 0, err
	}
	h.rowByID[id] = row
	h.insertLocked(row, vec)
	return row, nil
}

// AddBatch stores count vectors then links each one into the graph in
// order. Graph linking is inherently sequential (each insert's neighbor
// search depends on everything inserted before it), so batching only
// saves the VectorStore reservation, not the per-row link cost.
func (h *HNSW) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start, err := h.store.AddBatch(ids, vecs, count)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		row := start + i
		h.rowByID[ids[i]] = row
		h.insertLocked(row, vecs[i*h.cfg.Dim:(i+1)*h.cfg.Dim])
	}
	return start, nil
}

// insertLocked links row into the graph. Caller must hold h.mu.
func (h *HNSW) insertLocked(row int, vec []float32) {
	level := h.selectLevel()
	node := &hnswNode{level: level, neighbors: make([][]int32, level+1)}
	for l := 0; l <= level; l++ {
		node.neighbors[l] = nil
	}
	h.nodes[row] = node

	if h.entryPoint < 0 {
		h.entryPoint = row
		h.maxLevel = level
		h.log("hnsw: entry point set", "row", row, "level", level)
		return
	}

	entry := h.entryPoint
	// Greedy-descend through layers above the new node's level, keeping
	// only the single best neighbor per layer.
	for lc := h.maxLevel; lc > level; lc-- {
		entry = h.greedyClosest(vec, entry, lc)
	}

	// For layers min(level,maxLevel)..0, ef-search then heuristically
	// select neighbors and connect both directions.
	for lc := min(level, h.maxLevel); lc >= 0; lc-- {
		maxConn := h.cfg.M
		if lc == 0 {
			maxConn = h.cfg.M * 2
		}

		candidates := h.searchLayer(vec, []int{entry}, h.cfg.EfConstruction, lc)
		selected := h.selectNeighborsHeuristic(vec, candidates, maxConn, lc)

		node.neighbors[lc] = toInt32Slice(selected)
		for _, nb := range selected {
			h.connect(nb, row, lc, maxConn)
		}
		if len(selected) > 0 {
			entry = selected[0]
		}
	}

	// Promote the new node to entry point if it reaches higher.
	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = row
		h.log("hnsw: entry point promoted", "row", row, "level", level)
	}
}

// connect adds row as a neighbor of nb at layer lc (if not already
// present), then re-prunes nb's neighbor list with the same heuristic if
// it now exceeds cap.
func (h *HNSW) connect(nb, row, lc, maxConn int) {
	nbNode := h.nodes[nb]
	if nbNode == nil || lc >= len(nbNode.neighbors) {
		return
	}
	for _, existing := range nbNode.neighbors[lc] {
		if int(existing) == row {
			return
		}
	}
	nbNode.neighbors[lc] = append(nbNode.neighbors[lc], int32(row))

	if len(nbNode.neighbors[lc]) <= maxConn {
		return
	}
	_, nbVec, _, err := h.store.Get(nb)
	if err != nil {
		return
	}
	candidates := toIntSlice(nbNode.neighbors[lc])
	pruned := h.selectNeighborsHeuristic(nbVec, candidates, maxConn, lc)
	nbNode.neighbors[lc] = toInt32Slice(pruned)
}

// greedyClosest performs a 1-NN greedy walk from entry at layer lc.
func (h *HNSW) greedyClosest(q []float32, entry, lc int) int {
	results := h.searchLayer(q, []int{entry}, 1, lc)
	if len(results) == 0 {
		return entry
	}
	return results[0]
}

// searchLayer is the ef-search routine: a min-heap of
// candidates to expand and a bounded max-heap of the current top-ef
// results, expanding until the nearest unexpanded candidate is farther
// than the current farthest result. Returns row indices sorted by
// ascending distance.
func (h *HNSW) searchLayer(q []float32, entryPoints []int, ef int, layer int) []int {
	visited := h.pool.get(h.store.Size())
	defer h.pool.put(visited)

	candidates := vectorstore.NewMinHeap(ef * 2)
	results := vectorstore.NewBoundedMaxHeap(ef)

	dist := func(row int) float32 {
		_, vec, _, _ := h.store.Get(row)
		return vectorstore.SqL2(q, vec)
	}

	for _, ep := range entryPoints {
		if h.nodes[ep] == nil || visited.seen(ep) {
			continue
		}
		visited.mark(ep)
		d := dist(ep)
		candidates.Push(vectorstore.Candidate{Row: ep, Dist: d})
		results.Offer(vectorstore.Candidate{Row: ep, Dist: d})
	}

	for candidates.Len() > 0 {
		nearest := candidates.Peek()
		if results.Full() && nearest.Dist > results.Worst() {
			break
		}
		cur := candidates.Pop()

		node := h.nodes[cur.Row]
		if node == nil || layer >= len(node.neighbors) {
			continue
		}
		// Warm the neighbors' rows before the distance loop touches them.
		var pf [8]int
		npf := 0
		for _, nb := range node.neighbors[layer] {
			if npf == len(pf) {
				break
			}
			pf[npf] = int(nb)
			npf++
		}
		h.store.PrefetchRows(pf[:npf])
		for _, nbRow32 := range node.neighbors[layer] {
			nb := int(nbRow32)
			if visited.seen(nb) {
				continue
			}
			visited.mark(nb)
			if h.nodes[nb] != nil && h.nodes[nb].deleted {
				// Tombstoned rows still get expanded (graph connectivity
				// must not suffer) but never offered as a result.
				d := dist(nb)
				candidates.Push(vectorstore.Candidate{Row: nb, Dist: d})
				continue
			}
			d := dist(nb)
			if !results.Full() || d < results.Worst() {
				candidates.Push(vectorstore.Candidate{Row: nb, Dist: d})
				results.Offer(vectorstore.Candidate{Row: nb, Dist: d})
			}
		}
	}

	sorted := results.Sorted()
	out := make([]int, len(sorted))
	for i, c := range sorted {
		out[i] = c.Row
	}
	return out
}

// selectNeighborsHeuristic applies the dominance rule: a
// candidate is dominated when an already-selected neighbor is closer to it
// than the query is, in which case it's skipped (it's "shadowed" by a
// selection that already covers that direction).
func (h *HNSW) selectNeighborsHeuristic(q []float32, candidates []int, m int, _ int) []int {
	type scored struct {
		row  int
		dist float32
	}
	pairs := make([]scored, len(candidates))
	for i, c := range candidates {
		_, vec, _, _ := h.store.Get(c)
		pairs[i] = scored{row: c, dist: vectorstore.SqL2(q, vec)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	selected := make([]int, 0, m)
	for _, cand := range pairs {
		if len(selected) >= m {
			break
		}
		_, candVec, _, _ := h.store.Get(cand.row)
		dominated := false
		for _, sel := range selected {
			_, selVec, _, _ := h.store.Get(sel)
			if vectorstore.SqL2(candVec, selVec) < cand.dist {
				dominated = true
				break
			}
		}
		if !dominated {
			selected = append(selected, cand.row)
		}
	}
	// If the dominance rule was too aggressive and under-filled (can
	// happen in sparse graphs), top off with the closest remaining
	// candidates so neighbor lists don't starve.
	if len(selected) < m {
		have := make(map[int]bool, len(selected))
		for _, s := range selected {
			have[s] = true
		}
		for _, cand := range pairs {
			if len(selected) >= m {
				break
			}
			if !have[cand.row] {
				selected = append(selected, cand.row)
				have[cand.row] = true
			}
		}
	}
	return selected
}

// Search returns the k nearest rows to q.
func (h *HNSW) Search(q []float32, k int) ([]Neighbor, error) {
	return h.SearchEf(q, k, h.cfg.EfSearch)
}

// SearchEf is Search with an explicit ef override (useful for tests and
// callers that want to trade recall for latency per query).
func (h *HNSW) SearchEf(q []float32, k int, ef int) ([]Neighbor, error) {
	if len(q) != h.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, fmt.Errorf("hnsw: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint < 0 {
		return nil, nil
	}

	entry := h.entryPoint
	for lc := h.maxLevel; lc > 0; lc-- {
		entry = h.greedyClosest(q, entry, lc)
	}

	effectiveEf := ef
	if effectiveEf < k {
		effectiveEf = k
	}
	rows := h.searchLayer(q, []int{entry}, effectiveEf, 0)

	out := make([]Neighbor, 0, k)
	for _, row := range rows {
		if len(out) >= k {
			break
		}
		node := h.nodes[row]
		if node != nil && node.deleted {
			continue
		}
		id, vec, _, err := h.store.Get(row)
		if err != nil {
			continue
		}
		out = append(out, Neighbor{ID: id, Distance: vectorstore.SqL2(q, vec)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Remove tombstones the row holding id: it remains in the graph (future
// searches may still traverse through it) but is filtered from results.
// No graph repair is performed.
func (h *HNSW) Remove(id int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	row, ok := h.rowByID[id]
	if !ok {
		return fmt.Errorf("hnsw: %w: id %d", ErrNotFound, id)
	}
	node := h.nodes[row]
	if node == nil {
		return fmt.Errorf("hnsw: row %d has no graph entry", row)
	}
	node.deleted = true
	h.tombstones[id] = true

	if row == h.entryPoint {
		h.reassignEntryPointLocked()
	}
	return nil
}

// reassignEntryPointLocked picks any non-deleted row as the new entry
// point after the current one is tombstoned. Caller must hold h.mu.
func (h *HNSW) reassignEntryPointLocked() {
	for row, node := range h.nodes {
		if node != nil && !node.deleted {
			h.entryPoint = row
			h.maxLevel = node.level
			return
		}
	}
	h.entryPoint = -1
}

// Size returns the number of stored rows (tombstoned rows still count).
func (h *HNSW) Size() int {
	return h.store.Size()
}

// Close releases the index. HNSW holds no external resources beyond its
// own buffers, so Close is a no-op that satisfies the Index contract.
func (h *HNSW) Close() error { return nil }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func toInt32Slice(rows []int) []int32 {
	out := make([]int32, len(rows))
	for i, r := range rows {
		out[i] = int32(r)
	}
	return out
}

func toIntSlice(rows []int32) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = int(r)
	}
	return out
}

var (
	_ Index        = (*HNSW)(nil)
	_ Remover      = (*HNSW)(nil)
	_ LoggerSetter = (*HNSW)(nil)
)
