package index

import (
	"fmt"
	"sync"

	"github.com/elex-fu/annvec/pkg/kmeans"
	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// PQConfig configures a Product Quantization index. Dim must be
// divisible by NumSubspaces, and NBits is in [1,16].
type PQConfig struct {
	Dim          int
	MaxElements  int
	NumSubspaces int // number of contiguous subspaces the dimension splits into
	NBits        int // bits per subspace code; K = 2^NBits centroids
	Seed         int64
}

// PQ is a Product Quantization index: each vector is split into
// NumSubspaces equal contiguous subvectors, each independently quantized
// against its own trained codebook, and the resulting per-subspace
// centroid indices are bit-packed into a fixed-width code. Search scores
// codes against an asymmetric distance table built once per query,
// avoiding any decode.
type PQ struct {
	cfg    PQConfig
	subDim int
	k      int // centroids per subspace, 2^NBits
	store  *vectorstore.Store

	mu        sync.RWMutex
	trained   bool
	codebooks [][][]float32 // [subspace][centroid][subDim]

	codeMu sync.Mutex
	codes  [][]byte // codes[row] is the packed code for that row

	log func(string, ...any)
}

// NewPQ creates an empty, untrained PQ index.
func NewPQ(cfg PQConfig) (*PQ, error) {
	if cfg.NumSubspaces < 1 || cfg.Dim%cfg.NumSubspaces != 0 {
		return nil, fmt.Errorf("pq: %w: NumSubspaces must divide Dim, got Dim=%d NumSubspaces=%d", ErrInvalidArgument, cfg.Dim, cfg.NumSubspaces)
	}
	if cfg.NBits < 1 || cfg.NBits > 16 {
		return nil, fmt.Errorf("pq: %w: NBits must be in [1,16], got %d", ErrInvalidArgument, cfg.NBits)
	}
	return &PQ{
		cfg:    cfg,
		subDim: cfg.Dim / cfg.NumSubspaces,
		k:      1 << uint(cfg.NBits),
		store:  vectorstore.New(cfg.Dim, cfg.MaxElements),
		log:    func(string, ...any) {},
	}, nil
}

// SetLogger attaches a logger used to report training milestones.
func (pq *PQ) SetLogger(logf func(string, ...any)) { pq.log = logf }

// Train learns one codebook per subspace via Lloyd's-iteration k-means,
// seeded independently per subspace so the subspaces don't share an RNG
// stream.
func (pq *PQ) Train(samples [][]float32) error {
	// Each sample contributes one subvector to every subspace, so k
	// samples suffice to seed every subspace codebook.
	need := pq.k
	if len(samples) < need {
		return fmt.Errorf("pq: %w: need >= %d samples, got %d", ErrInsufficientSamples, need, len(samples))
	}
	for _, s := range samples {
		if len(s) != pq.cfg.Dim {
			return vectorstore.ErrDimensionMismatch
		}
	}

	codebooks := make([][][]float32, pq.cfg.NumSubspaces)
	for m := 0; m < pq.cfg.NumSubspaces; m++ {
		start := m * pq.subDim
		end := start + pq.subDim
		sub := make([][]float32, len(samples))
		for i, v := range samples {
			sub[i] = v[start:end]
		}
		res, err := kmeans.Train(sub, kmeans.Config{
			K: pq.k, MaxIters: 20, Seed: pq.cfg.Seed + int64(m), Seeding: kmeans.SeedUniform,
		})
		if err != nil {
			return fmt.Errorf("pq: training subspace %d failed: %w", m, err)
		}
		codebooks[m] = res.Centroids
	}

	pq.mu.Lock()
	pq.codebooks = codebooks
	pq.trained = true
	pq.mu.Unlock()

	pq.log("pq: trained", "subspaces", pq.cfg.NumSubspaces, "centroids", pq.k)
	return nil
}

// encodeLocked returns the nearest-centroid index per subspace for vec.
// Caller must hold at least a read lock on pq.mu.
func (pq *PQ) encodeLocked(vec []float32) []int {
	idxs := make([]int, pq.cfg.NumSubspaces)
	for m := 0; m < pq.cfg.NumSubspaces; m++ {
		start := m * pq.subDim
		sub := vec[start : start+pq.subDim]
		best := 0
		bestDist := vectorstore.SqL2(sub, pq.codebooks[m][0])
		for c := 1; c < pq.k; c++ {
			if d := vectorstore.SqL2(sub, pq.codebooks[m][c]); d < bestDist {
				bestDist = d
				best = c
			}
		}
		idxs[m] = best
	}
	return idxs
}

// packCode bit-packs M' centroid indices of NBits each into a little-endian
// byte slice of ceil(M'*NBits/8) bytes.
func packCode(idxs []int, nBits int) []byte {
	totalBits := len(idxs) * nBits
	out := make([]byte, (totalBits+7)/8)
	var bitPos int
	for _, idx := range idxs {
		v := uint32(idx)
		for b := 0; b < nBits; b++ {
			if v&(1<<uint(b)) != 0 {
				out[bitPos/8] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}
	return out
}

// unpackCode reverses packCode.
func unpackCode(code []byte, numSubspaces, nBits int) []int {
	idxs := make([]int, numSubspaces)
	var bitPos int
	for m := 0; m < numSubspaces; m++ {
		var v uint32
		for b := 0; b < nBits; b++ {
			if code[bitPos/8]&(1<<uint(bitPos%8)) != 0 {
				v |= 1 << uint(b)
			}
			bitPos++
		}
		idxs[m] = int(v)
	}
	return idxs
}

// Add quantizes vec against the trained codebooks and stores both the raw
// vector (in the shared row store) and its packed code.
func (pq *PQ) Add(id int32, vec []float32) (int, error) {
	if len(vec) != pq.cfg.Dim {
		return 0, vectorstore.ErrDimensionMismatch
	}

	pq.mu.RLock()
	trained := pq.trained
	pq.mu.RUnlock()
	if !trained {
		return 0, ErrNotTrained
	}

	row, err := pq.store.Add(id, vec)
	if err != nil {
		return 0, err
	}

	pq.mu.RLock()
	idxs := pq.encodeLocked(vec)
	pq.mu.RUnlock()
	code := packCode(idxs, pq.cfg.NBits)

	pq.codeMu.Lock()
	for len(pq.codes) <= row {
		pq.codes = append(pq.codes, nil)
	}
	pq.codes[row] = code
	pq.codeMu.Unlock()
	return row, nil
}

// AddBatch quantizes and stores count packed vectors.
func (pq *PQ) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	pq.mu.RLock()
	trained := pq.trained
	pq.mu.RUnlock()
	if !trained {
		return 0, ErrNotTrained
	}

	start, err := pq.store.AddBatch(ids, vecs, count)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		row := start + i
		vec := vecs[i*pq.cfg.Dim : (i+1)*pq.cfg.Dim]
		pq.mu.RLock()
		idxs := pq.encodeLocked(vec)
		pq.mu.RUnlock()
		code := packCode(idxs, pq.cfg.NBits)

		pq.codeMu.Lock()
		for len(pq.codes) <= row {
			pq.codes = append(pq.codes, nil)
		}
		pq.codes[row] = code
		pq.codeMu.Unlock()
	}
	return start, nil
}

// Encode returns the raw per-subspace centroid indices for vec, without
// storing it. Exposed for testing the trivial-PQ exactness property.
func (pq *PQ) Encode(vec []float32) ([]int, error) {
	if len(vec) != pq.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if !pq.trained {
		return nil, ErrNotTrained
	}
	return pq.encodeLocked(vec), nil
}

// Decode reconstructs an approximate vector from per-subspace centroid
// indices by concatenating the selected centroids.
func (pq *PQ) Decode(idxs []int) ([]float32, error) {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if !pq.trained {
		return nil, ErrNotTrained
	}
	out := make([]float32, pq.cfg.Dim)
	for m, c := range idxs {
		copy(out[m*pq.subDim:(m+1)*pq.subDim], pq.codebooks[m][c])
	}
	return out, nil
}

// distanceTable computes ADT[s][c] = squared distance between q's s-th
// subvector and codebook[s][c], for all subspaces s and centroids c.
func (pq *PQ) distanceTable(q []float32) [][]float32 {
	table := make([][]float32, pq.cfg.NumSubspaces)
	for m := 0; m < pq.cfg.NumSubspaces; m++ {
		start := m * pq.subDim
		sub := q[start : start+pq.subDim]
		table[m] = make([]float32, pq.k)
		for c := 0; c < pq.k; c++ {
			table[m][c] = vectorstore.SqL2(sub, pq.codebooks[m][c])
		}
	}
	return table
}

// Search builds an asymmetric distance table for q and scores every stored
// code against it, returning the k smallest-distance ids.
func (pq *PQ) Search(q []float32, k int) ([]Neighbor, error) {
	if len(q) != pq.cfg.Dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, fmt.Errorf("pq: %w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	pq.mu.RLock()
	if !pq.trained {
		pq.mu.RUnlock()
		return nil, ErrNotTrained
	}
	table := pq.distanceTable(q)
	pq.mu.RUnlock()

	pq.codeMu.Lock()
	codes := append([][]byte(nil), pq.codes...)
	pq.codeMu.Unlock()

	results := vectorstore.NewBoundedMaxHeap(k)
	for row, code := range codes {
		if code == nil {
			continue
		}
		idxs := unpackCode(code, pq.cfg.NumSubspaces, pq.cfg.NBits)
		var dist float32
		for m, c := range idxs {
			dist += table[m][c]
		}
		results.Offer(vectorstore.Candidate{Row: row, Dist: dist})
	}

	sorted := results.Sorted()
	out := make([]Neighbor, len(sorted))
	for i, cand := range sorted {
		id, _, _, _ := pq.store.Get(cand.Row)
		out[i] = Neighbor{ID: id, Distance: cand.Dist}
	}
	return out, nil
}

// Size returns the number of stored rows.
func (pq *PQ) Size() int { return pq.store.Size() }

// Close is a no-op; PQ holds no external resources.
func (pq *PQ) Close() error { return nil }

var (
	_ Index        = (*PQ)(nil)
	_ Trainable    = (*PQ)(nil)
	_ LoggerSetter = (*PQ)(nil)
)
