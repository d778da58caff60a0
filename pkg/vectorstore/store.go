package vectorstore

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Row is a single stored vector together with its caller-assigned id and
// precomputed squared L2 norm.
type Row struct {
	ID   int32
	Vec  []float32
	Norm float32 // squared L2 norm, not the norm itself
}

// ErrFull is returned by Add/AddBatch when the store has no free row left.
var ErrFull = fmt.Errorf("vectorstore: full")

// ErrDimensionMismatch is returned when a vector's length != D.
var ErrDimensionMismatch = fmt.Errorf("vectorstore: dimension mismatch")

// Store is the append-only dense vector buffer shared by every index
// family. Capacity N is fixed at construction; row indices are assigned
// contiguously starting at 0 and are never recycled during the store's
// lifetime (until Clear). Add/AddBatch are safe to call concurrently with
// each other via an atomic fetch-and-add on the size counter; Get and
// PrefetchRows are safe concurrently with each other and with writers for
// rows that have already been assigned (a row, once written, is immutable
// until Clear).
type Store struct {
	dim int
	cap int

	// size is the atomic row-reservation counter. It is padded to its own
	// cache line so high-rate concurrent Add calls on multiple cores don't
	// contend with the read-mostly vecs/ids/norms backing arrays below.
	_    cpu.CacheLinePad
	size atomic.Int64
	_    cpu.CacheLinePad

	vecs  [][]float32 // row -> vector (each len == dim)
	ids   []int32     // row -> external id
	norms []float32   // row -> squared L2 norm
}

// New creates a Store with capacity n for vectors of dimension dim.
func New(dim, n int) *Store {
	return &Store{
		dim:   dim,
		cap:   n,
		vecs:  make([][]float32, n),
		ids:   make([]int32, n),
		norms: make([]float32, n),
	}
}

// Dim returns the configured vector dimension.
func (s *Store) Dim() int { return s.dim }

// Cap returns the fixed capacity N.
func (s *Store) Cap() int { return s.cap }

// Size returns the number of successfully assigned rows.
func (s *Store) Size() int { return int(s.size.Load()) }

// reserve atomically reserves count consecutive rows, returning the first
// reserved row index. If the reservation would exceed capacity, it is
// rolled back (the counter is restored) and ErrFull is returned.
func (s *Store) reserve(count int) (int, error) {
	next := s.size.Add(int64(count))
	start := int(next) - count
	if next > int64(s.cap) {
		s.size.Add(int64(-count))
		return 0, ErrFull
	}
	return start, nil
}

// Add reserves the next row, writes vec/id, and caches its squared norm.
// vec must have exactly Dim() elements.
func (s *Store) Add(id int32, vec []float32) (int, error) {
	if len(vec) != s.dim {
		return 0, ErrDimensionMismatch
	}
	row, err := s.reserve(1)
	if err != nil {
		return 0, err
	}
	stored := make([]float32, s.dim)
	copy(stored, vec)
	s.vecs[row] = stored
	s.ids[row] = id
	s.norms[row] = SqNorm(stored)
	return row, nil
}

// AddBatch reserves count consecutive rows and writes count packed,
// row-major vectors (vecs has count*Dim() elements) with their
// corresponding ids (len(ids) == count). It returns the first row of the
// batch. Rows within the batch are written in order relative to each
// other but may interleave with rows reserved by concurrent AddBatch/Add
// calls outside the batch's own contiguous range.
func (s *Store) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("vectorstore: count must be positive")
	}
	if len(ids) != count {
		return 0, fmt.Errorf("vectorstore: ids length %d != count %d", len(ids), count)
	}
	if len(vecs) != count*s.dim {
		return 0, fmt.Errorf("vectorstore: vecs length %d != count*dim %d", len(vecs), count*s.dim)
	}

	start, err := s.reserve(count)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		row := start + i
		v := make([]float32, s.dim)
		copy(v, vecs[i*s.dim:(i+1)*s.dim])
		s.vecs[row] = v
		s.ids[row] = ids[i]
		s.norms[row] = SqNorm(v)
	}
	return start, nil
}

// Get returns the id, vector, and squared norm stored at row. The returned
// vector slice is shared with the store and must not be mutated by the
// caller.
func (s *Store) Get(row int) (id int32, vec []float32, norm float32, err error) {
	if row < 0 || row >= s.Size() {
		return 0, nil, 0, fmt.Errorf("vectorstore: row %d out of range (size %d)", row, s.Size())
	}
	return s.ids[row], s.vecs[row], s.norms[row], nil
}

// PrefetchRows issues a portable software prefetch for up to the first 8
// rows named: it touches the first cache-line word of each row's backing
// array so the memory is resident before the caller evaluates distances
// against it. Go has no portable hardware-prefetch intrinsic; touching the
// data is the idiomatic software-prefetch substitute.
func (s *Store) PrefetchRows(rows []int) {
	const maxPrefetch = 8
	n := len(rows)
	if n > maxPrefetch {
		n = maxPrefetch
	}
	size := s.Size()
	for i := 0; i < n; i++ {
		r := rows[i]
		if r < 0 || r >= size {
			continue
		}
		v := s.vecs[r]
		if len(v) > 0 {
			_ = v[0]
		}
	}
}

// Clear resets size to 0 and zeroes the backing buffers. Not required to
// be concurrent-safe with Add/Get/PrefetchRows.
func (s *Store) Clear() {
	s.size.Store(0)
	for i := range s.vecs {
		s.vecs[i] = nil
		s.ids[i] = 0
		s.norms[i] = 0
	}
}

// PackIDs packs a slice of int32 ids into a contiguous buffer, matching
// the batch-buffer convention described for AddBatch callers that build
// their packed arrays from a slice of Row values.
func PackIDs(rows []Row) []int32 {
	ids := make([]int32, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// PackVectors packs a slice of Row vectors into one row-major contiguous
// buffer of dim*len(rows) float32s.
func PackVectors(rows []Row, dim int) []float32 {
	out := make([]float32, len(rows)*dim)
	for i, r := range rows {
		copy(out[i*dim:(i+1)*dim], r.Vec)
	}
	return out
}
