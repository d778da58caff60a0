// Package index implements the five ANN index families (HNSW, IVF, PQ,
// LSH, Annoy) over a shared pkg/vectorstore.Store, behind one uniform
// contract.
package index

import "errors"

// Sentinel errors shared by the family implementations in this package.
// Exported so callers (and the root annvec package's own sentinels) can
// match them with errors.Is.
var (
	ErrNotTrained          = errors.New("index: not trained")
	ErrNotBuilt            = errors.New("index: not built")
	ErrInsufficientSamples = errors.New("index: insufficient training samples")
	ErrNotFound            = errors.New("index: id not found")
	ErrInvalidArgument     = errors.New("index: invalid argument")
)

// Neighbor is one search result: an external id and its distance to the
// query. For every family but PQ the distance is squared L2; for PQ it is
// the nonnegative asymmetric PQ-distance approximation of squared L2.
type Neighbor struct {
	ID       int32
	Distance float32
}

// Index is the uniform contract every family implements. Optional
// capabilities (Train, Build, Remove) are advertised via the capability
// interfaces below rather than folded into this one, since not every
// family supports them.
type Index interface {
	// Add stores vec under id and returns the assigned row index.
	Add(id int32, vec []float32) (int, error)
	// AddBatch stores count packed vectors and returns the first assigned
	// row index.
	AddBatch(ids []int32, vecs []float32, count int) (int, error)
	// Search returns at most k neighbors of q, sorted by ascending
	// distance, with no duplicate rows.
	Search(q []float32, k int) ([]Neighbor, error)
	// Size returns the number of rows currently stored. Tombstoned rows
	// still count; they are logically, not physically, removed.
	Size() int
	// Close releases any resources held by the index (pooled buffers,
	// etc). An index must not be used after Close.
	Close() error
}

// Trainable is implemented by families that require a training pass
// (IVF, PQ) before Add/Search are usable.
type Trainable interface {
	Train(samples [][]float32) error
}

// Builder is implemented by families that freeze a derived structure
// after all adds are done (Annoy's forest).
type Builder interface {
	Build() error
}

// Remover is implemented by families that support logical deletion via
// tombstone (HNSW, LSH). There is no graph or posting-list repair.
type Remover interface {
	Remove(id int32) error
}

// LoggerSetter is implemented by families that report milestones (entry
// point promotions, training completion, forest builds) through an
// attached log function.
type LoggerSetter interface {
	SetLogger(logf func(msg string, keyvals ...any))
}
