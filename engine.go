package annvec

import (
	"fmt"

	"github.com/elex-fu/annvec/pkg/index"
)

// Family names one of the five supported index algorithms.
type Family string

const (
	FamilyHNSW  Family = "hnsw"
	FamilyIVF   Family = "ivf"
	FamilyPQ    Family = "pq"
	FamilyLSH   Family = "lsh"
	FamilyAnnoy Family = "annoy"
)

// Config selects one index family and its parameters. Dim, MaxElements,
// and Seed are shared across all families; exactly one of the
// family-specific param structs should be set to match Family (the
// others are ignored).
type Config struct {
	Family      Family
	Dim         int
	MaxElements int
	Seed        int64

	HNSW  HNSWParams
	IVF   IVFParams
	PQ    PQParams
	LSH   LSHParams
	Annoy AnnoyParams
}

// HNSWParams holds HNSW-specific construction parameters (see
// index.HNSWConfig for valid ranges).
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// IVFParams holds IVF-specific construction parameters.
type IVFParams struct {
	NLists  int
	NProbes int
}

// PQParams holds PQ-specific construction parameters.
type PQParams struct {
	NumSubspaces int
	NBits        int
}

// LSHParams holds LSH-specific construction parameters.
type LSHParams struct {
	NumTables int
	NumHashes int
}

// AnnoyParams holds Annoy-specific construction parameters.
type AnnoyParams struct {
	NumTrees int
	LeafSize int
	SearchK  int
}

// Engine is a tagged-variant convenience wrapper: it picks one concrete
// index.Index implementation at construction time based on Config.Family
// and exposes it behind the same uniform surface, with optional
// capabilities (Train, Build, Remove) surfaced through type assertions
// against the chosen family rather than a class hierarchy.
type Engine struct {
	family Family
	idx    index.Index
}

// NewEngine constructs the index family named by cfg.Family.
func NewEngine(cfg Config) (*Engine, error) {
	var (
		idx index.Index
		err error
	)

	switch cfg.Family {
	case FamilyHNSW:
		idx, err = index.NewHNSW(index.HNSWConfig{
			Dim: cfg.Dim, MaxElements: cfg.MaxElements, Seed: cfg.Seed,
			M: cfg.HNSW.M, EfConstruction: cfg.HNSW.EfConstruction, EfSearch: cfg.HNSW.EfSearch,
		})
	case FamilyIVF:
		idx, err = index.NewIVF(index.IVFConfig{
			Dim: cfg.Dim, MaxElements: cfg.MaxElements, Seed: cfg.Seed,
			NLists: cfg.IVF.NLists, NProbes: cfg.IVF.NProbes,
		})
	case FamilyPQ:
		idx, err = index.NewPQ(index.PQConfig{
			Dim: cfg.Dim, MaxElements: cfg.MaxElements, Seed: cfg.Seed,
			NumSubspaces: cfg.PQ.NumSubspaces, NBits: cfg.PQ.NBits,
		})
	case FamilyLSH:
		idx, err = index.NewLSH(index.LSHConfig{
			Dim: cfg.Dim, MaxElements: cfg.MaxElements, Seed: cfg.Seed,
			NumTables: cfg.LSH.NumTables, NumHashes: cfg.LSH.NumHashes,
		})
	case FamilyAnnoy:
		idx, err = index.NewAnnoy(index.AnnoyConfig{
			Dim: cfg.Dim, MaxElements: cfg.MaxElements, Seed: cfg.Seed,
			NumTrees: cfg.Annoy.NumTrees, LeafSize: cfg.Annoy.LeafSize, SearchK: cfg.Annoy.SearchK,
		})
	default:
		return nil, WrapErr("new_engine", fmt.Errorf("%w: unknown family %q", ErrInvalidArgument, cfg.Family))
	}
	if err != nil {
		return nil, WrapErr("new_engine", err)
	}

	return &Engine{family: cfg.Family, idx: idx}, nil
}

// Family reports which index algorithm this Engine wraps.
func (e *Engine) Family() Family { return e.family }

// SetLogger routes the underlying index's milestone reporting (entry-point
// promotions, training completion, forest builds) through l at Info level.
// Families without milestones to report (LSH) ignore it.
func (e *Engine) SetLogger(l Logger) {
	if ls, ok := e.idx.(index.LoggerSetter); ok {
		ls.SetLogger(func(msg string, keyvals ...any) {
			l.Info(msg, keyvals...)
		})
	}
}

// Add stores vec under id in the underlying index.
func (e *Engine) Add(id int32, vec []float32) (int, error) {
	row, err := e.idx.Add(id, vec)
	return row, WrapErr("add", err)
}

// AddBatch stores count packed vectors in the underlying index.
func (e *Engine) AddBatch(ids []int32, vecs []float32, count int) (int, error) {
	row, err := e.idx.AddBatch(ids, vecs, count)
	return row, WrapErr("add_batch", err)
}

// Search returns the underlying index's top-k neighbors of q.
func (e *Engine) Search(q []float32, k int) ([]index.Neighbor, error) {
	neighbors, err := e.idx.Search(q, k)
	return neighbors, WrapErr("search", err)
}

// Size returns the number of rows stored in the underlying index.
func (e *Engine) Size() int { return e.idx.Size() }

// Close releases the underlying index.
func (e *Engine) Close() error { return WrapErr("close", e.idx.Close()) }

// Train runs the underlying index's training pass, if it supports one
// (IVF, PQ). Returns ErrUnsupported for families without a Train step.
func (e *Engine) Train(samples [][]float32) error {
	trainable, ok := e.idx.(index.Trainable)
	if !ok {
		return WrapErr("train", fmt.Errorf("%w: family %q has no Train", ErrUnsupported, e.family))
	}
	return WrapErr("train", trainable.Train(samples))
}

// Build freezes the underlying index's derived structure, if it supports
// one (Annoy). Returns ErrUnsupported for families without a Build step.
func (e *Engine) Build() error {
	builder, ok := e.idx.(index.Builder)
	if !ok {
		return WrapErr("build", fmt.Errorf("%w: family %q has no Build", ErrUnsupported, e.family))
	}
	return WrapErr("build", builder.Build())
}

// Remove logically deletes id via tombstone, if the underlying index
// supports it (HNSW, LSH). Returns ErrUnsupported otherwise.
func (e *Engine) Remove(id int32) error {
	remover, ok := e.idx.(index.Remover)
	if !ok {
		return WrapErr("remove", fmt.Errorf("%w: family %q has no Remove", ErrUnsupported, e.family))
	}
	return WrapErr("remove", remover.Remove(id))
}
