// Package annvec provides an embeddable approximate-nearest-neighbor
// search core for Go applications.
//
// It implements five index families over a shared dense vector store:
// HNSW (a multi-layer navigable-small-world graph, the default choice for
// most workloads), IVF (inverted-file search over a coarse k-means
// quantizer), PQ (product quantization with asymmetric distance tables,
// for memory-constrained corpora), LSH (random-hyperplane hashing), and
// an Annoy-style random-projection forest. Every family implements the
// same index.Index contract, so callers pick a family via Engine and get
// a uniform add/search/size/close surface regardless of which one they
// chose.
//
// # Quick start
//
//	eng, err := annvec.NewEngine(annvec.Config{
//	    Family:      annvec.FamilyHNSW,
//	    Dim:         128,
//	    MaxElements: 100_000,
//	    HNSW:        annvec.HNSWParams{M: 16, EfConstruction: 200, EfSearch: 64},
//	})
//	row, err := eng.Add(1, vec)
//	neighbors, err := eng.Search(query, 10)
//
// # Training and building
//
// IVF and PQ require Train(samples) before Add or Search; Annoy requires
// Build() before the first Search and after any Add that follows a prior
// Build. Engine exposes these through the index.Trainable and
// index.Builder capability interfaces rather than folding them into the
// base contract, since not every family supports them.
//
// # Concurrency
//
// The core runs synchronously on caller threads; there is no internal
// thread pool and no cancellation. See each index type's doc comment in
// pkg/index for its specific thread-safety contract.
package annvec
