// Package annvec provides an in-memory approximate-nearest-neighbor vector
// index engine.
package annvec

import (
	"errors"
	"fmt"

	"github.com/elex-fu/annvec/pkg/index"
	"github.com/elex-fu/annvec/pkg/vectorstore"
)

// Sentinel errors surfaced at the API boundary. Callers should compare
// against these with errors.Is, not string-match Error(). Aliased to the
// pkg/vectorstore and pkg/index sentinels (rather than redeclared) so
// errors.Is matches regardless of whether a caller compares against the
// root package's name or the package that actually produced the error.
var (
	// ErrDimensionMismatch is returned when an input vector's length != D.
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch

	// ErrFull is returned when a VectorStore has no free row left.
	ErrFull = vectorstore.ErrFull

	// ErrInvalidArgument is returned for out-of-range or nonsensical
	// parameters (k <= 0, negative pool sizes, M' not dividing D, ...).
	ErrInvalidArgument = index.ErrInvalidArgument

	// ErrNotTrained is returned when IVF or PQ add/search is called
	// before Train.
	ErrNotTrained = index.ErrNotTrained

	// ErrNotBuilt is returned when an Annoy forest is searched before
	// Build.
	ErrNotBuilt = index.ErrNotBuilt

	// ErrInsufficientSamples is returned when fewer training vectors are
	// supplied than the index requires.
	ErrInsufficientSamples = index.ErrInsufficientSamples

	// ErrNotFound is returned when an id or row does not resolve.
	ErrNotFound = index.ErrNotFound

	// ErrUnsupported is returned when a capability (Train, Build, Remove)
	// is invoked on a family that doesn't implement it.
	ErrUnsupported = errors.New("annvec: capability not supported by this index family")
)

// IndexError wraps a sentinel error with the operation that produced it.
type IndexError struct {
	Op  string // operation name, e.g. "add", "search", "train"
	Err error  // underlying sentinel error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("annvec: %v", e.Err)
	}
	return fmt.Sprintf("annvec: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// Is reports whether e's underlying error matches target.
func (e *IndexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapErr wraps err with operation context. Returns nil if err is nil.
func WrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}
