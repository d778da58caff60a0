package index

import "sync"

// visitedSet is a reusable per-query "have I seen this row" marker backed
// by a generation counter instead of a map: mark/seen compare a stamp
// slice against the set's current generation, so starting a new query is
// an O(1) generation bump instead of an O(n) map clear or a fresh
// allocation. Rows never seen in any query compare stamp 0 against
// generation 1, so stamp must never be reused across reset without
// bumping generation first.
type visitedSet struct {
	stamp      []uint32
	generation uint32
}

func newVisitedSet(capHint int) *visitedSet {
	return &visitedSet{stamp: make([]uint32, capHint)}
}

// reset starts a new query: grows the stamp slice to cover rows up to n-1
// if needed, and bumps the generation so every previous mark reads as
// unseen again.
func (v *visitedSet) reset(n int) {
	if len(v.stamp) < n {
		grown := make([]uint32, n)
		copy(grown, v.stamp)
		v.stamp = grown
	}
	v.generation++
	if v.generation == 0 {
		// Wrapped around a uint32 (practically unreachable, but keep the
		// invariant that generation 0 never mixes with a previous query).
		for i := range v.stamp {
			v.stamp[i] = 0
		}
		v.generation = 1
	}
}

// seen reports whether row was marked in the current generation.
func (v *visitedSet) seen(row int) bool {
	return row < len(v.stamp) && v.stamp[row] == v.generation
}

// mark records row as seen in the current generation.
func (v *visitedSet) mark(row int) {
	if row >= len(v.stamp) {
		grown := make([]uint32, row+1)
		copy(grown, v.stamp)
		v.stamp = grown
	}
	v.stamp[row] = v.generation
}

// visitedPool hands out visitedSets sized for a given node count, reusing
// retired sets instead of allocating fresh ones on every search.
type visitedPool struct {
	mu   sync.Mutex
	free []*visitedSet
}

func newVisitedPool() *visitedPool {
	return &visitedPool{}
}

// get returns a visitedSet ready for a new query over n rows.
func (p *visitedPool) get(n int) *visitedSet {
	p.mu.Lock()
	var vs *visitedSet
	if l := len(p.free); l > 0 {
		vs = p.free[l-1]
		p.free = p.free[:l-1]
	}
	p.mu.Unlock()

	if vs == nil {
		vs = newVisitedSet(n)
	}
	vs.reset(n)
	return vs
}

// put returns vs to the pool for reuse by a later query.
func (p *visitedPool) put(vs *visitedSet) {
	p.mu.Lock()
	p.free = append(p.free, vs)
	p.mu.Unlock()
}
