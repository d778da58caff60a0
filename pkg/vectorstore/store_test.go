package vectorstore

import (
	"sync"
	"testing"
)

func TestStoreAddGet(t *testing.T) {
	s := New(4, 10)

	row, err := s.Add(42, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if row != 0 {
		t.Fatalf("expected row 0, got %d", row)
	}
	if s.Size() != 1 {
		t.Fatalf("expected size 1, got %d", s.Size())
	}

	id, vec, norm, err := s.Get(row)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if id != 42 {
		t.Errorf("expected id 42, got %d", id)
	}
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
	wantNorm := float32(1 + 4 + 9 + 16)
	if norm != wantNorm {
		t.Errorf("norm = %v, want %v", norm, wantNorm)
	}
}

func TestStoreDimensionMismatch(t *testing.T) {
	s := New(4, 10)
	if _, err := s.Add(1, []float32{1, 2, 3}); err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestStoreFull(t *testing.T) {
	s := New(2, 3)
	for i := 0; i < 3; i++ {
		if _, err := s.Add(int32(i), []float32{1, 2}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}
	if _, err := s.Add(99, []float32{1, 2}); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if s.Size() != 3 {
		t.Fatalf("expected size to remain 3 after failed add, got %d", s.Size())
	}
}

func TestStoreAddBatch(t *testing.T) {
	s := New(2, 10)
	ids := []int32{1, 2, 3}
	vecs := []float32{1, 1, 2, 2, 3, 3}

	start, err := s.AddBatch(ids, vecs, 3)
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if start != 0 {
		t.Fatalf("expected start 0, got %d", start)
	}
	if s.Size() != 3 {
		t.Fatalf("expected size 3, got %d", s.Size())
	}
	for i := 0; i < 3; i++ {
		id, vec, _, err := s.Get(start + i)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", start+i, err)
		}
		if id != ids[i] {
			t.Errorf("row %d id = %d, want %d", i, id, ids[i])
		}
		if vec[0] != vecs[i*2] {
			t.Errorf("row %d vec[0] = %v, want %v", i, vec[0], vecs[i*2])
		}
	}
}

func TestStoreAddBatchRollsBackOnOverflow(t *testing.T) {
	s := New(1, 2)
	ids := []int32{1, 2, 3}
	vecs := []float32{1, 2, 3}

	if _, err := s.AddBatch(ids, vecs, 3); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if s.Size() != 0 {
		t.Fatalf("expected size 0 after rolled-back batch, got %d", s.Size())
	}
	// The store must still be usable after a rolled-back reservation.
	if _, err := s.Add(1, []float32{1}); err != nil {
		t.Fatalf("add after rollback failed: %v", err)
	}
}

func TestStoreClear(t *testing.T) {
	s := New(2, 4)
	s.Add(1, []float32{1, 2})
	s.Add(2, []float32{3, 4})
	s.Clear()
	if s.Size() != 0 {
		t.Fatalf("expected size 0 after Clear, got %d", s.Size())
	}
	if _, err := s.Add(9, []float32{5, 6}); err != nil {
		t.Fatalf("add after clear failed: %v", err)
	}
	if s.Size() != 1 {
		t.Fatalf("expected size 1 after add post-clear, got %d", s.Size())
	}
}

func TestStoreConcurrentAddNoOverlap(t *testing.T) {
	const n = 200
	s := New(1, n)
	var wg sync.WaitGroup
	rows := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, err := s.Add(int32(i), []float32{float32(i)})
			if err != nil {
				t.Errorf("add %d failed: %v", i, err)
				return
			}
			rows[i] = row
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, r := range rows {
		if seen[r] {
			t.Fatalf("row %d assigned twice", r)
		}
		seen[r] = true
	}
	if s.Size() != n {
		t.Fatalf("expected size %d, got %d", n, s.Size())
	}
}

func TestPrefetchRowsBoundedAndSafe(t *testing.T) {
	s := New(3, 20)
	rows := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		r, _ := s.Add(int32(i), []float32{1, 2, 3})
		rows = append(rows, r)
	}
	// Should not panic even with more than 8 rows or out-of-range rows.
	s.PrefetchRows(append(rows, 999, -1))
}
