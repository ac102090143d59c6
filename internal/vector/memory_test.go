package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
}

func TestMemoryIndex_NormalizesVectors(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	// Unnormalized: a long vector pointing slightly off-axis must not beat an exact match.
	if err := idx.Add(ctx, []string{"long", "exact"}, [][]float32{{10, 3}, {0.5, 0}}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, []float32{7, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "exact" {
		t.Errorf("expected exact first, got %s", results[0].ID)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("cosine of identical direction should be 1, got %f", results[0].Score)
	}
}

func TestMemoryIndex_QueryDimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(768)
	_, err := idx.Search(context.Background(), make([]float32, 1024), 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{make([]float32, 3)}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on add, got %v", err)
	}
}

func TestMemoryIndex_SearchWithFilter(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y", "z"}, [][]float32{{1, 0}, {0.7, 0.7}, {0, 1}})

	results, err := idx.SearchWithFilter(ctx, []float32{1, 0}, map[string]struct{}{"y": {}, "z": {}}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "y" || results[1].ID != "z" {
		t.Fatalf("unexpected filtered results: %+v", results)
	}

	results, err = idx.SearchWithFilter(ctx, []float32{1, 0}, map[string]struct{}{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("empty allowed set should yield nothing, got %d", len(results))
	}
}

// Native filtering and the sub-index strategy must rank the same universe identically.
func TestFilterStrategiesAgree(t *testing.T) {
	ctx := context.Background()
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6"}
	rows := [][]float32{
		{0.9, 0.1, 0.0, 0.2},
		{0.1, 0.9, 0.3, 0.0},
		{0.5, 0.5, 0.5, 0.5},
		{0.0, 0.0, 1.0, 0.1},
		{0.7, 0.0, 0.0, 0.7},
		{0.9, 0.1, 0.0, 0.2},
	}
	matrix, err := NewEmbeddingMatrix(ids, rows, 4)
	if err != nil {
		t.Fatal(err)
	}
	full, _ := NewMemoryIndex(4)
	if err := full.Add(ctx, ids, rows); err != nil {
		t.Fatal(err)
	}
	allowed := map[string]struct{}{"c1": {}, "c3": {}, "c5": {}, "c6": {}}
	sub, err := BuildSubIndex(matrix, allowed)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Size() != 4 {
		t.Fatalf("sub-index size = %d, want 4", sub.Size())
	}

	queries := [][]float32{{1, 0, 0, 0}, {0, 0, 1, 0}, {0.3, 0.3, 0.3, 0.9}}
	for _, q := range queries {
		native, err := full.SearchWithFilter(ctx, q, allowed, 10)
		if err != nil {
			t.Fatal(err)
		}
		viaSub, err := sub.Search(ctx, q, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(native) != len(viaSub) {
			t.Fatalf("len native=%d sub=%d", len(native), len(viaSub))
		}
		for i := range native {
			if native[i].ID != viaSub[i].ID {
				t.Errorf("query %v rank %d: native %s, sub %s", q, i, native[i].ID, viaSub[i].ID)
			}
			if math.Abs(native[i].Score-viaSub[i].Score) > 1e-9 {
				t.Errorf("query %v rank %d: score %f vs %f", q, i, native[i].Score, viaSub[i].Score)
			}
		}
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dense", "index.bin")
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{3, 0}, {0, 2}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("Size=%d, want 2", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if len(results) != 1 || results[0].ID != "y" {
		t.Errorf("expected y, got %+v", results)
	}

	wrong, _ := NewMemoryIndex(3)
	if err := wrong.Load(path); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on load, got %v", err)
	}
}

func TestEmbeddingMatrix_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.bin")
	m, err := NewEmbeddingMatrix([]string{"a", "bb"}, [][]float32{{1, 2, 3}, {4, 5, 6}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMatrix(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Dim != 3 || loaded.Len() != 2 || loaded.IDs[1] != "bb" || loaded.Rows[1][2] != 6 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if _, err := NewEmbeddingMatrix([]string{"a"}, [][]float32{{1, 2}}, 3); err == nil {
		t.Error("expected row dimension error")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(L2Norm(v)-1) > 1e-6 {
		t.Errorf("norm = %f", L2Norm(v))
	}
	z := Normalize([]float32{0, 0})
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", z)
	}
}
