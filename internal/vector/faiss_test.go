//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, []float32{2, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "a" {
		t.Fatalf("expected a first, got %+v", results)
	}
}

func TestFAISSIndex_FilterMatchesMemory(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d"}
	vecs := [][]float32{{1, 0, 0}, {0.8, 0.6, 0}, {0, 1, 0}, {0.6, 0, 0.8}}
	allowed := map[string]struct{}{"b": {}, "c": {}, "d": {}}

	fi, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer fi.Close()
	mi, _ := NewMemoryIndex(3)
	_ = fi.Add(ctx, ids, vecs)
	_ = mi.Add(ctx, ids, vecs)

	got, err := fi.SearchWithFilter(ctx, []float32{1, 0, 0}, allowed, 3)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := mi.SearchWithFilter(ctx, []float32{1, 0, 0}, allowed, 3)
	if len(got) != len(want) {
		t.Fatalf("len %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i].ID != want[i].ID {
			t.Errorf("rank %d: faiss %s, memory %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dense")
	idx, _ := NewFAISSIndex(2)
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	idx.Close()
	if _, err := os.Stat(path + ".ids"); err != nil {
		t.Fatalf("id file not created: %v", err)
	}

	loaded, _ := NewFAISSIndex(2)
	defer loaded.Close()
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
}

func TestFAISSIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFAISSIndex(3)
	defer idx.Close()
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected add dimension error")
	}
	if _, err := idx.Search(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Error("expected query dimension error")
	}
}
