package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func sampleChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "c2", Text: "Hiến pháp 2013", Category: "hien_phap", ValidFrom: 2013, ExpireAt: 2023},
		{ID: "c1", Text: "Hiến pháp sửa đổi", Category: "hien_phap", ValidFrom: 2024},
		{ID: "c3", Text: "Sông Hồng", Category: "Dia_ly_viet_nam", Title: "Địa lý"},
	}
}

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "sub", "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_ReplaceAndList(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.ReplaceChunks(ctx, sampleChunks()); err != nil {
		t.Fatal(err)
	}
	chunks, err := store.ListChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	// Corpus order is insertion order, not ID order.
	if chunks[0].ID != "c2" || chunks[1].ID != "c1" || chunks[2].ID != "c3" {
		t.Errorf("unexpected order: %s %s %s", chunks[0].ID, chunks[1].ID, chunks[2].ID)
	}
	if chunks[1].ExpireAt != models.DefaultExpireAt || chunks[2].ValidFrom != models.DefaultValidFrom {
		t.Errorf("default window not persisted: %+v %+v", chunks[1], chunks[2])
	}

	// Replacing drops the previous corpus.
	if err := store.ReplaceChunks(ctx, sampleChunks()[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountChunks = %d, want 1", n)
	}
}

func TestSQLiteStorage_GetChunk(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.ReplaceChunks(ctx, sampleChunks())

	c, err := store.GetChunk(ctx, "c3")
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "Địa lý" || c.Category != "Dia_ly_viet_nam" {
		t.Errorf("got %+v", c)
	}
	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestSQLiteStorage_CategoryQueries(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.ReplaceChunks(ctx, sampleChunks())

	ids, err := store.ChunkIDsByCategory(ctx, []string{"hien_phap", "nothing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "c2" || ids[1] != "c1" {
		t.Errorf("unexpected ids: %v", ids)
	}
	counts, err := store.CategoryCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["hien_phap"] != 2 || counts["Dia_ly_viet_nam"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestLoadMemoryStore(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.ReplaceChunks(ctx, sampleChunks())

	mem, err := LoadMemoryStore(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if mem.Len() != 3 || mem.IDs()[0] != "c2" {
		t.Errorf("unexpected memory store: %v", mem.IDs())
	}
}
