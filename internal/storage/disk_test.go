package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiskUsageBytes_CorpusLayout(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "db", "chunks.db")
	chunksJSON := filepath.Join(dir, "chunks.json")
	bm25 := filepath.Join(dir, "indices", "bm25.gob")
	bleveDir := filepath.Join(dir, "indices", "bleve")
	dense := filepath.Join(dir, "indices", "dense.idx")
	matrix := filepath.Join(dir, "indices", "embeddings.bin")

	writeArtifact(t, db, 100)
	writeArtifact(t, db+"-wal", 20)
	writeArtifact(t, db+"-shm", 4)
	writeArtifact(t, chunksJSON, 30)
	writeArtifact(t, bm25, 50)
	writeArtifact(t, filepath.Join(bleveDir, "index_meta.json"), 7)
	writeArtifact(t, filepath.Join(bleveDir, "store", "root.bolt"), 13)
	writeArtifact(t, dense, 40)
	writeArtifact(t, matrix, 16*4*2)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"chunk store with wal sidecars", []string{db}, 124},
		{"bm25 blob", []string{bm25}, 50},
		{"bleve directory is walked", []string{bleveDir}, 20},
		{"embedding matrix", []string{matrix}, 128},
		{"bm25 corpus", []string{db, chunksJSON, bm25, dense, matrix}, 124 + 30 + 50 + 40 + 128},
		{"bleve corpus", []string{db, chunksJSON, bleveDir, dense, matrix}, 124 + 30 + 20 + 40 + 128},
		{"unbuilt artifacts count as zero", []string{filepath.Join(dir, "indices", "missing.gob"), "", bm25}, 50},
		{"repeated path counted once", []string{bm25, filepath.Join(dir, "indices", ".", "bm25.gob")}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDiskUsageBytes_EmptyWorkspace(t *testing.T) {
	dir := t.TempDir()
	got, err := DiskUsageBytes(filepath.Join(dir, "db", "chunks.db"), filepath.Join(dir, "indices", "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("got %d bytes before anything was built, want 0", got)
	}
}
