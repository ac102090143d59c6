package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

const lawText = "Luật Đất đai 2024\nĐiều 1 quy định về chế độ sở hữu đất đai"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testIngester() *Ingester {
	return NewIngester(config.IngestConfig{ChunkSize: 5, ChunkOverlap: 1, Extensions: []string{".txt"}})
}

func TestIngester_Ingest(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"luat/dat_dai.txt":   lawText,
		"empty.txt":          " \n\t ",
		"notes.xyz":          "ignored",
		".hidden.txt":        "ignored",
		".git/objects/x.txt": "ignored",
	})
	src := Source{Category: "Phap_luat_Viet_Nam", ValidFrom: 2024}

	res, err := testIngester().Ingest(context.Background(), dir, src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Files != 1 {
		t.Errorf("Files = %d, want 1", res.Files)
	}
	if reason, ok := res.Failed["empty.txt"]; !ok || !strings.Contains(reason, ErrNoText.Error()) {
		t.Errorf("Failed = %v", res.Failed)
	}
	// 15 words in windows of 5 with overlap 1
	if len(res.Chunks) != 4 {
		t.Fatalf("got %d chunks", len(res.Chunks))
	}
	first := res.Chunks[0]
	docID := fileid.DocID("Phap_luat_Viet_Nam", "luat/dat_dai.txt")
	want := models.Chunk{
		ID:         fileid.ChunkID(docID, 0),
		Text:       "Luật Đất đai 2024 Điều",
		Category:   "Phap_luat_Viet_Nam",
		Title:      "Luật Đất đai 2024",
		SourceFile: "luat/dat_dai.txt",
		ValidFrom:  2024,
		ExpireAt:   models.DefaultExpireAt,
	}
	if *first != want {
		t.Errorf("first chunk = %+v\nwant %+v", *first, want)
	}
	if last := res.Chunks[3]; last.ID != fileid.ChunkID(docID, 3) || last.Text != "hữu đất đai" {
		t.Errorf("last chunk = %+v", last)
	}

	again, err := testIngester().Ingest(context.Background(), dir, src)
	if err != nil {
		t.Fatal(err)
	}
	for i := range again.Chunks {
		if again.Chunks[i].ID != res.Chunks[i].ID {
			t.Errorf("chunk %d ID changed between runs: %s vs %s", i, again.Chunks[i].ID, res.Chunks[i].ID)
		}
	}
}

func TestIngester_IngestSingleFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"dien_bien_phu.md": "# Chiến dịch Điện Biên Phủ\n\nNăm 1954"})
	res, err := testIngester().Ingest(context.Background(), filepath.Join(dir, "dien_bien_phu.md"), Source{Category: "Lich_su_Viet_Nam"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) == 0 {
		t.Fatal("no chunks")
	}
	c := res.Chunks[0]
	if c.SourceFile != "dien_bien_phu.md" || c.Title != "Chiến dịch Điện Biên Phủ" {
		t.Errorf("chunk = %+v", c)
	}
	if c.ValidFrom != models.DefaultValidFrom || c.ExpireAt != models.DefaultExpireAt {
		t.Errorf("default window not applied: %+v", c)
	}
}

func TestIngester_TitleFallsBackToFilename(t *testing.T) {
	dir := writeTree(t, map[string]string{"bang_gia-2023.txt": "   "})
	in := testIngester()
	if _, err := in.IngestFile(filepath.Join(dir, "bang_gia-2023.txt"), "bang_gia-2023.txt", Source{Category: "c"}); err != ErrNoText {
		t.Errorf("err = %v, want ErrNoText", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bang_gia-2023.txt"), []byte("\n\n"+strings.Repeat("#", 3)+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chunks, err := in.IngestFile(filepath.Join(dir, "bang_gia-2023.txt"), "bang_gia-2023.txt", Source{Category: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if chunks[0].Title != "bang gia 2023" {
		t.Errorf("title = %q", chunks[0].Title)
	}
}

func TestIngester_InvalidSource(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.txt": "x y z"})
	tests := []Source{
		{Category: " "},
		{Category: "c", ValidFrom: 2025, ExpireAt: 2020},
	}
	for _, src := range tests {
		if _, err := testIngester().Ingest(context.Background(), dir, src); err == nil {
			t.Errorf("Ingest with %+v: expected error", src)
		}
	}
	if _, err := testIngester().Ingest(context.Background(), filepath.Join(dir, "missing"), Source{Category: "c"}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestMerge(t *testing.T) {
	docA := fileid.DocID("c", "a.txt")
	docB := fileid.DocID("c", "b.txt")
	existing := []*models.Chunk{
		{ID: "manual-1"},
		{ID: fileid.ChunkID(docA, 0)},
		{ID: fileid.ChunkID(docA, 1)},
		{ID: fileid.ChunkID(docB, 0)},
		{ID: "manual-2"},
	}
	added := []*models.Chunk{
		{ID: fileid.ChunkID(docA, 0)},
		{ID: "manual-2"},
	}
	got := Merge(existing, added)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	want := []string{"manual-1", fileid.ChunkID(docB, 0), fileid.ChunkID(docA, 0), "manual-2"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("Merge = %v, want %v", ids, want)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{"txt"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".pdf", nil, true},
		{".pptx", nil, false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
