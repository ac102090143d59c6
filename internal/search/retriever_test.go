package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const testDims = 64

func retrieverChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "c1", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2013", ValidFrom: 2013, ExpireAt: 2023,
			Text: "Luật đất đai quy định quyền sử dụng đất của người dân"},
		{ID: "c2", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2024", ValidFrom: 2024, ExpireAt: 9999,
			Text: "Luật đất đai sửa đổi quy định quyền sử dụng đất và bồi thường"},
		{ID: "c3", Category: "Lich_Su_Viet_nam", Title: "Điện Biên Phủ",
			Text: "Chiến thắng Điện Biên Phủ năm 1954 kết thúc kháng chiến chống Pháp"},
		{ID: "c4", Category: "Dia_ly_viet_nam", Title: "Sông Mê Kông",
			Text: "Sông Mê Kông chảy qua đồng bằng sông Cửu Long"},
	}
}

type fixture struct {
	store    *storage.MemoryStore
	sparse   *keyword.BM25Index
	dense    *vector.MemoryIndex
	embedder embedding.Embedder
	mapper   *domain.Mapper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	chunks := retrieverChunks()

	store, err := storage.NewMemoryStore(chunks)
	if err != nil {
		t.Fatal(err)
	}
	sparse, err := keyword.BuildBM25(chunks, keyword.DefaultBM25Params(), nil)
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(testDims)
	dense, err := vector.NewMemoryIndex(testDims)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		v, err := emb.Embed(ctx, c.Text)
		if err != nil {
			t.Fatal(err)
		}
		if err := dense.Add(ctx, []string{c.ID}, [][]float32{v}); err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{store: store, sparse: sparse, dense: dense, embedder: emb, mapper: domain.NewMapper()}
}

func (f *fixture) retriever(cfg RetrieverConfig, opts ...RetrieverOption) *Retriever {
	opts = append([]RetrieverOption{WithLogger(zap.NewNop())}, opts...)
	return NewRetriever(f.store, f.sparse, f.dense, f.embedder, f.mapper, cfg, opts...)
}

func ids(results []*models.RetrievalResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func assertSorted(t *testing.T, results []*models.RetrievalResult) {
	t.Helper()
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by descending score: %v", ids(results))
		}
	}
}

func TestRetriever_TemporalFilterKeepsOnlyValidChunk(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(RetrieverConfig{})
	year := 2024

	results := r.Retrieve(context.Background(), RetrieveRequest{
		Query:  "luật đất đai quy định quyền sử dụng đất",
		Domain: models.DomainLaw,
		Year:   &year,
	})
	if got := ids(results); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("expected only c2 for 2024, got %v", got)
	}

	year = 2015
	results = r.Retrieve(context.Background(), RetrieveRequest{
		Query:  "luật đất đai quy định quyền sử dụng đất",
		Domain: models.DomainLaw,
		Year:   &year,
	})
	if got := ids(results); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("expected only c1 for 2015, got %v", got)
	}
}

func TestRetriever_TemporalFilterAppliesInEveryDomain(t *testing.T) {
	f := newFixture(t)
	year := 2024
	for _, d := range []models.Domain{models.DomainGeneralKnowledge, models.DomainGeography, models.DomainCulture} {
		req := RetrieveRequest{Query: "luật đất đai quy định quyền sử dụng đất", Domain: d, Year: &year, TopK: 10}
		resp := f.retriever(RetrieverConfig{}).RetrieveDetailed(context.Background(), req)
		found := map[string]bool{}
		for _, r := range resp.Results {
			found[r.ChunkID] = true
		}
		if found["c1"] {
			t.Fatalf("%s: c1 expired in 2023 and must not be returned for 2024, got %v", d, ids(resp.Results))
		}
		if resp.Year == nil || *resp.Year != 2024 {
			t.Errorf("%s: response should report the applied year, got %v", d, resp.Year)
		}
	}

	results := f.retriever(RetrieverConfig{}).Retrieve(context.Background(), RetrieveRequest{
		Query: "luật đất đai", Domain: models.DomainGeneralKnowledge, Year: &year, TopK: 10,
	})
	if !contains(ids(results), "c2") {
		t.Fatalf("c2 is valid in 2024, got %v", ids(results))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestRetriever_CategoryFilter(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(RetrieverConfig{})
	historyCats, _ := f.mapper.CategoriesFor(models.DomainHistory)

	results := r.Retrieve(context.Background(), RetrieveRequest{Query: "luật đất đai", Domain: models.DomainHistory})
	if len(results) == 0 {
		t.Fatal("expected dense results inside the history categories")
	}
	for _, res := range results {
		if _, ok := historyCats[res.Metadata["category"].(string)]; !ok {
			t.Errorf("result %s outside history categories", res.ChunkID)
		}
	}
}

func TestRetriever_UnfilteredAndSources(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(RetrieverConfig{})

	results := r.Retrieve(context.Background(), RetrieveRequest{Query: "Điện Biên Phủ", Domain: models.DomainGeneralKnowledge})
	if len(results) == 0 || results[0].ChunkID != "c3" {
		t.Fatalf("expected c3 first, got %v", ids(results))
	}
	if results[0].Source != models.SourceHybrid {
		t.Errorf("c3 should come from both lists, got %s", results[0].Source)
	}
	if results[0].Title() != "Điện Biên Phủ" {
		t.Errorf("title metadata missing: %v", results[0].Metadata)
	}
	assertSorted(t, results)
}

func TestRetriever_TopK(t *testing.T) {
	f := newFixture(t)
	results := f.retriever(RetrieverConfig{}).Retrieve(context.Background(), RetrieveRequest{
		Query: "sông", Domain: models.DomainGeneralKnowledge, TopK: 2,
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRetriever_MissingCategoriesSearchEverything(t *testing.T) {
	f := newFixture(t)
	resp := f.retriever(RetrieverConfig{}).RetrieveDetailed(context.Background(), RetrieveRequest{
		Query: "Điện Biên Phủ", Domain: models.DomainCulture,
	})
	if len(resp.Results) == 0 || resp.Results[0].ChunkID != "c3" {
		t.Fatalf("expected unfiltered fallback to find c3, got %v", ids(resp.Results))
	}
	if len(resp.Categories) != 0 {
		t.Errorf("categories should be cleared when they match nothing, got %v", resp.Categories)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}
func (failingEmbedder) Dimensions() int { return testDims }
func (failingEmbedder) Close() error    { return nil }

func TestRetriever_EmbeddingFailureReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.embedder = failingEmbedder{}
	results := f.retriever(RetrieverConfig{}).Retrieve(context.Background(), RetrieveRequest{
		Query: "Điện Biên Phủ", Domain: models.DomainGeneralKnowledge,
	})
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil results, got %v", results)
	}
}

func TestRetriever_DenseDimensionMismatchDegradesToSparse(t *testing.T) {
	f := newFixture(t)
	f.embedder = embedding.NewMockEmbedder(testDims * 2)
	results := f.retriever(RetrieverConfig{}).Retrieve(context.Background(), RetrieveRequest{
		Query: "Điện Biên Phủ", Domain: models.DomainGeneralKnowledge,
	})
	if len(results) != 1 || results[0].ChunkID != "c3" || results[0].Source != models.SourceSparse {
		t.Fatalf("expected sparse-only c3, got %v", ids(results))
	}
}

func TestRetriever_SubIndexStrategyMatchesNative(t *testing.T) {
	f := newFixture(t)
	native := f.retriever(RetrieverConfig{DenseFilter: DenseFilterNative})
	sub := f.retriever(RetrieverConfig{DenseFilter: DenseFilterSubIndex}, WithMatrix(f.dense.Matrix()))

	for _, req := range []RetrieveRequest{
		{Query: "luật đất đai bồi thường", Domain: models.DomainLaw},
		{Query: "sông Cửu Long", Domain: models.DomainGeography},
		{Query: "kháng chiến", Domain: models.DomainHistory, KeyEntities: []string{"Điện Biên Phủ"}},
	} {
		a := ids(native.Retrieve(context.Background(), req))
		b := ids(sub.Retrieve(context.Background(), req))
		if strings.Join(a, ",") != strings.Join(b, ",") {
			t.Errorf("%q: native %v vs subindex %v", req.Query, a, b)
		}
	}
}

type brokenNative struct{ calls int }

func (b *brokenNative) SearchLists(context.Context, NativeRequest) ([]Ranked, []Ranked, error) {
	b.calls++
	return nil, nil, errors.New("native engine unavailable")
}

func TestRetriever_NativeFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	broken := &brokenNative{}
	req := RetrieveRequest{Query: "Điện Biên Phủ", Domain: models.DomainGeneralKnowledge}

	want := ids(f.retriever(RetrieverConfig{}).Retrieve(context.Background(), req))
	got := ids(f.retriever(RetrieverConfig{NativeHybrid: true}, WithNativeSearcher(broken)).Retrieve(context.Background(), req))
	if broken.calls != 1 {
		t.Errorf("native searcher should be tried once, got %d", broken.calls)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fallback %v, explicit %v", got, want)
	}
}

func TestRetriever_BleveNativePath(t *testing.T) {
	f := newFixture(t)
	b, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.IndexChunks(context.Background(), retrieverChunks()); err != nil {
		t.Fatal(err)
	}

	r := NewRetriever(f.store, b, f.dense, f.embedder, f.mapper,
		RetrieverConfig{NativeHybrid: true}, WithNativeSearcher(NewBleveNative(b, f.dense)))
	year := 2024
	results := r.Retrieve(context.Background(), RetrieveRequest{
		Query: "luật đất đai", Domain: models.DomainLaw, Year: &year,
	})
	if got := ids(results); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("expected only c2 via native path, got %v", got)
	}
}

func TestRetriever_TemporalBoostReordersExplicitWindows(t *testing.T) {
	chunks := []*models.Chunk{
		{ID: "plain", Category: "Phap_luat_Viet_Nam", Text: "quy định về thuế thu nhập cá nhân"},
		{ID: "dated", Category: "Phap_luat_Viet_Nam", ValidFrom: 2020, ExpireAt: 2030, Text: "quy định về thuế thu nhập"},
		{ID: "geo1", Category: "Dia_ly_viet_nam", Text: "núi rừng Tây Bắc"},
		{ID: "geo2", Category: "Dia_ly_viet_nam", Text: "đồng bằng sông Hồng"},
		{ID: "geo3", Category: "Dia_ly_viet_nam", Text: "bờ biển miền Trung"},
	}
	store, _ := storage.NewMemoryStore(chunks)
	sparse, _ := keyword.BuildBM25(chunks, keyword.DefaultBM25Params(), nil)
	emb := embedding.NewMockEmbedder(testDims)
	dense, _ := vector.NewMemoryIndex(testDims)
	for _, c := range chunks {
		v, _ := emb.Embed(context.Background(), c.Text)
		_ = dense.Add(context.Background(), []string{c.ID}, [][]float32{v})
	}
	r := NewRetriever(store, sparse, dense, emb, domain.NewMapper(), RetrieverConfig{})

	query := "thuế thu nhập cá nhân"
	noYear := ids(r.Retrieve(context.Background(), RetrieveRequest{Query: query, Domain: models.DomainLaw}))
	if len(noYear) != 2 || noYear[0] != "plain" {
		t.Fatalf("without a year the closer match leads, got %v", noYear)
	}
	year := 2025
	withYear := ids(r.Retrieve(context.Background(), RetrieveRequest{Query: query, Domain: models.DomainLaw, Year: &year}))
	if len(withYear) != 2 || withYear[0] != "dated" {
		t.Fatalf("boost should lift the dated chunk, got %v", withYear)
	}
}

func TestFormatContext(t *testing.T) {
	results := []*models.RetrievalResult{
		{ChunkID: "a", Content: "nội dung một", Metadata: map[string]interface{}{"title": "Tiêu đề"}},
		{ChunkID: "b", Content: "nội dung hai"},
	}
	got := FormatContext(results, 100)
	want := "[1] Tiêu đề\nnội dung một\n\n---\n[2] Unknown\nnội dung hai\n"
	if got != want {
		t.Errorf("FormatContext =\n%q\nwant\n%q", got, want)
	}

	if got := FormatContext(results, 7); !strings.HasPrefix(got, "[1]") || strings.Contains(got, "[2]") {
		t.Errorf("budget of 28 chars should keep only the first block, got %q", got)
	}
	if FormatContext(nil, 10) != "" {
		t.Error("no results should format to empty context")
	}
}
