package keyword

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// BM25Params are the Okapi BM25 constants. They are persisted with the index so the
// same values are used at build and query time.
type BM25Params struct {
	K1      float64
	B       float64
	Epsilon float64 // negative IDF values are floored at Epsilon * average IDF
}

// DefaultBM25Params returns k1=1.5, b=0.75, epsilon=0.25.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

type posting struct {
	Doc int
	TF  int
}

// BM25Index is an in-memory Okapi BM25 index. It is immutable after BuildBM25 or
// LoadBM25 and safe for concurrent reads.
type BM25Index struct {
	params    BM25Params
	ids       []string
	docLens   []int
	avgLen    float64
	idf       map[string]float64
	postings  map[string][]posting
	compounds []string
	tokenizer *Tokenizer
}

// BuildBM25 indexes chunks in order. Chunk order is part of the index identity.
func BuildBM25(chunks []*models.Chunk, params BM25Params, segmenter *DictionarySegmenter) (*BM25Index, error) {
	if params.K1 <= 0 {
		params = DefaultBM25Params()
	}
	idx := &BM25Index{
		params:   params,
		ids:      make([]string, 0, len(chunks)),
		docLens:  make([]int, 0, len(chunks)),
		postings: make(map[string][]posting),
	}
	if segmenter != nil {
		idx.compounds = segmenter.Compounds()
		sort.Strings(idx.compounds)
	}
	idx.tokenizer = idx.newTokenizer()

	seen := make(map[string]struct{}, len(chunks))
	totalLen := 0
	for i, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		terms := idx.tokenizer.Tokenize(c.Title + " " + c.Text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term, n := range tf {
			idx.postings[term] = append(idx.postings[term], posting{Doc: i, TF: n})
		}
		idx.ids = append(idx.ids, c.ID)
		idx.docLens = append(idx.docLens, len(terms))
		totalLen += len(terms)
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(chunks))
	}
	idx.idf = computeIDF(idx.postings, len(chunks), params.Epsilon)
	return idx, nil
}

// computeIDF uses log((N-df+0.5)/(df+0.5)); terms present in more than half of the
// corpus get Epsilon * average IDF instead of a non-positive weight.
func computeIDF(postings map[string][]posting, n int, epsilon float64) map[string]float64 {
	idf := make(map[string]float64, len(postings))
	var sum float64
	var negative []string
	for term, list := range postings {
		df := float64(len(list))
		v := math.Log((float64(n) - df + 0.5) / (df + 0.5))
		idf[term] = v
		sum += v
		if v <= 0 {
			negative = append(negative, term)
		}
	}
	if len(idf) == 0 {
		return idf
	}
	floor := epsilon * sum / float64(len(idf))
	if floor <= 0 {
		// tiny corpora can have a non-positive average; keep matches above non-matches
		floor = epsilon
	}
	for _, term := range negative {
		idf[term] = floor
	}
	return idf
}

func (b *BM25Index) newTokenizer() *Tokenizer {
	if len(b.compounds) == 0 {
		return NewTokenizer(nil)
	}
	return NewTokenizer(NewDictionarySegmenter(b.compounds))
}

// Params returns the BM25 constants the index was built with.
func (b *BM25Index) Params() BM25Params {
	return b.params
}

// Search implements SparseIndex.
func (b *BM25Index) Search(ctx context.Context, query string, topK int, restrictTo IDSet) ([]*SparseResult, error) {
	if topK <= 0 || len(b.ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make(map[int]float64)
	for _, term := range b.tokenizer.Tokenize(query) {
		idf, ok := b.idf[term]
		if !ok {
			continue
		}
		for _, p := range b.postings[term] {
			if !restrictTo.Contains(b.ids[p.Doc]) {
				continue
			}
			scores[p.Doc] += idf * b.termWeight(p.TF, b.docLens[p.Doc])
		}
	}
	docs := make([]int, 0, len(scores))
	for d := range scores {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] < docs[j]
	})
	if len(docs) > topK {
		docs = docs[:topK]
	}
	out := make([]*SparseResult, len(docs))
	for i, d := range docs {
		out[i] = &SparseResult{ID: b.ids[d], Score: scores[d]}
	}
	return out, nil
}

func (b *BM25Index) termWeight(tf, docLen int) float64 {
	k1, bb := b.params.K1, b.params.B
	norm := 1 - bb
	if b.avgLen > 0 {
		norm += bb * float64(docLen) / b.avgLen
	}
	f := float64(tf)
	return f * (k1 + 1) / (f + k1*norm)
}

// Size returns the number of indexed chunks.
func (b *BM25Index) Size() int {
	return len(b.ids)
}

// Close is a no-op for BM25Index.
func (b *BM25Index) Close() error {
	return nil
}

// CheckAlignment verifies that the index was built from exactly these chunk IDs in this order.
func (b *BM25Index) CheckAlignment(ids []string) error {
	if len(ids) != len(b.ids) {
		return fmt.Errorf("%w: index has %d chunks, chunk list has %d", ErrIndexMismatch, len(b.ids), len(ids))
	}
	for i := range ids {
		if ids[i] != b.ids[i] {
			return fmt.Errorf("%w: position %d is %q in index, %q in chunk list", ErrIndexMismatch, i, b.ids[i], ids[i])
		}
	}
	return nil
}

// bm25Snapshot is the gob-encoded on-disk form.
type bm25Snapshot struct {
	Version   int
	Params    BM25Params
	IDs       []string
	DocLens   []int
	AvgLen    float64
	IDF       map[string]float64
	Postings  map[string][]posting
	Compounds []string
}

const bm25SnapshotVersion = 1

// Save writes the index to path. The parent directory is created if needed.
func (b *BM25Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	snap := bm25Snapshot{
		Version:   bm25SnapshotVersion,
		Params:    b.params,
		IDs:       b.ids,
		DocLens:   b.docLens,
		AvgLen:    b.avgLen,
		IDF:       b.idf,
		Postings:  b.postings,
		Compounds: b.compounds,
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		return fmt.Errorf("encode bm25 index: %w", err)
	}
	return nil
}

// LoadBM25 reads an index written by Save.
func LoadBM25(path string) (*BM25Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}
	defer f.Close()
	var snap bm25Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode bm25 index: %w", err)
	}
	if snap.Version != bm25SnapshotVersion {
		return nil, fmt.Errorf("unsupported bm25 index version %d", snap.Version)
	}
	if len(snap.IDs) != len(snap.DocLens) {
		return nil, fmt.Errorf("corrupt bm25 index: %d ids, %d lengths", len(snap.IDs), len(snap.DocLens))
	}
	idx := &BM25Index{
		params:    snap.Params,
		ids:       snap.IDs,
		docLens:   snap.DocLens,
		avgLen:    snap.AvgLen,
		idf:       snap.IDF,
		postings:  snap.Postings,
		compounds: snap.Compounds,
	}
	if idx.idf == nil {
		idx.idf = make(map[string]float64)
	}
	if idx.postings == nil {
		idx.postings = make(map[string][]posting)
	}
	idx.tokenizer = idx.newTokenizer()
	return idx, nil
}
