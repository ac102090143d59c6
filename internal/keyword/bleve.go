package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kotae/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Filter narrows a bleve search by chunk category and validity year.
type Filter struct {
	// Categories restricts hits to chunks in any of these categories. Empty means no restriction.
	Categories []string
	// Year keeps only chunks whose validity window contains it. Nil means no restriction.
	Year *int
}

// bleveChunk is the indexed form of a chunk. Numeric fields are float64 for bleve's numeric mapping.
type bleveChunk struct {
	Content   string  `json:"content"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	ValidFrom float64 `json:"valid_from"`
	ExpireAt  float64 `json:"expire_at"`
}

// BleveIndex implements SparseIndex using Bleve's BM25-family scoring.
type BleveIndex struct {
	index bleve.Index
}

func newChunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lower-cases and splits on Unicode word boundaries without stemming,
	// which keeps Vietnamese syllables intact.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)

	categoryMapping := bleve.NewKeywordFieldMapping()
	categoryMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("category", categoryMapping)

	yearMapping := bleve.NewNumericFieldMapping()
	yearMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("valid_from", yearMapping)
	docMapping.AddFieldMappingsAt("expire_at", yearMapping)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the mapping, remove the index directory and rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newChunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an in-memory Bleve index (tests and ephemeral corpora).
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newChunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks adds chunks in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to := c.Window()
		doc := bleveChunk{
			Content:   norm.NFC.String(c.Text),
			Title:     c.Title,
			Category:  c.Category,
			ValidFrom: float64(from),
			ExpireAt:  float64(to),
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch failed: %w", err)
	}
	return nil
}

// Search implements SparseIndex. restrictTo is applied as a DocIDQuery conjunction.
func (b *BleveIndex) Search(ctx context.Context, query string, topK int, restrictTo IDSet) ([]*SparseResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if restrictTo != nil && len(restrictTo) == 0 {
		return nil, nil
	}
	var q blevequery.Query = bleve.NewMatchQuery(norm.NFC.String(query))
	if restrictTo != nil {
		ids := make([]string, 0, len(restrictTo))
		for id := range restrictTo {
			ids = append(ids, id)
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDocIDQuery(ids))
	}
	return b.run(ctx, q, topK)
}

// SearchFiltered pushes category and year filters into the Bleve query.
func (b *BleveIndex) SearchFiltered(ctx context.Context, query string, topK int, filter Filter) ([]*SparseResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	clauses := []blevequery.Query{bleve.NewMatchQuery(norm.NFC.String(query))}
	if len(filter.Categories) > 0 {
		cats := make([]blevequery.Query, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			tq := bleve.NewTermQuery(c)
			tq.SetField("category")
			cats = append(cats, tq)
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(cats...))
	}
	if filter.Year != nil {
		year := float64(*filter.Year)
		inclusive := true
		from := bleve.NewNumericRangeInclusiveQuery(nil, &year, nil, &inclusive)
		from.SetField("valid_from")
		to := bleve.NewNumericRangeInclusiveQuery(&year, nil, &inclusive, nil)
		to.SetField("expire_at")
		clauses = append(clauses, from, to)
	}
	var q blevequery.Query = clauses[0]
	if len(clauses) > 1 {
		q = bleve.NewConjunctionQuery(clauses...)
	}
	return b.run(ctx, q, topK)
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, topK int) ([]*SparseResult, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = topK
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*SparseResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &SparseResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Size returns the number of indexed chunks.
func (b *BleveIndex) Size() int {
	n, err := b.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
