package models

// Source identifies which retrieval list produced a result.
type Source string

const (
	SourceSparse Source = "sparse"
	SourceDense  Source = "dense"
	SourceHybrid Source = "hybrid"
)

// RetrievalResult is a single ranked chunk returned by the retriever.
// Lists of results are always ordered by descending Score.
type RetrievalResult struct {
	ChunkID  string                 `json:"chunk_id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Source   Source                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Title returns the chunk title stored in metadata, if any.
func (r *RetrievalResult) Title() string {
	if r.Metadata == nil {
		return ""
	}
	if t, ok := r.Metadata["title"].(string); ok {
		return t
	}
	return ""
}

// RetrieveResponse is the response for a retrieval request.
type RetrieveResponse struct {
	Query      string             `json:"query"`
	Domain     Domain             `json:"domain"`
	Year       *int               `json:"year,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Results    []*RetrievalResult `json:"results"`
	QueryTime  int64              `json:"query_time_ms"`
}
