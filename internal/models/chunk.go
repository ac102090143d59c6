// Package models defines core data structures for chunks, questions, routes and retrieval results.
package models

// Default validity window bounds. A chunk with no explicit window is always valid.
const (
	DefaultValidFrom = 1900
	DefaultExpireAt  = 9999
)

// Chunk is a bounded span of source text with category and time metadata.
// Chunks are immutable once indexed; ID is the identity.
type Chunk struct {
	ID         string `json:"id" db:"id"`
	Text       string `json:"text" db:"text"`
	Category   string `json:"category" db:"category"`
	Title      string `json:"title,omitempty" db:"title"`
	Section    string `json:"section,omitempty" db:"section"`
	SourceFile string `json:"source_file,omitempty" db:"source_file"`
	ValidFrom  int    `json:"valid_from,omitempty" db:"valid_from"`
	ExpireAt   int    `json:"expire_at,omitempty" db:"expire_at"`
}

// ApplyDefaults fills a missing validity window with 1900..9999.
func (c *Chunk) ApplyDefaults() {
	if c.ValidFrom == 0 {
		c.ValidFrom = DefaultValidFrom
	}
	if c.ExpireAt == 0 {
		c.ExpireAt = DefaultExpireAt
	}
}

// HasExplicitWindow reports whether the chunk carries a validity window narrower than the default.
func (c *Chunk) HasExplicitWindow() bool {
	from, to := c.Window()
	return from != DefaultValidFrom || to != DefaultExpireAt
}

// Window returns the inclusive validity window with defaults applied.
func (c *Chunk) Window() (from, to int) {
	from, to = c.ValidFrom, c.ExpireAt
	if from == 0 {
		from = DefaultValidFrom
	}
	if to == 0 {
		to = DefaultExpireAt
	}
	return from, to
}

// Metadata returns the chunk's metadata as a map, as attached to retrieval results.
func (c *Chunk) Metadata() map[string]interface{} {
	from, to := c.Window()
	md := map[string]interface{}{
		"category":   c.Category,
		"valid_from": from,
		"expire_at":  to,
	}
	if c.Title != "" {
		md["title"] = c.Title
	}
	if c.Section != "" {
		md["section"] = c.Section
	}
	if c.SourceFile != "" {
		md["source_file"] = c.SourceFile
	}
	return md
}
