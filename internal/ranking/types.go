// Package ranking applies score multipliers to fused retrieval results.
package ranking

import "github.com/hyperjump/kotae/internal/models"

// ScoringContext provides the context needed to adjust one chunk's score.
type ScoringContext struct {
	// Chunk is the candidate being scored.
	Chunk *models.Chunk
	// Year is the temporal constraint of the query, if any.
	Year *int
	// TemporalBoost is the domain's multiplier for chunks valid in Year.
	TemporalBoost float64
	// TemporalEnabled reports whether the domain enables temporal handling.
	TemporalEnabled bool
}

// Multiplier is the interface for score multipliers.
type Multiplier interface {
	Name() string
	Multiply(ctx *ScoringContext, baseScore float64) float64
}

// ScoreBreakdown provides detailed scoring information for debugging.
type ScoreBreakdown struct {
	BaseScore   float64            `json:"base_score"`
	FinalScore  float64            `json:"final_score"`
	Multipliers map[string]float64 `json:"multipliers"`
}

// NewScoreBreakdown creates a new ScoreBreakdown instance.
func NewScoreBreakdown() *ScoreBreakdown {
	return &ScoreBreakdown{
		Multipliers: make(map[string]float64),
	}
}
