package ranking

// TemporalMultiplier boosts chunks whose explicit validity window contains the query year.
// Chunks with the default 1900..9999 window carry no temporal signal and are left alone.
type TemporalMultiplier struct {
	config *RankingConfig
}

// NewTemporalMultiplier creates a new TemporalMultiplier.
func NewTemporalMultiplier(config *RankingConfig) *TemporalMultiplier {
	return &TemporalMultiplier{config: config}
}

// Name returns the multiplier name.
func (m *TemporalMultiplier) Name() string {
	return "temporal"
}

// Multiply applies the temporal boost to the base score.
func (m *TemporalMultiplier) Multiply(ctx *ScoringContext, baseScore float64) float64 {
	if m.config.DisableTemporalBoost || baseScore == 0 {
		return baseScore
	}
	if !ctx.TemporalEnabled || ctx.Year == nil || ctx.Chunk == nil || ctx.TemporalBoost <= 1 {
		return baseScore
	}
	if !ctx.Chunk.HasExplicitWindow() {
		return baseScore
	}
	from, to := ctx.Chunk.Window()
	if *ctx.Year < from || *ctx.Year > to {
		return baseScore
	}
	boost := ctx.TemporalBoost
	if m.config.MaxTemporalBoost > 0 && boost > m.config.MaxTemporalBoost {
		boost = m.config.MaxTemporalBoost
	}
	return baseScore * boost
}

// DefaultMultipliers returns the default set of multipliers based on config.
func DefaultMultipliers(config *RankingConfig) []Multiplier {
	var multipliers []Multiplier
	if !config.DisableTemporalBoost {
		multipliers = append(multipliers, NewTemporalMultiplier(config))
	}
	return multipliers
}
