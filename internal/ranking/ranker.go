package ranking

// Ranker applies a chain of multipliers to fused scores.
type Ranker struct {
	config      *RankingConfig
	multipliers []Multiplier
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Ranker{
		config:      config,
		multipliers: DefaultMultipliers(config),
	}
}

// WithMultipliers sets custom multipliers.
func (r *Ranker) WithMultipliers(multipliers []Multiplier) *Ranker {
	r.multipliers = multipliers
	return r
}

// Adjust returns baseScore after every multiplier.
func (r *Ranker) Adjust(ctx *ScoringContext, baseScore float64) float64 {
	score := baseScore
	for _, m := range r.multipliers {
		score = m.Multiply(ctx, score)
	}
	return score
}

// AdjustWithBreakdown is Adjust with the per-multiplier factors recorded.
func (r *Ranker) AdjustWithBreakdown(ctx *ScoringContext, baseScore float64) *ScoreBreakdown {
	breakdown := NewScoreBreakdown()
	breakdown.BaseScore = baseScore
	score := baseScore
	for _, m := range r.multipliers {
		prev := score
		score = m.Multiply(ctx, score)
		if prev != 0 {
			breakdown.Multipliers[m.Name()] = score / prev
		} else {
			breakdown.Multipliers[m.Name()] = 1.0
		}
	}
	breakdown.FinalScore = score
	return breakdown
}
