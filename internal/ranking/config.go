package ranking

// RankingConfig holds configuration for post-fusion score adjustment.
type RankingConfig struct {
	// DisableTemporalBoost turns off the temporal multiplier even when a domain enables it.
	DisableTemporalBoost bool `yaml:"disable_temporal_boost"`
	// MaxTemporalBoost caps a domain's TemporalBoost. Default 2.0.
	MaxTemporalBoost float64 `yaml:"max_temporal_boost"`
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		MaxTemporalBoost: 2.0,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	if c.MaxTemporalBoost == 0 {
		c.MaxTemporalBoost = DefaultRankingConfig().MaxTemporalBoost
	}
}
