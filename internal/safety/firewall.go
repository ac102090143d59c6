package safety

import (
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// DefaultThreshold is the similarity at or above which a query is blocked.
const DefaultThreshold = 0.85

// Firewall compares query embeddings against the bank. It fails open: an empty bank
// or a dimension mismatch yields a safe result.
type Firewall struct {
	bank      *Bank
	threshold float64
	logger    *zap.Logger
}

type FirewallOption func(*Firewall)

func WithThreshold(t float64) FirewallOption {
	return func(f *Firewall) {
		if t > 0 {
			f.threshold = t
		}
	}
}

func WithLogger(logger *zap.Logger) FirewallOption {
	return func(f *Firewall) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFirewall(bank *Bank, opts ...FirewallOption) *Firewall {
	f := &Firewall{bank: bank, threshold: DefaultThreshold, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Firewall) Threshold() float64 {
	return f.threshold
}

func (f *Firewall) BankSize() int {
	return f.bank.Len()
}

// Check returns IsSafe=false only when the best match is strictly at or above the threshold.
func (f *Firewall) Check(query []float32) models.SafetyCheckResult {
	if f.bank.Len() == 0 || len(query) == 0 {
		return models.SafetyCheckResult{IsSafe: true}
	}
	if len(query) != f.bank.dim {
		f.logger.Warn("safety check skipped: dimension mismatch",
			zap.Int("query_dim", len(query)),
			zap.Int("bank_dim", f.bank.dim),
		)
		return models.SafetyCheckResult{IsSafe: true}
	}

	q := vector.Normalize(query)
	best := -1.0
	bestIdx := -1
	for i, row := range f.bank.vectors {
		if s := vector.InnerProduct(q, row); s > best {
			best = s
			bestIdx = i
		}
	}

	res := models.SafetyCheckResult{
		IsSafe:          best < f.threshold,
		SimilarityScore: best,
	}
	if !res.IsSafe {
		res.MatchedQuery = f.bank.texts[bestIdx]
		f.logger.Info("query blocked by safety firewall",
			zap.Float64("similarity", best),
			zap.String("matched", res.MatchedQuery),
		)
	}
	return res
}
