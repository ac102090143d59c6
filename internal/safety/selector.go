package safety

import (
	"context"
	"strings"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompts"
	"go.uber.org/zap"
)

// Outcome records which layer chose the refusal option.
type Outcome string

const (
	OutcomeKeyword  Outcome = "keyword"
	OutcomeLLM      Outcome = "llm"
	OutcomeFallback Outcome = "fallback"
)

// RefusalKeywords mark options that decline or condemn the request.
var RefusalKeywords = []string{
	"không được phép",
	"bị nghiêm cấm",
	"vi phạm",
	"từ chối",
	"cấm",
	"illegal",
	"unlawful",
	"prohibited",
}

// Selector picks the refusal option for questions flagged unsafe.
type Selector struct {
	llm      llm.Service
	prompts  *prompts.Registry
	keywords []string
	logger   *zap.Logger
}

type SelectorOption func(*Selector)

func WithSelectorLogger(logger *zap.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithKeywords(keywords []string) SelectorOption {
	return func(s *Selector) {
		if len(keywords) > 0 {
			s.keywords = keywords
		}
	}
}

func NewSelector(svc llm.Service, reg *prompts.Registry, opts ...SelectorOption) *Selector {
	s := &Selector{llm: svc, prompts: reg, keywords: RefusalKeywords, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectRefusal returns an option key: the first option (in key order) containing a refusal
// keyword, else the model's choice, else the first key.
func (s *Selector) SelectRefusal(ctx context.Context, q *models.Question) (string, Outcome) {
	opts := q.OptionMap()
	keys := models.SortedKeys(opts)
	if len(keys) == 0 {
		return "A", OutcomeFallback
	}

	for _, k := range keys {
		if containsAny(strings.ToLower(opts[k]), s.keywords) {
			return k, OutcomeKeyword
		}
	}

	if s.llm != nil && s.prompts != nil {
		system, user, err := s.prompts.Render(prompts.Safety, prompts.Data{Question: q.FormatForLLM()})
		if err == nil {
			var resp string
			resp, err = s.llm.Generate(ctx, user, system)
			if err == nil {
				if res := answer.Parse(resp, keys); res.Parsed() {
					return res.Letter, OutcomeLLM
				}
			}
		}
		if err != nil {
			s.logger.Warn("refusal selection via llm failed", zap.String("qid", q.QID), zap.Error(err))
		}
	}

	return keys[0], OutcomeFallback
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
