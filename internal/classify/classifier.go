// Package classify assigns a task category, domain, temporal constraint and key
// entities to a question.
package classify

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompts"
	"github.com/hyperjump/kotae/internal/temporal"
	"go.uber.org/zap"
)

// Classifier asks the language model for a JSON route.
type Classifier struct {
	llm     llm.Service
	prompts *prompts.Registry
	logger  *zap.Logger
}

type Option func(*Classifier)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(svc llm.Service, reg *prompts.Registry, opts ...Option) *Classifier {
	c := &Classifier{llm: svc, prompts: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rawRoute struct {
	Category           string          `json:"category"`
	Domain             string          `json:"domain"`
	TemporalConstraint json.RawMessage `json:"temporal_constraint"`
	KeyEntities        []string        `json:"key_entities"`
}

// Classify returns the route and true, or the zero route and false when the model call
// fails or its output has no recognizable category.
func (c *Classifier) Classify(ctx context.Context, q *models.Question) (models.QueryRoute, bool) {
	system, user, err := c.prompts.Render(prompts.Classification, prompts.Data{Question: q.FormatForLLM()})
	if err != nil {
		c.logger.Error("render classification prompt", zap.Error(err))
		return models.QueryRoute{}, false
	}
	resp, err := c.llm.Generate(ctx, user, system)
	if err != nil {
		c.logger.Warn("classification call failed", zap.String("qid", q.QID), zap.Error(err))
		return models.QueryRoute{}, false
	}
	route, ok := ParseRoute(resp)
	if !ok {
		c.logger.Warn("unparseable classification", zap.String("qid", q.QID), zap.String("response", truncate(resp, 200)))
	}
	return route, ok
}

// ParseRoute decodes the first JSON object in text. Unknown domains map to
// GENERAL_KNOWLEDGE; out-of-range or non-numeric years are dropped.
func ParseRoute(text string) (models.QueryRoute, bool) {
	var raw rawRoute
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(text)), &raw); err != nil {
		return models.QueryRoute{}, false
	}
	cat, ok := models.ParseCategory(raw.Category)
	if !ok {
		return models.QueryRoute{}, false
	}
	d, ok := models.ParseDomain(raw.Domain)
	if !ok {
		d = models.DomainGeneralKnowledge
	}

	route := models.QueryRoute{
		Category:           cat,
		Domain:             d,
		TemporalConstraint: parseYear(raw.TemporalConstraint),
	}
	for _, e := range raw.KeyEntities {
		if e = strings.TrimSpace(e); e != "" {
			route.KeyEntities = append(route.KeyEntities, e)
		}
	}
	return route, true
}

func parseYear(raw json.RawMessage) *int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	y := int(f)
	if float64(y) != f || y < temporal.MinYear || y > temporal.MaxYear {
		return nil
	}
	return &y
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
