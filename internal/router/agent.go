// Package router drives one question through safety, classification and the task
// handler that produces its answer letter.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/classify"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompts"
	"github.com/hyperjump/kotae/internal/safety"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/temporal"
	"go.uber.org/zap"
)

// State is a step of the routing state machine.
type State string

const (
	StateStart         State = "START"
	StateSafetyChecked State = "SAFETY_CHECKED"
	StateClassified    State = "CLASSIFIED"
	StateMath          State = "MATH"
	StateReading       State = "READING"
	StateRetrieval     State = "RETRIEVAL"
	StateSafetyRefusal State = "SAFETY_REFUSAL"
	StateDone          State = "DONE"
)

// DefaultTimeout bounds a whole Process call.
const DefaultTimeout = 60 * time.Second

var errTimeout = errors.New("question timed out")

// Retriever is the retrieval capability used by the RETRIEVAL task.
type Retriever interface {
	Retrieve(ctx context.Context, req search.RetrieveRequest) []*models.RetrievalResult
}

// SafetyChecker is the semantic firewall.
type SafetyChecker interface {
	Check(query []float32) models.SafetyCheckResult
}

// RefusalSelector picks the option to answer with when a question is unsafe.
type RefusalSelector interface {
	SelectRefusal(ctx context.Context, q *models.Question) (string, safety.Outcome)
}

// Classifier produces a route, or false when it cannot.
type Classifier interface {
	Classify(ctx context.Context, q *models.Question) (models.QueryRoute, bool)
}

// Observer receives per-question events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveAnswer(a *models.Answer, elapsed time.Duration)
	ObserveSafetyBlock()
	ObserveRetrieval(results int)
}

// Config tunes the agent.
type Config struct {
	Timeout time.Duration
	// RegexFallback refines the category with pattern rules when the classifier fails.
	RegexFallback bool
	// ContextTokens bounds the retrieval context passed to the model.
	ContextTokens int
	// ForceTemporal applies the temporal boost to every domain.
	ForceTemporal bool
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		RegexFallback: true,
		ContextTokens: search.DefaultContextTokens,
	}
}

// Components are the collaborators of an Agent. Firewall and Retriever may be nil:
// without a firewall every question is treated as safe, without a retriever RETRIEVAL
// questions are answered without context.
type Components struct {
	LLM        llm.Service
	Prompts    *prompts.Registry
	Embedder   embedding.Embedder
	Firewall   SafetyChecker
	Selector   RefusalSelector
	Classifier Classifier
	Retriever  Retriever
}

// Agent answers questions. It is safe for concurrent use.
type Agent struct {
	llm        llm.Service
	prompts    *prompts.Registry
	embedder   embedding.Embedder
	firewall   SafetyChecker
	selector   RefusalSelector
	classifier Classifier
	retriever  Retriever
	observer   Observer
	config     Config
	logger     *zap.Logger
}

type Option func(*Agent)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Agent) {
		a.observer = o
	}
}

// New builds an Agent. A nil Selector or Classifier is built from the LLM and prompts.
func New(c Components, cfg Config, opts ...Option) (*Agent, error) {
	if c.LLM == nil {
		return nil, errors.New("router: llm service is required")
	}
	if c.Prompts == nil {
		return nil, errors.New("router: prompt registry is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = search.DefaultContextTokens
	}

	a := &Agent{
		llm:        c.LLM,
		prompts:    c.Prompts,
		embedder:   c.Embedder,
		firewall:   c.Firewall,
		selector:   c.Selector,
		classifier: c.Classifier,
		retriever:  c.Retriever,
		config:     cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.selector == nil {
		a.selector = safety.NewSelector(c.LLM, c.Prompts, safety.WithSelectorLogger(a.logger))
	}
	if a.classifier == nil {
		a.classifier = classify.New(c.LLM, c.Prompts, classify.WithLogger(a.logger))
	}
	return a, nil
}

// run carries the state of one Process call.
type run struct {
	q     *models.Question
	keys  []string
	trace []string
	ans   models.Answer
}

func (r *run) enter(s State) {
	r.trace = append(r.trace, string(s))
}

// Process answers q. It never fails: timeouts, panics and downstream errors produce
// the first sorted option key with Fallback set.
func (a *Agent) Process(ctx context.Context, q *models.Question) models.Answer {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	done := make(chan models.Answer, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				a.logger.Error("panic while answering", zap.String("qid", q.QID), zap.Any("panic", p))
				done <- fallbackAnswer(q, fmt.Sprintf("panic: %v", p), []string{string(StateStart), string(StateDone)})
			}
		}()
		done <- a.process(ctx, q)
	}()

	var ans models.Answer
	select {
	case ans = <-done:
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = errTimeout
		}
		a.logger.Warn("question abandoned", zap.String("qid", q.QID), zap.Error(err))
		ans = fallbackAnswer(q, err.Error(), []string{string(StateStart), string(StateDone)})
	}

	elapsed := time.Since(start)
	ans.Duration = elapsed.Milliseconds()
	if a.observer != nil {
		a.observer.ObserveAnswer(&ans, elapsed)
	}
	return ans
}

func fallbackAnswer(q *models.Question, reason string, trace []string) models.Answer {
	return models.Answer{
		QID:      q.QID,
		Letter:   q.FallbackKey(),
		Fallback: true,
		Reason:   reason,
		Trace:    trace,
	}
}

func (a *Agent) process(ctx context.Context, orig *models.Question) models.Answer {
	q := *orig
	q.Normalize()
	r := &run{q: &q, keys: q.Keys(), ans: models.Answer{QID: q.QID}}
	r.enter(StateStart)

	if len(r.keys) == 0 {
		a.logger.Warn("question has no options", zap.String("qid", q.QID))
		return a.finishFallback(r, "no options")
	}

	if !a.checkSafety(ctx, r) {
		r.enter(StateSafetyRefusal)
		r.ans.Route = models.CategorySafety
		return a.refuse(ctx, r)
	}
	r.enter(StateSafetyChecked)

	route := a.route(ctx, r)
	r.enter(StateClassified)
	r.ans.Route = route.Category
	r.ans.Domain = route.Domain

	var (
		text string
		err  error
	)
	switch route.Category {
	case models.CategorySafety:
		r.enter(StateSafetyRefusal)
		return a.refuse(ctx, r)
	case models.CategoryMath:
		r.enter(StateMath)
		text, err = a.generate(ctx, prompts.Math, prompts.Data{Question: q.FormatForLLM()})
	case models.CategoryReading:
		r.enter(StateReading)
		text, err = a.generate(ctx, prompts.Reading, prompts.Data{Question: q.FormatForLLM()})
	default:
		r.enter(StateRetrieval)
		text, err = a.answerWithRetrieval(ctx, &q, route)
	}
	if err != nil {
		a.logger.Warn("answer generation failed", zap.String("qid", q.QID), zap.String("route", string(route.Category)), zap.Error(err))
		return a.finishFallback(r, err.Error())
	}

	res := answer.Parse(text, r.keys)
	r.ans.Letter = res.Letter
	r.ans.Reason = string(res.Outcome)
	r.ans.Fallback = !res.Parsed()
	if r.ans.Fallback {
		a.logger.Debug("unparseable answer, using first option", zap.String("qid", q.QID))
	}
	r.enter(StateDone)
	r.ans.Trace = r.trace
	return r.ans
}

func (a *Agent) finishFallback(r *run, reason string) models.Answer {
	r.enter(StateDone)
	ans := fallbackAnswer(r.q, reason, r.trace)
	ans.Route = r.ans.Route
	ans.Domain = r.ans.Domain
	return ans
}

// checkSafety reports whether the question may be answered normally. Embedding
// failures and a missing firewall count as safe.
func (a *Agent) checkSafety(ctx context.Context, r *run) bool {
	if a.firewall == nil || a.embedder == nil {
		return true
	}
	vec, err := a.embedder.Embed(ctx, r.q.Text)
	if err != nil {
		a.logger.Warn("safety embedding failed, treating as safe", zap.String("qid", r.q.QID), zap.Error(err))
		return true
	}
	res := a.firewall.Check(vec)
	if res.IsSafe {
		return true
	}
	a.logger.Info("question blocked by firewall",
		zap.String("qid", r.q.QID),
		zap.Float64("similarity", res.SimilarityScore),
		zap.String("matched", res.MatchedQuery),
	)
	if a.observer != nil {
		a.observer.ObserveSafetyBlock()
	}
	return false
}

func (a *Agent) refuse(ctx context.Context, r *run) models.Answer {
	letter, outcome := a.selector.SelectRefusal(ctx, r.q)
	r.ans.Letter = letter
	r.ans.Reason = "refusal:" + string(outcome)
	r.enter(StateDone)
	r.ans.Trace = r.trace
	return r.ans
}

func (a *Agent) route(ctx context.Context, r *run) models.QueryRoute {
	route, ok := a.classifier.Classify(ctx, r.q)
	if !ok {
		route = models.DefaultRoute()
		if a.config.RegexFallback {
			route.Category = classify.RouteByPattern(r.q)
		}
	}
	if route.Domain == "" {
		route.Domain = models.DomainGeneralKnowledge
	}
	if route.TemporalConstraint == nil {
		route.TemporalConstraint = temporal.ExtractYearPtr(r.q.Text)
	}
	a.logger.Debug("question routed",
		zap.String("qid", r.q.QID),
		zap.Bool("classified", ok),
		zap.String("category", string(route.Category)),
		zap.String("domain", string(route.Domain)),
	)
	return route
}

func (a *Agent) generate(ctx context.Context, name prompts.Name, data prompts.Data) (string, error) {
	system, user, err := a.prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	return a.llm.Generate(ctx, user, system)
}

func (a *Agent) answerWithRetrieval(ctx context.Context, q *models.Question, route models.QueryRoute) (string, error) {
	data := prompts.Data{Question: q.FormatForLLM()}
	if a.retriever == nil {
		return a.generate(ctx, prompts.RAG, data)
	}

	results := a.retriever.Retrieve(ctx, search.RetrieveRequest{
		Query:         q.Text,
		Domain:        route.Domain,
		KeyEntities:   route.KeyEntities,
		Year:          route.TemporalConstraint,
		ForceTemporal: a.config.ForceTemporal,
	})
	if a.observer != nil {
		a.observer.ObserveRetrieval(len(results))
	}
	if len(results) == 0 {
		return a.generate(ctx, prompts.RAG, data)
	}
	data.Context = search.FormatContext(results, a.config.ContextTokens)
	return a.generate(ctx, prompts.RAGWithContext, data)
}
