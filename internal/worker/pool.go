// Package worker answers question batches with a bounded pool of workers.
package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	DefaultLocalSize  = 1
	DefaultHostedSize = 5
	DefaultMax        = 16
)

// Answerer answers one question. Process must always return an answer.
type Answerer interface {
	Process(ctx context.Context, q *models.Question) models.Answer
}

// Observer tracks questions in flight.
type Observer interface {
	QuestionStarted()
	QuestionFinished()
}

// ProgressFunc is called after each answer with the number completed so far.
// Calls are serialized.
type ProgressFunc func(done, total int, ans models.Answer)

// Config sizes the pool.
type Config struct {
	Size int
	Max  int
	// RequestsPerSecond limits how fast questions start across all workers. Zero disables.
	RequestsPerSecond float64
	// QuestionTimeout bounds each question independently of its siblings. Zero means no
	// bound beyond the caller's context.
	QuestionTimeout time.Duration
}

// SizeFor returns the worker count for provider: size when set, else 1 for a local
// ollama server and 5 for hosted providers, capped by max.
func SizeFor(provider string, size, limit int) int {
	if size <= 0 {
		size = DefaultHostedSize
		if provider == "ollama" {
			size = DefaultLocalSize
		}
	}
	if limit <= 0 {
		limit = DefaultMax
	}
	return min(size, limit)
}

// Pool runs questions through an Answerer.
type Pool struct {
	answerer Answerer
	config   Config
	limiter  *rate.Limiter
	observer Observer
	progress ProgressFunc
	logger   *zap.Logger
}

type Option func(*Pool)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(p *Pool) {
		p.progress = fn
	}
}

// NewPool creates a pool. A non-positive Size means one worker.
func NewPool(answerer Answerer, cfg Config, opts ...Option) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Max > 0 && cfg.Size > cfg.Max {
		cfg.Size = cfg.Max
	}
	p := &Pool{answerer: answerer, config: cfg, logger: zap.NewNop()}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// Run answers every question and returns the answers in input order. A cancelled
// context makes the remaining questions fall back instead of aborting the batch.
func (p *Pool) Run(ctx context.Context, questions []*models.Question) []models.Answer {
	results := make([]models.Answer, len(questions))
	if len(questions) == 0 {
		return results
	}

	start := time.Now()
	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	workers := min(p.config.Size, len(questions))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				ans := p.answer(ctx, questions[i])
				results[i] = ans

				mu.Lock()
				done++
				if p.progress != nil {
					p.progress(done, len(questions), ans)
				}
				mu.Unlock()
			}
		}()
	}

	for i := range questions {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.logger.Info("batch finished",
		zap.Int("questions", len(questions)),
		zap.Int("workers", workers),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}

func (p *Pool) answer(ctx context.Context, q *models.Question) models.Answer {
	if p.observer != nil {
		p.observer.QuestionStarted()
		defer p.observer.QuestionFinished()
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Warn("rate limiter wait aborted", zap.String("qid", q.QID), zap.Error(err))
			return fallback(q, err)
		}
	}

	qctx := ctx
	if p.config.QuestionTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.config.QuestionTimeout)
		defer cancel()
	}

	out := make(chan models.Answer, 1)
	go func() {
		out <- p.answerer.Process(qctx, q)
	}()
	select {
	case ans := <-out:
		return ans
	case <-qctx.Done():
		// give a well-behaved answerer the chance to report its own fallback
		select {
		case ans := <-out:
			return ans
		case <-time.After(50 * time.Millisecond):
		}
		p.logger.Warn("question abandoned by pool", zap.String("qid", q.QID), zap.Error(qctx.Err()))
		return fallback(q, qctx.Err())
	}
}

func fallback(q *models.Question, err error) models.Answer {
	reason := "cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "question timed out"
	}
	return models.Answer{QID: q.QID, Letter: q.FallbackKey(), Fallback: true, Reason: reason}
}

// Predictions converts answers to the persisted {qid, answer} form.
func Predictions(answers []models.Answer) []models.Prediction {
	out := make([]models.Prediction, len(answers))
	for i, a := range answers {
		out[i] = models.Prediction{QID: a.QID, Answer: a.Letter}
	}
	return out
}

// Accuracy compares answers to the questions' expected letters case-insensitively.
// It returns ok=false when no question carries an expected answer.
func Accuracy(questions []*models.Question, answers []models.Answer) (correct, graded int, ok bool) {
	for i, q := range questions {
		if q.Expected == "" || i >= len(answers) {
			continue
		}
		graded++
		if strings.EqualFold(strings.TrimSpace(q.Expected), strings.TrimSpace(answers[i].Letter)) {
			correct++
		}
	}
	return correct, graded, graded > 0
}
