package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/worker"
)

const predictionsSuffix = ".predictions.json"

// BatchAnswerer answers a batch of questions in input order (worker.Pool).
type BatchAnswerer interface {
	Run(ctx context.Context, questions []*models.Question) []models.Answer
}

// QuestionFile reports whether path is an inbox question file: a .json file that is
// not one of our own prediction outputs.
func QuestionFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".json") && !strings.HasSuffix(base, predictionsSuffix)
}

// PredictionsPath maps dir/name.json to dir/name.predictions.json.
func PredictionsPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + predictionsSuffix
}

// Inbox answers question files dropped into watched directories and writes the
// predictions next to them.
type Inbox struct {
	watcher  *Watcher
	answerer BatchAnswerer
	logger   *zap.Logger

	ctxMu sync.Mutex
	ctx   context.Context
	// one file at a time; the pool already parallelizes within a file
	runMu sync.Mutex
}

// InboxOption configures an Inbox.
type InboxOption func(*inboxOptions)

type inboxOptions struct {
	logger    *zap.Logger
	recursive bool
	debounce  time.Duration
}

func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(o *inboxOptions) { o.logger = l }
}

func WithInboxRecursive(recursive bool) InboxOption {
	return func(o *inboxOptions) { o.recursive = recursive }
}

func WithInboxDebounce(d time.Duration) InboxOption {
	return func(o *inboxOptions) { o.debounce = d }
}

// NewInbox creates an inbox over dirs.
func NewInbox(dirs []string, answerer BatchAnswerer, opts ...InboxOption) *Inbox {
	o := inboxOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	in := &Inbox{answerer: answerer, logger: o.logger, ctx: context.Background()}
	in.watcher = NewWatcher(dirs, in.onReady,
		WithLogger(o.logger),
		WithRecursive(o.recursive),
		WithFilter(QuestionFile),
		WithDebounce(o.debounce),
	)
	return in
}

// Start watches the inbox and answers files that are already waiting in it.
func (in *Inbox) Start(ctx context.Context) error {
	in.ctxMu.Lock()
	in.ctx = ctx
	in.ctxMu.Unlock()
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	go in.watcher.SyncExistingFiles()
	return nil
}

// Stop stops watching. A file being answered finishes first only if its context allows.
func (in *Inbox) Stop() {
	in.watcher.Stop()
}

func (in *Inbox) Directories() []string {
	return in.watcher.Directories()
}

func (in *Inbox) AddDirectory(path string, syncExisting bool) error {
	return in.watcher.AddDirectory(path, syncExisting)
}

func (in *Inbox) RemoveDirectory(path string) error {
	return in.watcher.RemoveDirectory(path)
}

func (in *Inbox) onReady(path string) {
	in.ctxMu.Lock()
	ctx := in.ctx
	in.ctxMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if _, err := in.ProcessFile(ctx, path); err != nil {
		in.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
	}
}

// ProcessFile answers one question file and returns the predictions path. Files whose
// predictions are newer than the questions are skipped and return an empty path.
func (in *Inbox) ProcessFile(ctx context.Context, path string) (string, error) {
	in.runMu.Lock()
	defer in.runMu.Unlock()

	out := PredictionsPath(path)
	if upToDate(path, out) {
		in.logger.Debug("inbox file already answered", zap.String("path", path))
		return "", nil
	}
	questions, err := storage.LoadQuestionsJSON(path)
	if err != nil {
		return "", err
	}
	start := time.Now()
	answers := in.answerer.Run(ctx, questions)
	if err := storage.SavePredictionsJSON(out, worker.Predictions(answers)); err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.String("path", path),
		zap.String("predictions", out),
		zap.Int("questions", len(questions)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if correct, graded, ok := worker.Accuracy(questions, answers); ok {
		fields = append(fields, zap.Int("correct", correct), zap.Int("graded", graded))
	}
	in.logger.Info("inbox file answered", fields...)
	return out, nil
}

func upToDate(questions, predictions string) bool {
	qi, err := os.Stat(questions)
	if err != nil {
		return false
	}
	pi, err := os.Stat(predictions)
	if err != nil {
		return false
	}
	return !pi.ModTime().Before(qi.ModTime())
}
