// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// timeoutMargin is added to the router timeout so the router can return its own
// fallback answer before the HTTP layer gives up.
const timeoutMargin = 5 * time.Second

// Answerer answers a single question (router.Agent).
type Answerer interface {
	Process(ctx context.Context, q *models.Question) models.Answer
}

// BatchAnswerer answers many questions, preserving order (worker.Pool).
type BatchAnswerer interface {
	Run(ctx context.Context, questions []*models.Question) []models.Answer
}

// Retriever runs hybrid retrieval (search.Retriever).
type Retriever interface {
	RetrieveDetailed(ctx context.Context, req search.RetrieveRequest) *models.RetrieveResponse
}

// SafetyChecker is the semantic firewall (safety.Firewall).
type SafetyChecker interface {
	Check(query []float32) models.SafetyCheckResult
	Threshold() float64
	BankSize() int
}

// InboxService manages the question inbox directories.
type InboxService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Components are the services behind the API. Only Agent is required; endpoints whose
// component is missing answer 501.
type Components struct {
	Agent     Answerer
	Pool      BatchAnswerer
	Retriever Retriever
	Firewall  SafetyChecker
	Embedder  embedding.Embedder
	Store     storage.ChunkStore
	Dense     vector.VectorIndex
	Metrics   *metrics.Metrics
}

// Server is the HTTP server for the kotae API.
type Server struct {
	components Components
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
	started    time.Time

	inbox      InboxService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithInbox enables the inbox endpoints. When configPath is set, directory changes are
// persisted to the config file.
func WithInbox(inbox InboxService, configPath string) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(c Components, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		components: c,
		config:     cfg,
		logger:     logger,
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if m := s.components.Metrics; m != nil {
		r.Use(m.Middleware(routePattern))
	}
	r.Use(middleware.Compress(5))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))
		r.Post("/api/v1/answer", s.handleAnswer)
		r.Post("/api/v1/retrieve", s.handleRetrieve)
		r.Post("/api/v1/safety/check", s.handleSafetyCheck)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/inbox/directories", s.handleInboxList)
		r.Post("/api/v1/inbox/directories", s.handleInboxAdd)
		r.Delete("/api/v1/inbox/directories", s.handleInboxRemove)
	})
	// Batches run for as long as the client waits.
	r.Post("/api/v1/answer/batch", s.handleAnswerBatch)

	r.Get("/health", s.handleHealth)
	if m := s.components.Metrics; m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

func (s *Server) requestTimeout() time.Duration {
	t := s.config.Router.Timeout
	if t <= 0 {
		t = 60 * time.Second
	}
	return t + timeoutMargin
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
