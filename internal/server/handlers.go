package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/temporal"
	"github.com/hyperjump/kotae/internal/worker"
)

type answerResponse struct {
	RequestID string `json:"request_id"`
	models.Answer
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqID := middleware.GetReqID(r.Context())
	s.logger.Debug("answer request", zap.String("request_id", reqID), zap.String("qid", q.QID))

	ans := s.components.Agent.Process(r.Context(), &q)
	s.respondJSON(w, http.StatusOK, answerResponse{RequestID: reqID, Answer: ans})
}

type batchRequest struct {
	Questions []*models.Question `json:"questions"`
}

type batchResponse struct {
	RequestID   string              `json:"request_id"`
	Answers     []models.Answer     `json:"answers"`
	Predictions []models.Prediction `json:"predictions"`
	Correct     *int                `json:"correct,omitempty"`
	Graded      *int                `json:"graded,omitempty"`
	Accuracy    *float64            `json:"accuracy,omitempty"`
	Elapsed     int64               `json:"elapsed_ms"`
}

func (s *Server) handleAnswerBatch(w http.ResponseWriter, r *http.Request) {
	if s.components.Pool == nil {
		s.respondError(w, http.StatusNotImplemented, "batch answering not enabled")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Questions) == 0 {
		s.respondError(w, http.StatusBadRequest, "questions are required")
		return
	}
	for i, q := range req.Questions {
		if q == nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("question %d is null", i))
			return
		}
		if err := q.Validate(); err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("question %d: %v", i, err))
			return
		}
	}
	reqID := middleware.GetReqID(r.Context())
	s.logger.Info("batch request", zap.String("request_id", reqID), zap.Int("questions", len(req.Questions)))

	start := time.Now()
	answers := s.components.Pool.Run(r.Context(), req.Questions)
	resp := batchResponse{
		RequestID:   reqID,
		Answers:     answers,
		Predictions: worker.Predictions(answers),
		Elapsed:     time.Since(start).Milliseconds(),
	}
	if correct, graded, ok := worker.Accuracy(req.Questions, answers); ok {
		acc := float64(correct) / float64(graded)
		resp.Correct, resp.Graded, resp.Accuracy = &correct, &graded, &acc
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type retrieveRequest struct {
	Query       string   `json:"query"`
	Domain      string   `json:"domain,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Year        *int     `json:"year,omitempty"`
	KeyEntities []string `json:"key_entities,omitempty"`
	Temporal    bool     `json:"force_temporal,omitempty"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.components.Retriever == nil {
		s.respondError(w, http.StatusNotImplemented, "retrieval not enabled")
		return
	}
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	d := models.DomainGeneralKnowledge
	if req.Domain != "" {
		parsed, ok := models.ParseDomain(req.Domain)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "unknown domain: "+req.Domain)
			return
		}
		d = parsed
	}
	year := req.Year
	if year == nil {
		year = temporal.ExtractYearPtr(req.Query)
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.String("domain", string(d)))

	resp := s.components.Retriever.RetrieveDetailed(r.Context(), search.RetrieveRequest{
		Query:         req.Query,
		Domain:        d,
		TopK:          req.TopK,
		KeyEntities:   req.KeyEntities,
		Year:          year,
		ForceTemporal: req.Temporal || s.config.Retrieval.ForceTemporal,
	})
	s.respondJSON(w, http.StatusOK, resp)
}

type safetyRequest struct {
	Text string `json:"text"`
}

type safetyResponse struct {
	models.SafetyCheckResult
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleSafetyCheck(w http.ResponseWriter, r *http.Request) {
	if s.components.Firewall == nil || s.components.Embedder == nil {
		s.respondError(w, http.StatusNotImplemented, "safety firewall not enabled")
		return
	}
	var req safetyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	vec, err := s.components.Embedder.Embed(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("safety check: embedding failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "embedding failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, safetyResponse{
		SafetyCheckResult: s.components.Firewall.Check(vec),
		Threshold:         s.components.Firewall.Threshold(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type categoryCounter interface {
	CategoryCounts() map[string]int
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := s.components
	resp := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if c.Store != nil {
		resp["chunks"] = c.Store.Len()
		if cc, ok := c.Store.(categoryCounter); ok {
			resp["categories"] = cc.CategoryCounts()
		}
	}
	if c.Dense != nil {
		resp["dense_index_size"] = c.Dense.Size()
		resp["dense_dimensions"] = c.Dense.Dimensions()
	}
	if c.Firewall != nil {
		resp["safety_bank_size"] = c.Firewall.BankSize()
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"llm_provider":         cfg.LLM.Provider,
		"llm_model":            cfg.LLM.Model,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"sparse_type":          cfg.Storage.SparseType,
		"dense_type":           cfg.Storage.DenseType,
		"dense_filter":         cfg.Retrieval.DenseFilter,
		"safety_threshold":     cfg.Safety.Threshold,
		"router_timeout":       cfg.Router.Timeout.String(),
		"workers":              cfg.WorkerOptions().Size,
	}
	diskBytes, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.ChunksPath,
		cfg.Storage.SparseIndexPath,
		cfg.Storage.DenseIndexPath,
		cfg.Storage.MatrixPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.inbox.Directories()})
}

type inboxAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	var req inboxAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("inbox add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.inbox.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("inbox add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("inbox remove directory request", zap.String("path", abs))
	if err := s.inbox.RemoveDirectory(abs); err != nil {
		s.logger.Error("inbox remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistInbox writes the current inbox directories back to the config file.
func (s *Server) persistInbox() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Server.Inbox.Directories = s.inbox.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist inbox config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
