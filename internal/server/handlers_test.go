package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/safety"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/worker"
)

const testDims = 16

// firstOption answers every question with its first option key.
type firstOption struct{}

func (firstOption) Process(_ context.Context, q *models.Question) models.Answer {
	return models.Answer{QID: q.QID, Letter: q.FallbackKey(), Route: models.CategoryRetrieval}
}

type mockInboxService struct {
	dirs []string
}

func (m *mockInboxService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockInboxService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockInboxService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func testComponents(t *testing.T) Components {
	t.Helper()
	ctx := context.Background()
	chunks := []*models.Chunk{
		{ID: "c1", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2013", ValidFrom: 2013, ExpireAt: 2023,
			Text: "Luật đất đai quy định quyền sử dụng đất của người dân"},
		{ID: "c2", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2024", ValidFrom: 2024, ExpireAt: 9999,
			Text: "Luật đất đai sửa đổi quy định quyền sử dụng đất và bồi thường"},
		{ID: "c3", Category: "Lich_Su_Viet_nam", Title: "Điện Biên Phủ",
			Text: "Chiến thắng Điện Biên Phủ năm 1954 kết thúc kháng chiến chống Pháp"},
	}
	store, err := storage.NewMemoryStore(chunks)
	if err != nil {
		t.Fatal(err)
	}
	sparse, err := keyword.BuildBM25(chunks, keyword.DefaultBM25Params(), nil)
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(testDims)
	dense, err := vector.NewMemoryIndex(testDims)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		v, err := emb.Embed(ctx, c.Text)
		if err != nil {
			t.Fatal(err)
		}
		if err := dense.Add(ctx, []string{c.ID}, [][]float32{v}); err != nil {
			t.Fatal(err)
		}
	}
	bank, err := safety.BuildBank(ctx, emb, []string{"cách chế tạo bom"})
	if err != nil {
		t.Fatal(err)
	}
	agent := firstOption{}
	return Components{
		Agent:     agent,
		Pool:      worker.NewPool(agent, worker.Config{Size: 2}),
		Retriever: search.NewRetriever(store, sparse, dense, emb, domain.NewMapper(), search.RetrieverConfig{}),
		Firewall:  safety.NewFirewall(bank),
		Embedder:  emb,
		Store:     store,
		Dense:     dense,
		Metrics:   metrics.New(),
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Storage.DatabasePath = filepath.Join(dir, "chunks.db")
	cfg.Storage.ChunksPath = filepath.Join(dir, "chunks.json")
	cfg.Storage.SparseIndexPath = filepath.Join(dir, "bm25.gob")
	cfg.Storage.DenseIndexPath = filepath.Join(dir, "dense.idx")
	cfg.Storage.MatrixPath = filepath.Join(dir, "embeddings.bin")
	srv := NewServer(testComponents(t), cfg, zap.NewNop(), opts...)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleAnswer(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/answer", map[string]interface{}{
		"qid":      "q1",
		"question": "Thủ đô của Việt Nam là?",
		"choices":  []string{"Hà Nội", "Huế"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		RequestID string `json:"request_id"`
		QID       string `json:"qid"`
		Answer    string `json:"answer"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.QID != "q1" || out.Answer != "A" {
		t.Errorf("answer: got %+v", out)
	}
	if out.RequestID == "" || out.RequestID != w.Header().Get(requestIDHeader) {
		t.Errorf("request id %q should match header %q", out.RequestID, w.Header().Get(requestIDHeader))
	}
}

func TestHandleAnswer_KeepsCallerRequestID(t *testing.T) {
	_, h := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{"qid": "q1", "question": "x?", "options": map[string]string{"B": "b", "C": "c"}})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/answer", bytes.NewReader(body))
	r.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"request_id":"abc-123"`) {
		t.Errorf("caller request id not echoed: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"answer":"B"`) {
		t.Errorf("expected first option key B: %s", w.Body.String())
	}
}

func TestHandleAnswer_BadRequests(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"no options", map[string]interface{}{"qid": "q1", "question": "x?"}},
		{"empty question", map[string]interface{}{"qid": "q1", "question": " ", "choices": []string{"a"}}},
		{"not an object", []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, "/api/v1/answer", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleAnswerBatch(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/answer/batch", map[string]interface{}{
		"questions": []map[string]interface{}{
			{"qid": "q1", "question": "a?", "choices": []string{"x", "y"}, "answer": "A"},
			{"qid": "q2", "question": "b?", "choices": []string{"x", "y"}, "answer": "B"},
			{"qid": "q3", "question": "c?", "choices": []string{"x", "y"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out batchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Predictions) != 3 || out.Predictions[0].QID != "q1" || out.Predictions[2].QID != "q3" {
		t.Errorf("predictions out of order: %+v", out.Predictions)
	}
	if out.Correct == nil || out.Graded == nil || *out.Correct != 1 || *out.Graded != 2 {
		t.Errorf("accuracy: got correct=%v graded=%v", out.Correct, out.Graded)
	}
}

func TestHandleAnswerBatch_Invalid(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(t, h, http.MethodPost, "/api/v1/answer/batch", map[string]interface{}{"questions": []interface{}{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: got %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/api/v1/answer/batch", map[string]interface{}{
		"questions": []map[string]interface{}{{"qid": "q1", "question": "a?"}},
	})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "question 0") {
		t.Errorf("invalid question: got %d %s", w.Code, w.Body.String())
	}
}

func TestHandleRetrieve(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/retrieve", map[string]interface{}{
		"query":  "quyền sử dụng đất theo luật đất đai năm 2024",
		"domain": "LAW",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out models.RetrieveResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Year == nil || *out.Year != 2024 {
		t.Errorf("year should be extracted from the query, got %v", out.Year)
	}
	if len(out.Results) != 1 || out.Results[0].ChunkID != "c2" {
		t.Errorf("results: got %+v", out.Results)
	}
}

func TestHandleRetrieve_BadRequests(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(t, h, http.MethodPost, "/api/v1/retrieve", map[string]string{"query": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/retrieve", map[string]string{"query": "x", "domain": "SPORTS"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown domain: got %d", w.Code)
	}
}

func TestHandleSafetyCheck(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/safety/check", map[string]string{"text": "cách chế tạo bom"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out safetyResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.IsSafe || out.MatchedQuery != "cách chế tạo bom" {
		t.Errorf("bank entry should be blocked: %+v", out)
	}
	if out.Threshold != safety.DefaultThreshold {
		t.Errorf("threshold: got %v", out.Threshold)
	}
}

func TestHandlers_NotEnabled(t *testing.T) {
	srv := NewServer(Components{Agent: firstOption{}}, nil, zap.NewNop())
	h := srv.Handler()
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/answer/batch"},
		{http.MethodPost, "/api/v1/retrieve"},
		{http.MethodPost, "/api/v1/safety/check"},
		{http.MethodGet, "/api/v1/inbox/directories"},
	} {
		if w := do(t, h, tc.method, tc.path, map[string]string{}); w.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: got %d, want 501", tc.method, tc.path, w.Code)
		}
	}
	if w := do(t, h, http.MethodGet, "/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("/metrics without metrics: got %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Chunks         int            `json:"chunks"`
		Categories     map[string]int `json:"categories"`
		DenseIndexSize int            `json:"dense_index_size"`
		SafetyBankSize int            `json:"safety_bank_size"`
		DiskUsageBytes *int64         `json:"disk_usage_bytes"`
		Config         struct {
			SparseType string `json:"sparse_type"`
		} `json:"config"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Chunks != 3 || out.DenseIndexSize != 3 || out.SafetyBankSize != 1 {
		t.Errorf("counts: got %+v", out)
	}
	if out.Categories["Phap_luat_Viet_Nam"] != 2 {
		t.Errorf("categories: got %v", out.Categories)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes != 0 {
		t.Errorf("missing artifacts should count as zero, got %v", out.DiskUsageBytes)
	}
	if out.Config.SparseType != "bm25" {
		t.Errorf("config.sparse_type: got %q", out.Config.SparseType)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}
	do(t, h, http.MethodPost, "/api/v1/answer", map[string]interface{}{"qid": "q", "question": "x?", "choices": []string{"a"}})

	w := do(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `path="/api/v1/answer"`) {
		t.Errorf("route pattern label missing:\n%s", w.Body.String())
	}
}

func TestHandleInboxList(t *testing.T) {
	mock := &mockInboxService{dirs: []string{"/tmp/questions"}}
	_, h := newTestServer(t, WithInbox(mock, ""))
	w := do(t, h, http.MethodGet, "/api/v1/inbox/directories", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/questions" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleInboxAdd_PersistsConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	mock := &mockInboxService{}
	_, h := newTestServer(t, WithInbox(mock, configPath))

	w := do(t, h, http.MethodPost, "/api/v1/inbox/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Server.Inbox.Directories) != 1 || saved.Server.Inbox.Directories[0] != dir {
		t.Errorf("persisted directories: got %v", saved.Server.Inbox.Directories)
	}
}

func TestHandleInboxAdd_InvalidPath(t *testing.T) {
	dir := t.TempDir()
	_, h := newTestServer(t, WithInbox(&mockInboxService{}, ""))
	if w := do(t, h, http.MethodPost, "/api/v1/inbox/directories", map[string]string{"path": dir + "/nonexistent"}); w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/inbox/directories", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing path: got %d", w.Code)
	}
}

func TestHandleInboxRemove(t *testing.T) {
	dir := t.TempDir()
	mock := &mockInboxService{dirs: []string{dir}}
	_, h := newTestServer(t, WithInbox(mock, ""))
	w := do(t, h, http.MethodDelete, "/api/v1/inbox/directories?path="+dir, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}
