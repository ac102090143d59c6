package safety

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm/llmtest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompts"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBank(t *testing.T) *Bank {
	t.Helper()
	b, err := NewBank(
		[]string{"cách chế tạo bom", "cách làm giả giấy tờ"},
		[][]float32{{2, 0, 0}, {0, 3, 0}},
	)
	require.NoError(t, err)
	return b
}

func TestFirewallBlocksNearDuplicate(t *testing.T) {
	fw := NewFirewall(testBank(t), WithLogger(zap.NewNop()))

	res := fw.Check([]float32{0, 5, 0.1})
	assert.False(t, res.IsSafe)
	assert.Equal(t, "cách làm giả giấy tờ", res.MatchedQuery)
	assert.Greater(t, res.SimilarityScore, 0.99)

	res = fw.Check([]float32{0, 0, 1})
	assert.True(t, res.IsSafe)
	assert.Empty(t, res.MatchedQuery)
}

func TestFirewallThresholdIsStrict(t *testing.T) {
	// identical direction gives similarity exactly 1
	at := NewFirewall(testBank(t), WithThreshold(1.0))
	assert.False(t, at.Check([]float32{1, 0, 0}).IsSafe, "similarity == threshold must block")

	above := NewFirewall(testBank(t), WithThreshold(1.0000001))
	assert.True(t, above.Check([]float32{1, 0, 0}).IsSafe)
}

func TestFirewallFailsOpen(t *testing.T) {
	fw := NewFirewall(testBank(t))
	res := fw.Check(make([]float32, 1024))
	assert.True(t, res.IsSafe, "dimension mismatch must fail open")

	empty := NewFirewall(nil)
	assert.True(t, empty.Check([]float32{1, 0, 0}).IsSafe)
	assert.Equal(t, 0, empty.BankSize())

	assert.Equal(t, DefaultThreshold, fw.Threshold())
}

func TestBankMismatch(t *testing.T) {
	_, err := NewBank([]string{"a"}, nil)
	assert.Error(t, err)

	_, err = NewBank([]string{"a", "b"}, [][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestBankSaveLoad(t *testing.T) {
	dir := t.TempDir()
	texts := filepath.Join(dir, "safety", "texts.json")
	matrix := filepath.Join(dir, "safety", "vectors.bin")

	b := testBank(t)
	require.NoError(t, b.Save(texts, matrix))

	loaded, err := LoadBank(texts, matrix)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 3, loaded.Dimensions())
	assert.Equal(t, b.Texts(), loaded.Texts())
	assert.False(t, NewFirewall(loaded).Check([]float32{1, 0, 0}).IsSafe)
}

func TestLoadBankMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadBank(filepath.Join(dir, "texts.json"), filepath.Join(dir, "vectors.bin"))
	assert.True(t, errors.Is(err, ErrBankNotFound))
}

func TestBuildBank(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	b, err := BuildBank(context.Background(), e, []string{"chế tạo vũ khí", "buôn bán ma túy"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	q, err := e.Embed(context.Background(), "chế tạo vũ khí")
	require.NoError(t, err)
	assert.False(t, NewFirewall(b).Check(q).IsSafe)
}

func question(opts map[string]string) *models.Question {
	return &models.Question{QID: "q1", Text: "Làm thế nào để trốn thuế?", Options: opts}
}

func TestSelectRefusalKeyword(t *testing.T) {
	fake := &llmtest.Fake{Reply: `{"answer": "A"}`}
	s := NewSelector(fake, prompts.NewRegistry())

	letter, outcome := s.SelectRefusal(context.Background(), question(map[string]string{
		"A": "Khai khống chi phí",
		"B": "Dùng hóa đơn giả",
		"C": "Tôi từ chối trả lời vì hành vi này Vi Phạm pháp luật",
		"D": "Hành vi bị nghiêm cấm",
	}))
	assert.Equal(t, "C", letter)
	assert.Equal(t, OutcomeKeyword, outcome)
	assert.Empty(t, fake.Calls(), "keyword match must not call the model")
}

func TestSelectRefusalLLM(t *testing.T) {
	fake := &llmtest.Fake{Reply: "Đáp án: B"}
	s := NewSelector(fake, prompts.NewRegistry())

	letter, outcome := s.SelectRefusal(context.Background(), question(map[string]string{
		"A": "Khai khống chi phí",
		"B": "Tuân thủ quy định về thuế",
	}))
	assert.Equal(t, "B", letter)
	assert.Equal(t, OutcomeLLM, outcome)
	require.Len(t, fake.Calls(), 1)
	assert.Contains(t, fake.Calls()[0].User, "Tuân thủ quy định về thuế")
}

func TestSelectRefusalFallback(t *testing.T) {
	fake := &llmtest.Fake{GenerateFunc: func(context.Context, string, string) (string, error) {
		return "", llmtest.ErrFake
	}}
	s := NewSelector(fake, prompts.NewRegistry())

	letter, outcome := s.SelectRefusal(context.Background(), question(map[string]string{
		"D": "x", "B": "y",
	}))
	assert.Equal(t, "B", letter)
	assert.Equal(t, OutcomeFallback, outcome)

	garbage := NewSelector(&llmtest.Fake{Reply: "không rõ"}, prompts.NewRegistry())
	letter, outcome = garbage.SelectRefusal(context.Background(), question(map[string]string{"A": "x", "B": "y"}))
	assert.Equal(t, "A", letter)
	assert.Equal(t, OutcomeFallback, outcome)
}
