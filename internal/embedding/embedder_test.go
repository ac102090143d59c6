package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fixedSource struct {
	vec []float32
	err error
}

func (s fixedSource) GetEmbedding(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func TestSourceEmbedder(t *testing.T) {
	ctx := context.Background()
	e, err := NewSourceEmbedder(fixedSource{vec: []float32{1, 0, 0}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(ctx, "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	e, _ = NewSourceEmbedder(fixedSource{vec: []float32{1, 0}}, 3)
	if _, err := e.Embed(ctx, "x"); err == nil {
		t.Error("expected dimension error")
	}
	e, _ = NewSourceEmbedder(fixedSource{}, 3)
	if _, err := e.Embed(ctx, "x"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
	boom := errors.New("boom")
	e, _ = NewSourceEmbedder(fixedSource{err: boom}, 3)
	if _, err := e.Embed(ctx, "x"); !errors.Is(err, boom) {
		t.Errorf("expected source error, got %v", err)
	}
	if _, err := NewSourceEmbedder(nil, 3); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestMockEmbedder_SimilarTextsAreClose(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Hiến pháp năm 2013 quy định quyền con người")
	b, _ := e.Embed(ctx, "Hiến pháp năm 2013 quy định gì")
	c, _ := e.Embed(ctx, "Sông Mê Kông chảy qua đồng bằng")
	if dot(a, b) <= dot(a, c) {
		t.Errorf("overlapping texts should be closer: ab=%f ac=%f", dot(a, b), dot(a, c))
	}
	again, _ := e.Embed(ctx, "Hiến pháp năm 2013 quy định quyền con người")
	if dot(a, again) < 0.999999 {
		t.Error("embedding should be deterministic")
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("embedding should be unit length, got %f", norm)
	}
}

func TestNew(t *testing.T) {
	if e, err := New(Options{Provider: "mock", Dimensions: 8}); err != nil || e.Dimensions() != 8 {
		t.Errorf("mock: %v", err)
	}
	if _, err := New(Options{Provider: "llm", Dimensions: 8}); err == nil {
		t.Error("llm provider without source should fail")
	}
	if _, err := New(Options{Provider: "word2vec"}); err == nil {
		t.Error("expected unknown provider error")
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
