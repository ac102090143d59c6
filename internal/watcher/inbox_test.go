package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// lastOption answers every question with its last option key.
type lastOption struct {
	batches atomic.Int32
}

func (a *lastOption) Run(_ context.Context, qs []*models.Question) []models.Answer {
	a.batches.Add(1)
	out := make([]models.Answer, len(qs))
	for i, q := range qs {
		keys := q.Keys()
		out[i] = models.Answer{QID: q.QID, Letter: keys[len(keys)-1]}
	}
	return out
}

const questionsJSON = `[
  {"qid": "q1", "question": "Một cộng một bằng mấy?", "choices": ["1", "2"], "answer": "B"},
  {"qid": "q2", "question": "Thủ đô?", "choices": ["Hà Nội", "Huế", "Đà Nẵng"], "answer": "A"}
]`

func readPredictions(t *testing.T, path string) []models.Prediction {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var preds []models.Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		t.Fatal(err)
	}
	return preds
}

func TestInbox_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "round1.json")
	if err := writeFile(path, questionsJSON); err != nil {
		t.Fatal(err)
	}
	answerer := &lastOption{}
	in := NewInbox([]string{dir}, answerer)

	out, err := in.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "round1.predictions.json") {
		t.Errorf("predictions path = %q", out)
	}
	preds := readPredictions(t, out)
	if len(preds) != 2 || preds[0] != (models.Prediction{QID: "q1", Answer: "B"}) || preds[1] != (models.Prediction{QID: "q2", Answer: "C"}) {
		t.Errorf("predictions = %+v", preds)
	}

	again, err := in.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if again != "" || answerer.batches.Load() != 1 {
		t.Errorf("answered file should be skipped, got %q after %d batches", again, answerer.batches.Load())
	}
}

func TestInbox_ProcessFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}
	in := NewInbox([]string{dir}, &lastOption{})
	if _, err := in.ProcessFile(context.Background(), path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := os.Stat(PredictionsPath(path)); !os.IsNotExist(err) {
		t.Error("no predictions should be written for a broken file")
	}
}

func TestInbox_WatchesNewFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "early.json")
	if err := writeFile(existing, questionsJSON); err != nil {
		t.Fatal(err)
	}

	in := NewInbox([]string{dir}, &lastOption{}, WithInboxDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()

	dropped := filepath.Join(dir, "late.json")
	if err := writeFile(dropped, questionsJSON); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{existing, dropped} {
		out := PredictionsPath(p)
		ok := waitFor(t, 3*time.Second, func() bool {
			_, err := os.Stat(out)
			return err == nil
		})
		if !ok {
			t.Fatalf("predictions for %s were not written", filepath.Base(p))
		}
	}
	if got := readPredictions(t, PredictionsPath(dropped)); len(got) != 2 {
		t.Errorf("late.json predictions = %+v", got)
	}
}
