package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
)

// ReadQuestions decodes a question file: either a JSON array of questions or an
// object with a "questions" array. Questions without a qid get their 1-based position.
func ReadQuestions(r io.Reader) ([]*models.Question, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	var questions []*models.Question
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Questions []*models.Question `json:"questions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse questions: %w", err)
		}
		questions = wrapped.Questions
	} else if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	for i, q := range questions {
		if q == nil {
			return nil, fmt.Errorf("question %d is null", i)
		}
		if q.QID == "" {
			q.QID = fmt.Sprintf("%d", i+1)
		}
	}
	return questions, nil
}

// LoadQuestionsJSON reads a question file from disk.
func LoadQuestionsJSON(path string) ([]*models.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions: %w", err)
	}
	defer f.Close()
	questions, err := ReadQuestions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return questions, nil
}

// SavePredictionsJSON writes [{qid, answer}] as an indented JSON array. The file is
// written to a temporary name first and renamed, so readers never see a partial file.
func SavePredictionsJSON(path string, predictions []models.Prediction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create predictions dir: %w", err)
	}
	if predictions == nil {
		predictions = []models.Prediction{}
	}
	data, err := json.MarshalIndent(predictions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
