// Package safety implements the semantic firewall that flags harmful questions by
// similarity to a bank of known harmful queries, and the refusal selector used for them.
package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/vector"
)

var ErrBankNotFound = errors.New("safety bank not found")

// Bank holds harmful reference queries and their L2-normalized embeddings, row-aligned.
type Bank struct {
	texts   []string
	vectors [][]float32
	dim     int
}

// NewBank validates alignment and normalizes copies of the vectors.
func NewBank(texts []string, vectors [][]float32) (*Bank, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("safety bank has %d texts but %d vectors", len(texts), len(vectors))
	}
	b := &Bank{texts: append([]string(nil), texts...), vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if i == 0 {
			b.dim = len(v)
		} else if len(v) != b.dim {
			return nil, fmt.Errorf("%w: bank row %d has %d, expected %d", vector.ErrDimensionMismatch, i, len(v), b.dim)
		}
		b.vectors[i] = vector.Normalize(v)
	}
	return b, nil
}

// LoadBank reads the texts JSON array and the embedding matrix written by Save.
func LoadBank(textsPath, matrixPath string) (*Bank, error) {
	for _, p := range []string{textsPath, matrixPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrBankNotFound, p)
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}

	data, err := os.ReadFile(textsPath)
	if err != nil {
		return nil, fmt.Errorf("read safety texts: %w", err)
	}
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("parse safety texts: %w", err)
	}

	m, err := vector.LoadMatrix(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("load safety matrix: %w", err)
	}
	if m.Len() != len(texts) {
		return nil, fmt.Errorf("safety matrix has %d rows but %d texts", m.Len(), len(texts))
	}
	b, err := NewBank(texts, m.Rows)
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		b.dim = m.Dim
	}
	return b, nil
}

// BuildBank embeds each seed query.
func BuildBank(ctx context.Context, e embedding.Embedder, texts []string) (*Bank, error) {
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed safety seeds: %w", err)
	}
	return NewBank(texts, vecs)
}

// Save writes the texts JSON and the matrix.
func (b *Bank) Save(textsPath, matrixPath string) error {
	if err := os.MkdirAll(filepath.Dir(textsPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b.texts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(textsPath, data, 0644); err != nil {
		return fmt.Errorf("write safety texts: %w", err)
	}

	ids := make([]string, len(b.texts))
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	m, err := vector.NewEmbeddingMatrix(ids, b.vectors, b.dim)
	if err != nil {
		return err
	}
	return m.Save(matrixPath)
}

func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.texts)
}

func (b *Bank) Dimensions() int {
	if b == nil {
		return 0
	}
	return b.dim
}

// Texts returns a copy of the reference queries.
func (b *Bank) Texts() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.texts...)
}
