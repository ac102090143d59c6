package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// EmbeddingMatrix is the raw [n, d] embedding matrix with its ordered row IDs. It backs
// sub-index filtered search and the safety vector bank.
type EmbeddingMatrix struct {
	IDs  []string
	Rows [][]float32
	Dim  int
}

// NewEmbeddingMatrix validates that every row has dim columns.
func NewEmbeddingMatrix(ids []string, rows [][]float32, dim int) (*EmbeddingMatrix, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("ids and rows length mismatch: %d vs %d", len(ids), len(rows))
	}
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, expected %d", ErrDimensionMismatch, i, len(r), dim)
		}
	}
	return &EmbeddingMatrix{IDs: ids, Rows: rows, Dim: dim}, nil
}

// Len returns the number of rows.
func (m *EmbeddingMatrix) Len() int {
	return len(m.Rows)
}

// Save writes the matrix. Format (little-endian): dimension (4), n (4), then per row:
// idLen (4), id bytes, vector (dimension*4 bytes).
func (m *EmbeddingMatrix) Save(path string) error {
	return writeMatrix(path, m.Dim, m.IDs, m.Rows)
}

// LoadMatrix reads a matrix written by EmbeddingMatrix.Save or MemoryIndex.Save.
func LoadMatrix(path string) (*EmbeddingMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()
	return readMatrix(bufio.NewReader(f))
}

func writeMatrix(path string, dim int, ids []string, rows [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := encodeMatrix(w, dim, ids, rows); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Close()
}

func encodeMatrix(w io.Writer, dim int, ids []string, rows [][]float32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(rows[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

func readMatrix(r io.Reader) (*EmbeddingMatrix, error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	m := &EmbeddingMatrix{
		Dim:  int(dim),
		IDs:  make([]string, 0, n),
		Rows: make([][]float32, 0, n),
	}
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		m.IDs = append(m.IDs, string(idBytes))
		m.Rows = append(m.Rows, bytesToFloat32Slice(buf))
	}
	return m, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
