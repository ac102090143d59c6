package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		section TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL DEFAULT '',
		valid_from INTEGER NOT NULL DEFAULT 1900,
		expire_at INTEGER NOT NULL DEFAULT 9999
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_position ON chunks(position);
	CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks(category);
	`
	_, err := db.Exec(schema)
	return err
}

const chunkColumns = `id, text, category, title, section, source_file, valid_from, expire_at`

func scanChunk(row interface{ Scan(...interface{}) error }) (*models.Chunk, error) {
	var c models.Chunk
	if err := row.Scan(&c.ID, &c.Text, &c.Category, &c.Title, &c.Section, &c.SourceFile, &c.ValidFrom, &c.ExpireAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ReplaceChunks deletes the stored corpus and inserts chunks in a transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, position, text, category, title, section, source_file, valid_from, expire_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		from, to := c.Window()
		if _, err := stmt.ExecContext(ctx, c.ID, i, c.Text, c.Category, c.Title, c.Section, c.SourceFile, from, to); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListChunks returns every chunk ordered by position.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkIDsByCategory returns the IDs of chunks in any of categories, in corpus order.
func (s *SQLiteStorage) ChunkIDsByCategory(ctx context.Context, categories []string) ([]string, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(categories)), ",")
	args := make([]interface{}, len(categories))
	for i, c := range categories {
		args[i] = c
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE category IN (`+placeholders+`) ORDER BY position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CategoryCounts returns the number of chunks per category.
func (s *SQLiteStorage) CategoryCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM chunks GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
