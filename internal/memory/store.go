// Package memory persists typed records with optional embedding vectors
// and answers semantic searches over them.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

// Type classifies a memory record.
type Type string

const (
	TypePreference  Type = "preference"
	TypeMistake     Type = "mistake"
	TypeKnowledge   Type = "knowledge"
	TypeTaskContext Type = "task_context"
)

// Memory is one stored record. A record without an embedding is kept
// but never returned by similarity search.
type Memory struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Type      Type              `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float64         `json:"embedding,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SearchResult pairs a record with its similarity (or rerank) score.
type SearchResult struct {
	Memory     Memory
	Similarity float64
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Reranker rescores candidate documents against a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]llm.RerankResult, error)
}

const (
	// DefaultMinSimilarity is the cosine floor applied before rerank.
	DefaultMinSimilarity = 0.7
	// candidateCap bounds the set handed to the reranker.
	candidateCap = 50
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id VARCHAR PRIMARY KEY,
	content VARCHAR NOT NULL,
	type VARCHAR NOT NULL,
	metadata VARCHAR,
	embedding VARCHAR,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories (type);
`

// Store wraps the embedded database and the embedding/rerank endpoints.
// The database file is single-writer; one active instance per user is
// assumed.
type Store struct {
	db       *sql.DB
	embedder Embedder
	reranker Reranker
	logger   *zap.Logger
}

// Open creates or opens the store at path, creating parent directories
// and the schema on first use. The reranker may be nil.
func Open(path string, embedder Embedder, reranker Reranker, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	return &Store{db: db, embedder: embedder, reranker: reranker, logger: logger}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember persists a record. An embedding failure is logged and the
// record is stored with an empty vector.
func (s *Store) Remember(ctx context.Context, content string, typ Type, metadata map[string]string) (*Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	var embedding []float64
	if s.embedder != nil {
		vectors, err := s.embedder.Embed(ctx, []string{content})
		if err != nil || len(vectors) == 0 {
			if s.logger != nil {
				s.logger.Warn("embedding failed, storing without vector", zap.Error(err))
			}
		} else {
			embedding = vectors[0]
		}
	}

	now := time.Now().UTC()
	m := &Memory{
		ID:        uuid.New().String(),
		Content:   content,
		Type:      typ,
		Metadata:  metadata,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, string(m.Type), jsonCell(m.Metadata), jsonCell(m.Embedding), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, metadata, embedding, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s not found", id)
	}
	return m, err
}

// List returns all records, optionally filtered by type.
func (s *Store) List(ctx context.Context, typ Type) ([]Memory, error) {
	query := `SELECT id, content, type, metadata, embedding, created_at, updated_at FROM memories`
	args := []any{}
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Forget deletes a record by id.
func (s *Store) Forget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory %s not found", id)
	}
	return nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var (
		m             Memory
		typ           string
		metadataCell  sql.NullString
		embeddingCell sql.NullString
	)
	err := row.Scan(&m.ID, &m.Content, &typ, &metadataCell, &embeddingCell, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = Type(typ)
	if metadataCell.Valid && metadataCell.String != "" {
		_ = json.Unmarshal([]byte(metadataCell.String), &m.Metadata)
	}
	if embeddingCell.Valid && embeddingCell.String != "" {
		_ = json.Unmarshal([]byte(embeddingCell.String), &m.Embedding)
	}
	return &m, nil
}

// jsonCell serializes a value into a JSON text cell, empty on nil.
func jsonCell(v any) string {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return ""
		}
	case []float64:
		if len(val) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
