package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/logger"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// VectorStore keeps document chunks with their embeddings in a pgvector table.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
	log    *logrus.Entry
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384 // all-MiniLM-L6-v2
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		log:    logger.New("store").WithField("table", config.TableName),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d)
		)`, vs.table, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s ((metadata->>'document_id'))`,
		pgx.Identifier{vs.config.TableName + "_document_id_idx"}.Sanitize(), vs.table)
	if _, err := vs.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)
	if _, err := vs.pool.Exec(ctx, createVectorIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Insert writes all chunks in one transaction, queued in batches of BatchSize.
func (vs *VectorStore) Insert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)`, vs.table)

	for start := 0; start < len(chunks); start += vs.config.BatchSize {
		end := start + vs.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := &pgx.Batch{}
		for _, chunk := range chunks[start:end] {
			if len(chunk.Embedding) != vs.config.VectorDim {
				return fmt.Errorf("embedding has %d dimensions, table expects %d", len(chunk.Embedding), vs.config.VectorDim)
			}
			batch.Queue(stmt, sanitizeUTF8(chunk.Content), chunk.Metadata, pgvector.NewVector(chunk.Embedding))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.log.WithField("chunks", len(chunks)).Debug("Inserted chunks")
	return nil
}

// ListMetadata returns the metadata of every chunk in insertion order.
func (vs *VectorStore) ListMetadata(ctx context.Context) ([]models.ChunkMetadata, error) {
	rows, err := vs.pool.Query(ctx, fmt.Sprintf(`SELECT metadata FROM %s ORDER BY id`, vs.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	metas, err := pgx.CollectRows(rows, pgx.RowTo[models.ChunkMetadata])
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return metas, nil
}

// DocumentChunks returns a document's chunks ordered by chunk index.
func (vs *VectorStore) DocumentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE metadata->>'document_id' = $1
		ORDER BY (metadata->>'chunk_index')::int, id`, vs.table)

	rows, err := vs.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	return chunks, nil
}

// FirstMetadata returns the metadata of a document's first chunk, or nil when
// the document has no chunks.
func (vs *VectorStore) FirstMetadata(ctx context.Context, documentID string) (*models.ChunkMetadata, error) {
	query := fmt.Sprintf(`
		SELECT metadata
		FROM %s
		WHERE metadata->>'document_id' = $1
		ORDER BY (metadata->>'chunk_index')::int, id
		LIMIT 1`, vs.table)

	var meta models.ChunkMetadata
	err := vs.pool.QueryRow(ctx, query, documentID).Scan(&meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return &meta, nil
}

// DeleteDocument removes every chunk of a document and reports how many.
func (vs *VectorStore) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := vs.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE metadata->>'document_id' = $1`, vs.table), documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Match returns up to count chunks whose cosine similarity to embedding
// exceeds threshold, most similar first.
func (vs *VectorStore) Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.SearchMatch, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3`, vs.table)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	matches := []models.SearchMatch{}
	for rows.Next() {
		var m models.SearchMatch
		if err := rows.Scan(&m.ID, &m.Content, &m.Metadata, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	return matches, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in text columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
