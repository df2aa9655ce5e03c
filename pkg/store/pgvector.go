// Package store implements the vector index on PostgreSQL with pgvector.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore persists embedded chunks and serves nearest-neighbor queries
// filtered by notebook or knowledge item. Upserts are keyed by chunk id, so
// re-ingesting an item overwrites its rows instead of duplicating them.
//
// VectorStore is safe for concurrent use; last writer wins per id.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, logger *slog.Logger) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "lorebook_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		logger: logger,
	}

	if err := vs.ensureCollection(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

// ensureCollection creates the extension, table, and indexes if they do not
// exist. It is idempotent and runs once during construction.
func (vs *VectorStore) ensureCollection(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL,
			knowledge_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			title TEXT,
			type TEXT,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	createFilterIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_notebook_idx
		ON %s (notebook_id, knowledge_id)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createFilterIndex); err != nil {
		return fmt.Errorf("failed to create filter index: %w", err)
	}

	return nil
}

// Upsert writes the parallel arrays of ids, vectors, texts, and metadata
// into the index inside one transaction. An existing id is overwritten.
func (vs *VectorStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metadatas []map[string]string) error {
	if len(ids) != len(vectors) || len(ids) != len(texts) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert arrays must have equal length: ids=%d vectors=%d texts=%d metadatas=%d",
			len(ids), len(vectors), len(texts), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, notebook_id, knowledge_id, chunk_index, title, type, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			notebook_id = EXCLUDED.notebook_id,
			knowledge_id = EXCLUDED.knowledge_id,
			chunk_index = EXCLUDED.chunk_index,
			title = EXCLUDED.title,
			type = EXCLUDED.type,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for i, id := range ids {
		meta := metadatas[i]
		chunkIndex, convErr := strconv.Atoi(meta["chunkIndex"])
		if convErr != nil {
			return fmt.Errorf("invalid chunkIndex for id %q: %w", id, convErr)
		}

		_, err = tx.Exec(ctx, stmt,
			id,
			meta["notebookId"],
			meta["knowledgeId"],
			chunkIndex,
			sanitizeUTF8(meta["title"]),
			meta["type"],
			sanitizeUTF8(texts[i]),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %q: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.logger.Debug("upserted chunks", "count", len(ids))
	return nil
}

// Query returns up to k chunks nearest to the vector, ordered by ascending
// cosine distance, restricted by the filter.
func (vs *VectorStore) Query(ctx context.Context, vector []float32, k int, filter types.Filter) ([]models.RetrievedDocument, error) {
	if k <= 0 {
		return nil, fmt.Errorf("result count must be positive, got %d", k)
	}

	where, args := buildFilter(filter, 2)
	query := fmt.Sprintf(`
		SELECT id, content, notebook_id, knowledge_id, chunk_index, title, type,
		       embedding <=> $1 AS distance
		FROM %s
		%s
		ORDER BY distance
		LIMIT %d`,
		vs.config.TableName, where, k)

	queryArgs := append([]any{pgvector.NewVector(vector)}, args...)
	rows, err := vs.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var docs []models.RetrievedDocument
	for rows.Next() {
		var doc models.RetrievedDocument
		var notebookID, knowledgeID, title, itemType string
		var chunkIndex int
		var distance float64
		err := rows.Scan(&doc.ID, &doc.Content, &notebookID, &knowledgeID, &chunkIndex, &title, &itemType, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.Distance = float32(distance)
		doc.Metadata = map[string]string{
			"notebookId":  notebookID,
			"knowledgeId": knowledgeID,
			"chunkIndex":  strconv.Itoa(chunkIndex),
			"title":       title,
			"type":        itemType,
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return docs, nil
}

// DeleteByFilter removes every chunk matching the filter. An empty filter
// is rejected so a zero value cannot wipe the table.
func (vs *VectorStore) DeleteByFilter(ctx context.Context, filter types.Filter) error {
	where, args := buildFilter(filter, 1)
	if where == "" {
		return fmt.Errorf("delete filter must not be empty")
	}

	stmt := fmt.Sprintf("DELETE FROM %s %s", vs.config.TableName, where)
	tag, err := vs.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	vs.logger.Debug("deleted chunks",
		"notebook_id", filter.NotebookID,
		"knowledge_id", filter.KnowledgeID,
		"rows", tag.RowsAffected())
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// buildFilter renders the filter as a WHERE clause with placeholders
// starting at firstArg.
func buildFilter(filter types.Filter, firstArg int) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if filter.NotebookID != "" {
		clauses = append(clauses, fmt.Sprintf("notebook_id = $%d", firstArg+len(args)))
		args = append(args, filter.NotebookID)
	}
	if filter.KnowledgeID != "" {
		clauses = append(clauses, fmt.Sprintf("knowledge_id = $%d", firstArg+len(args)))
		args = append(args, filter.KnowledgeID)
	}

	if len(clauses) == 0 {
		return "", nil
	}

	where := "WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}

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
