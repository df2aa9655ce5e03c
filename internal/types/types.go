// Package types holds the interfaces the pipeline packages consume. They
// are defined here, on the consumer side, so ingest/retrieval/chat can be
// exercised against mocks without any provider running.
package types

import (
	"context"

	"github.com/lorebook/lorebook/internal/models"
)

// Embedder maps text to dense vectors via an external provider.
type Embedder interface {
	// EmbedDocuments embeds a batch of texts, returning one vector per
	// input in the same order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Filter restricts vector index operations by metadata equality. Zero
// fields are ignored.
type Filter struct {
	NotebookID  string
	KnowledgeID string
}

// VectorIndex stores embedded chunks and serves nearest-neighbor queries.
// Upsert is keyed by id: writing an existing id overwrites the prior entry.
type VectorIndex interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metadatas []map[string]string) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]models.RetrievedDocument, error)
	DeleteByFilter(ctx context.Context, filter Filter) error
}

// Reranker reorders a candidate set by relevance to the query, returning at
// most topN documents. Callers must treat a rerank failure as recoverable
// and fall back to the candidates' original order.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []models.RetrievedDocument, topN int) ([]models.RetrievedDocument, error)
}

// Loader extracts plain text from a knowledge item.
type Loader interface {
	Extract(ctx context.Context, item models.KnowledgeItem) (models.ExtractedDocument, error)
}

// CompletionModel issues a single text completion. Prompt assembly is the
// caller's job; the returned text is the model's raw output.
type CompletionModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// KnowledgeStore is the slice of notebook persistence the ingestion
// pipeline needs: list a notebook's items and flip the embedded flag.
type KnowledgeStore interface {
	KnowledgeItems(notebookID string) ([]models.KnowledgeItem, error)
	MarkEmbedded(notebookID, knowledgeID string) error
}
