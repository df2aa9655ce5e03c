// Package retrieval drives the read path: embed a query, fetch nearest
// neighbors from the vector index, and optionally rerank them.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
)

const defaultTopK = 15

// Options controls one retrieval call. Reranking is on by default and
// degrades to distance order when no reranker is configured.
type Options struct {
	NotebookID    string
	TopK          int  // defaults to 15
	SkipReranking bool // keep raw vector distance order
}

type Engine struct {
	embedder types.Embedder
	index    types.VectorIndex
	reranker types.Reranker // nil when no reranker is configured
	logger   *slog.Logger
}

func New(embedder types.Embedder, index types.VectorIndex, reranker types.Reranker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		logger:   logger,
	}
}

// Retrieve returns up to TopK documents relevant to the query, most
// relevant first. When reranking applies, four times as many candidates
// are fetched so the reranker has something to choose from.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]models.RetrievedDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", errs.ErrValidation)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	rerank := !opts.SkipReranking && e.reranker != nil

	fetchCount := topK
	if rerank {
		fetchCount = topK * 4
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	docs, err := e.index.Query(ctx, vector, fetchCount, types.Filter{NotebookID: opts.NotebookID})
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}

	if rerank && len(docs) > 0 {
		return e.RerankDocuments(ctx, query, docs, topK), nil
	}

	return truncate(docs, topK), nil
}

// RerankDocuments reorders docs by relevance to the query, keeping at most
// topK. Reranking degrades gracefully: on any reranker error, or with no
// reranker configured, the original distance order is kept.
func (e *Engine) RerankDocuments(ctx context.Context, query string, docs []models.RetrievedDocument, topK int) []models.RetrievedDocument {
	if e.reranker == nil || len(docs) == 0 {
		return truncate(docs, topK)
	}

	reranked, err := e.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		e.logger.Warn("reranking failed, using original order", "error", err)
		return truncate(docs, topK)
	}

	return truncate(reranked, topK)
}

func truncate(docs []models.RetrievedDocument, k int) []models.RetrievedDocument {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}
