// Package ingest drives the write path: extract a knowledge item's text,
// split it into chunks, embed the chunks in batches, and upsert them into
// the vector index under deterministic ids.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
	"github.com/lorebook/lorebook/pkg/splitter"
)

type EngineConfig struct {
	// BatchSize caps how many chunks go to the embedding provider in one
	// call, keeping requests under provider payload limits.
	BatchSize int
}

type Engine struct {
	config   EngineConfig
	loader   types.Loader
	splitter splitter.Splitter
	embedder types.Embedder
	index    types.VectorIndex
	store    types.KnowledgeStore
	logger   *slog.Logger
}

func New(config EngineConfig, loader types.Loader, split splitter.Splitter, embedder types.Embedder, index types.VectorIndex, store types.KnowledgeStore, logger *slog.Logger) *Engine {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   config,
		loader:   loader,
		splitter: split,
		embedder: embedder,
		index:    index,
		store:    store,
		logger:   logger,
	}
}

// Result reports a completed ingestion.
type Result struct {
	Chunks   int
	Embedded bool
}

// ItemResult is one entry of a notebook-wide reingestion: either a Result
// or the error that stopped that item. One item's failure never aborts its
// siblings.
type ItemResult struct {
	KnowledgeID string
	Chunks      int
	Embedded    bool
	Err         error
}

// Ingest indexes one knowledge item. Chunk ids are deterministic
// ("{notebookID}_{knowledgeID}_{chunkIndex}"), so re-ingesting an item
// overwrites its existing vectors instead of duplicating them. Any failing
// step aborts the whole ingestion; the embedded flag only flips after
// every batch has been stored.
func (e *Engine) Ingest(ctx context.Context, notebookID, knowledgeID string, item models.KnowledgeItem) (*Result, error) {
	if notebookID == "" || knowledgeID == "" {
		return nil, fmt.Errorf("notebook ID and knowledge ID are required: %w", errs.ErrValidation)
	}

	result, err := e.ingest(ctx, notebookID, knowledgeID, item)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest knowledge item %q: %w", knowledgeID, err)
	}
	return result, nil
}

func (e *Engine) ingest(ctx context.Context, notebookID, knowledgeID string, item models.KnowledgeItem) (*Result, error) {
	extracted, err := e.loader.Extract(ctx, item)
	if err != nil {
		return nil, err
	}

	baseMetadata := map[string]string{
		"notebookId":  notebookID,
		"knowledgeId": knowledgeID,
	}
	for k, v := range extracted.Metadata {
		baseMetadata[k] = v
	}

	chunks := e.splitter.Split(extracted.Text, baseMetadata)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text content found in knowledge item")
	}

	e.logger.Debug("ingesting item", "knowledge_id", knowledgeID, "chunks", len(chunks), "title", item.Title)

	for start := 0; start < len(chunks); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}

		ids := make([]string, len(batch))
		metadatas := make([]map[string]string, len(batch))
		for i, chunk := range batch {
			chunkIndex := start + i // position within the item, not the batch
			ids[i] = fmt.Sprintf("%s_%s_%d", notebookID, knowledgeID, chunkIndex)

			meta := chunk.Metadata
			meta["chunkIndex"] = strconv.Itoa(chunkIndex)
			meta["title"] = item.Title
			meta["type"] = string(item.Type)
			metadatas[i] = meta
		}

		if err := e.index.Upsert(ctx, ids, vectors, texts, metadatas); err != nil {
			return nil, err
		}
	}

	if err := e.store.MarkEmbedded(notebookID, knowledgeID); err != nil {
		return nil, err
	}

	return &Result{Chunks: len(chunks), Embedded: true}, nil
}

// ReingestNotebook re-indexes every knowledge item in the notebook,
// collecting a per-item result or error.
func (e *Engine) ReingestNotebook(ctx context.Context, notebookID string) ([]ItemResult, error) {
	if notebookID == "" {
		return nil, fmt.Errorf("notebook ID is required: %w", errs.ErrValidation)
	}

	items, err := e.store.KnowledgeItems(notebookID)
	if err != nil {
		return nil, err
	}

	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		result, err := e.Ingest(ctx, notebookID, item.ID, item)
		if err != nil {
			results = append(results, ItemResult{KnowledgeID: item.ID, Err: err})
			continue
		}
		results = append(results, ItemResult{
			KnowledgeID: item.ID,
			Chunks:      result.Chunks,
			Embedded:    result.Embedded,
		})
	}

	return results, nil
}
