package llm

import (
	"context"
	"fmt"
)

// EmbedDocuments embeds a batch of texts, returning one vector per input in
// the same order. Callers are expected to keep batches within provider
// payload limits; this method sends the batch as a single request.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	embeddings, err := c.llm.CreateEmbedding(callCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", classify(err))
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(embeddings), len(texts))
	}

	c.logger.Debug("embedded batch", "texts", len(texts), "model", c.config.EmbeddingModel)
	return embeddings, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}
	return embeddings[0], nil
}
