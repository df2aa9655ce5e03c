// Package rerank implements second-pass relevance scoring of retrieval
// candidates via the Cohere rerank endpoint. Callers must treat any error
// from Rerank as recoverable: the contract is to fall back to the
// candidates' original order, never to fail retrieval.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	config ClientConfig
	client *http.Client
	logger *slog.Logger
}

func NewWithConfig(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("reranker: %w", errs.ErrCredentials)
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.cohere.com"
	}
	if config.Model == "" {
		config.Model = "rerank-v3.5"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores docs against the query and returns at most topN of them in
// relevance order.
func (c *Client) Rerank(ctx context.Context, query string, docs []models.RetrievedDocument, topN int) ([]models.RetrievedDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topN > len(docs) {
		topN = len(docs)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.config.Model,
		Query:     query,
		Documents: texts,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v2/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w: %w", errs.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("rerank request rejected: %w", errs.ErrCredentials)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank returned status %d: %s: %w", resp.StatusCode, payload, errs.ErrProvider)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	reranked := make([]models.RetrievedDocument, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d for %d documents", r.Index, len(docs))
		}
		reranked = append(reranked, docs[r.Index])
	}

	c.logger.Debug("reranked documents", "candidates", len(docs), "returned", len(reranked))
	return reranked, nil
}
