// Package chat orchestrates the read path end to end: expand the user's
// query (multi-query or HyDE), retrieve and merge candidate chunks,
// assemble a bounded context window, and issue the final grounded-answer
// completion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
	"github.com/lorebook/lorebook/pkg/retrieval"
)

// Retriever is the slice of the retrieval engine the orchestrator uses.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]models.RetrievedDocument, error)
	RerankDocuments(ctx context.Context, query string, docs []models.RetrievedDocument, topK int) []models.RetrievedDocument
}

// Options controls one chat request. The zero value selects the default
// strategy: multi-query expansion with reranking.
type Options struct {
	NotebookID    string
	TopK          int  // defaults to 15
	UseHyDE       bool // retrieve via a hypothetical answer instead of query expansion
	SkipReranking bool // keep raw vector distance order
	ChatHistory   []models.ChatMessage
	DetailLevel   models.DetailLevel
}

type Engine struct {
	llm       types.CompletionModel
	retriever Retriever
	logger    *slog.Logger
}

func New(llm types.CompletionModel, retriever Retriever, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		llm:       llm,
		retriever: retriever,
		logger:    logger,
	}
}

const answerPromptFormat = `You are a helpful assistant that answers questions based on the following context from the user's knowledge base.

Context:
%s

%sQuestion: %s

Response detail level: %s

IMPORTANT: Provide your answer in PLAIN TEXT ONLY. Do NOT use any formatting such as:
- Markdown (no **, *, #, [], (), ` + "`" + `, etc.)
- HTML tags (no <b>, <i>, <p>, etc.)
- XML or other markup languages
- Bullet points or numbered lists with special characters
- Code blocks or inline code formatting

Simply write your answer as natural, unformatted text. If the context doesn't contain enough information to answer the question, say so.`

// Chat answers the query from the notebook's indexed content, carrying
// recent conversation context. The model's raw text is returned verbatim.
func (e *Engine) Chat(ctx context.Context, query string, opts Options) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required: %w", errs.ErrValidation)
	}

	answer, err := e.chat(ctx, query, opts)
	if err != nil {
		if errors.Is(err, errs.ErrCredentials) {
			return "", fmt.Errorf("LLM API key not configured: %w", err)
		}
		return "", fmt.Errorf("failed to process chat query: %w", err)
	}
	return answer, nil
}

func (e *Engine) chat(ctx context.Context, query string, opts Options) (string, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 15
	}

	history := recentHistory(opts.ChatHistory)

	var retrieved []models.RetrievedDocument
	var err error
	if opts.UseHyDE {
		retrieved, err = e.hydeRetrieve(ctx, query, opts, topK, history)
	} else {
		retrieved, err = e.multiQueryRetrieve(ctx, query, opts, topK, history)
	}
	if err != nil {
		return "", err
	}

	prompt := buildAnswerPrompt(query, retrieved, history, opts.DetailLevel)

	e.logger.Debug("issuing final completion",
		"documents", len(retrieved),
		"history", len(history),
		"detail", string(opts.DetailLevel))

	return e.llm.Complete(ctx, prompt)
}

// multiQueryRetrieve expands the query, retrieves per expansion with
// reranking off, merges candidates deduplicating by document id (first
// occurrence wins), and reranks the merged set once against the original
// query.
func (e *Engine) multiQueryRetrieve(ctx context.Context, query string, opts Options, topK int, history []models.ChatMessage) ([]models.RetrievedDocument, error) {
	queries, err := e.GenerateQueryVariations(ctx, query, history)
	if err != nil {
		return nil, err
	}

	var merged []models.RetrievedDocument
	seen := make(map[string]bool)

	for _, q := range queries {
		docs, err := e.retriever.Retrieve(ctx, q, retrieval.Options{
			NotebookID:    opts.NotebookID,
			TopK:          topK * 2,
			SkipReranking: true,
		})
		if err != nil {
			return nil, err
		}

		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			merged = append(merged, doc)
		}
	}

	if opts.SkipReranking {
		if len(merged) > topK {
			merged = merged[:topK]
		}
		return merged, nil
	}

	return e.retriever.RerankDocuments(ctx, query, merged, topK), nil
}

// hydeRetrieve retrieves against a generated hypothetical answer instead
// of the raw query.
func (e *Engine) hydeRetrieve(ctx context.Context, query string, opts Options, topK int, history []models.ChatMessage) ([]models.RetrievedDocument, error) {
	hypothetical, err := e.GenerateHypotheticalAnswer(ctx, query, history)
	if err != nil {
		return nil, err
	}

	return e.retriever.Retrieve(ctx, hypothetical, retrieval.Options{
		NotebookID:    opts.NotebookID,
		TopK:          topK,
		SkipReranking: opts.SkipReranking,
	})
}

func buildAnswerPrompt(query string, docs []models.RetrievedDocument, history []models.ChatMessage, level models.DetailLevel) string {
	context := buildContext(docs)

	historyBlock := ""
	if rendered := formatHistoryParagraphs(history); rendered != "" {
		historyBlock = "Previous conversation:\n" + rendered + "\n\n"
	}

	return fmt.Sprintf(answerPromptFormat, context, historyBlock, strings.TrimSpace(query), detailInstruction(level))
}

// buildContext concatenates documents as numbered blocks in final ranked
// order. An empty result set gets an explicit marker so the model knows
// there was nothing to ground on.
func buildContext(docs []models.RetrievedDocument) string {
	if len(docs) == 0 {
		return "No relevant context found."
	}

	blocks := make([]string, len(docs))
	for i, doc := range docs {
		blocks[i] = fmt.Sprintf("[Document %d]\n%s", i+1, doc.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func formatHistoryParagraphs(history []models.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		label := "Assistant"
		if msg.Role == models.RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+msg.Content)
	}
	return strings.Join(lines, "\n\n")
}
