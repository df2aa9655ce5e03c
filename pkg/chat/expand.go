package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lorebook/lorebook/internal/models"
)

// historyWindow caps how many trailing transcript messages feed the
// expansion and answer prompts.
const historyWindow = 20

var numberedLine = regexp.MustCompile(`^\d+\.\s*`)

const variationsPromptFormat = `Generate 4 alternative phrasings of this question that would help find relevant information. Consider the conversation context to make the variations more specific and relevant.%s

Original: %s

1.`

const hydePromptFormat = `Generate a brief, factual answer to the following question. Write as if you're providing information from a document.%s

Question: %s

Hypothetical answer:`

// GenerateQueryVariations asks the model for alternative phrasings of the
// query and returns the original followed by every variation that parses
// as a numbered list line. A sloppy response yields fewer variations, never
// an error.
func (e *Engine) GenerateQueryVariations(ctx context.Context, query string, history []models.ChatMessage) ([]string, error) {
	prompt := fmt.Sprintf(variationsPromptFormat, conversationContext(history), query)

	response, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query variations: %w", err)
	}

	queries := []string{query}
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !numberedLine.MatchString(line) {
			continue
		}
		variation := strings.TrimSpace(numberedLine.ReplaceAllString(line, ""))
		if variation != "" {
			queries = append(queries, variation)
		}
	}

	e.logger.Debug("expanded query", "original", query, "variations", len(queries)-1)
	return queries, nil
}

// GenerateHypotheticalAnswer produces a plausible document-style answer to
// the query. The synthetic text, not the query itself, is then embedded
// for retrieval.
func (e *Engine) GenerateHypotheticalAnswer(ctx context.Context, query string, history []models.ChatMessage) (string, error) {
	prompt := fmt.Sprintf(hydePromptFormat, conversationContext(history), query)

	answer, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate hypothetical answer: %w", err)
	}

	e.logger.Debug("generated hypothetical answer", "length", len(answer))
	return answer, nil
}

// conversationContext renders recent history as a labeled block, or
// nothing when the transcript is empty.
func conversationContext(history []models.ChatMessage) string {
	rendered := formatHistory(history)
	if rendered == "" {
		return ""
	}
	return "\n\nConversation context:\n" + rendered + "\n"
}

func formatHistory(history []models.ChatMessage) string {
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
	return strings.Join(lines, "\n")
}

func recentHistory(history []models.ChatMessage) []models.ChatMessage {
	if len(history) > historyWindow {
		return history[len(history)-historyWindow:]
	}
	return history
}
