// Package llm wraps the embedding and completion providers behind the
// interfaces the pipeline consumes. All provider I/O goes through here:
// every call is rate limited, bounded by a timeout, and classified into the
// shared error taxonomy at this boundary.
package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/lorebook/lorebook/internal/errs"
)

// ClientConfig configures the OpenAI-compatible provider client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	RateLimit      float64 // provider calls per second
}

// Client issues embedding and completion calls against one provider
// endpoint. It is safe for concurrent use.
type Client struct {
	config  ClientConfig
	llm     *openai.LLM
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "text-embedding-3-small"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("llm client: %w", errs.ErrCredentials)
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", classify(err))
	}

	return &Client{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}, nil
}

// classify converts a raw provider error into the shared taxonomy. This is
// the only place credential failures are recognized; everything downstream
// uses errors.Is. langchaingo does not expose response status codes, so
// rejected-key responses are recognized by their status text here, at the
// call site that issued the request.
func classify(err error) error {
	if errors.Is(err, openai.ErrMissingToken) {
		return fmt.Errorf("%w: %w", errs.ErrCredentials, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "401") || strings.Contains(msg, "API key") || strings.Contains(msg, "Unauthorized") {
		return fmt.Errorf("%w: %w", errs.ErrCredentials, err)
	}

	return fmt.Errorf("%w: %w", errs.ErrProvider, err)
}
