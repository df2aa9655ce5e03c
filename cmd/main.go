package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/lorebook/lorebook/internal/types"
	"github.com/lorebook/lorebook/pkg/chat"
	"github.com/lorebook/lorebook/pkg/config"
	"github.com/lorebook/lorebook/pkg/ingest"
	"github.com/lorebook/lorebook/pkg/llm"
	"github.com/lorebook/lorebook/pkg/loader"
	"github.com/lorebook/lorebook/pkg/notebook"
	"github.com/lorebook/lorebook/pkg/rerank"
	"github.com/lorebook/lorebook/pkg/retrieval"
	"github.com/lorebook/lorebook/pkg/splitter"
	"github.com/lorebook/lorebook/pkg/store"
	wsserver "github.com/lorebook/lorebook/server"
)

func main() {
	var (
		configPath string
		serveAddr  string
		notebookID string
		verbose    bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&serveAddr, "serve", "", "Run the WebSocket server on this address instead of the chat loop")
	flag.StringVar(&notebookID, "notebook", "", "Notebook to open on start")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(configPath, serveAddr, notebookID, logger); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(configPath, serveAddr, notebookID string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			color.Red("config: %s", p.Error())
		}
		return fmt.Errorf("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmClient, err := llm.NewWithConfig(llm.ClientConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RateLimit:      cfg.LLM.RateLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	var reranker *rerank.Client
	if cfg.Reranker.APIKey != "" {
		reranker, err = rerank.NewWithConfig(rerank.ClientConfig{
			BaseURL: cfg.Reranker.BaseURL,
			APIKey:  cfg.Reranker.APIKey,
			Model:   cfg.Reranker.Model,
			Timeout: time.Duration(cfg.Reranker.TimeoutSecs) * time.Second,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize reranker: %w", err)
		}
	} else {
		logger.Warn("no reranker API key configured, results keep vector distance order")
	}

	docLoader := loader.NewWithConfig(loader.LoaderConfig{
		Timeout:   time.Duration(cfg.Loader.TimeoutSecs) * time.Second,
		RateLimit: cfg.Loader.RateLimit,
	}, logger)

	split := splitter.NewWithConfig(splitter.SplitterConfig{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})

	notebooks := notebook.NewService(notebook.NewStorage(cfg.Storage.DataDir), vectorStore, logger)

	ingestEngine := ingest.New(ingest.EngineConfig{
		BatchSize: cfg.Chunking.BatchSize,
	}, docLoader, split, llmClient, vectorStore, notebooks, logger)

	// A nil interface value, not a typed nil, when no reranker is set.
	retrievalEngine := retrieval.New(llmClient, vectorStore, rerankerOrNil(reranker), logger)

	chatEngine := chat.New(llmClient, retrievalEngine, logger)

	if serveAddr != "" {
		srv := wsserver.New(chatEngine, ingestEngine, notebooks, wsserver.Options{
			TopK:          cfg.Retrieval.TopK,
			UseMultiQuery: *cfg.Retrieval.UseMultiQuery,
			UseReranking:  *cfg.Retrieval.UseReranking,
		}, logger)
		return srv.Run(ctx, serveAddr)
	}

	repl := &repl{
		config:       cfg,
		notebooks:    notebooks,
		ingestEngine: ingestEngine,
		chatEngine:   chatEngine,
		notebookID:   notebookID,
	}
	return repl.run(ctx)
}

func rerankerOrNil(c *rerank.Client) types.Reranker {
	if c == nil {
		return nil
	}
	return c
}
