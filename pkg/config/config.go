package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. It is constructed once at
// startup, validated, and passed explicitly into each component; nothing
// reads it lazily from a global.
type Config struct {
	LLM struct {
		BaseURL        string  `yaml:"base_url"`
		APIKey         string  `yaml:"api_key"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		Temperature    float64 `yaml:"temperature"`
		MaxTokens      int     `yaml:"max_tokens"`
		TimeoutSecs    int     `yaml:"timeout_seconds"`
		RateLimit      float64 `yaml:"rate_limit"` // provider calls per second
	} `yaml:"llm"`

	Reranker struct {
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		Model       string `yaml:"model"`
		TimeoutSecs int    `yaml:"timeout_seconds"`
	} `yaml:"reranker"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Chunking struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		BatchSize    int `yaml:"batch_size"`
	} `yaml:"chunking"`

	Retrieval struct {
		TopK int `yaml:"top_k"`

		// Pointers so an absent key is distinguishable from an explicit
		// false; both default to true.
		UseReranking  *bool `yaml:"use_reranking"`
		UseMultiQuery *bool `yaml:"use_multi_query"`
	} `yaml:"retrieval"`

	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Loader struct {
		TimeoutSecs int     `yaml:"timeout_seconds"`
		RateLimit   float64 `yaml:"rate_limit"` // fetches per second
	} `yaml:"loader"`
}

// Load reads the configuration from path. An empty path tries the default
// locations; when none exists the built-in defaults (merged with the
// environment) are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/lorebook/config.yaml"),
			"/etc/lorebook/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.TimeoutSecs == 0 {
		config.LLM.TimeoutSecs = 60
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 5.0
	}

	if config.Reranker.BaseURL == "" {
		config.Reranker.BaseURL = "https://api.cohere.com"
	}
	if config.Reranker.Model == "" {
		config.Reranker.Model = "rerank-v3.5"
	}
	if config.Reranker.TimeoutSecs == 0 {
		config.Reranker.TimeoutSecs = 30
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "lorebook_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}

	if config.Chunking.ChunkSize == 0 {
		config.Chunking.ChunkSize = 1000
	}
	if config.Chunking.ChunkOverlap == 0 {
		config.Chunking.ChunkOverlap = 200
	}
	if config.Chunking.BatchSize == 0 {
		config.Chunking.BatchSize = 100
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 15
	}
	if config.Retrieval.UseReranking == nil {
		config.Retrieval.UseReranking = boolPtr(true)
	}
	if config.Retrieval.UseMultiQuery == nil {
		config.Retrieval.UseMultiQuery = boolPtr(true)
	}

	if config.Storage.DataDir == "" {
		config.Storage.DataDir = filepath.Join(os.Getenv("HOME"), ".local/share/lorebook")
	}

	if config.Loader.TimeoutSecs == 0 {
		config.Loader.TimeoutSecs = 30
	}
	if config.Loader.RateLimit == 0 {
		config.Loader.RateLimit = 2.0
	}
}

func boolPtr(b bool) *bool { return &b }

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("COHERE_API_KEY"); key != "" {
		config.Reranker.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
