package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Search    SearchConfig    `mapstructure:"search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // "endee" or "qdrant"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	BatchSize  int    `mapstructure:"batch_size"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// BaseURL builds the HTTP base URL for REST-style store drivers.
func (s StoreConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // "hashing" or "openai"
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Dimension int    `mapstructure:"dimension"`
	BatchSize int    `mapstructure:"batch_size"`
}

type ChunkingConfig struct {
	ChunkSize       int `mapstructure:"chunk_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap"`
	MinParagraphLen int `mapstructure:"min_paragraph_len"`
}

type SearchConfig struct {
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // "openai", "anthropic" or "none"
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     "endee",
			Host:       "localhost",
			Port:       3000,
			Collection: "research_papers",
			BatchSize:  100,
			TimeoutSec: 30,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hashing",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			ChunkSize:       500,
			ChunkOverlap:    50,
			MinParagraphLen: 50,
		},
		Search: SearchConfig{
			TopK:                10,
			SimilarityThreshold: 0.5,
		},
		LLM: LLMConfig{
			Provider:  "none",
			Model:     "gpt-4o-mini",
			MaxTokens: 500,
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Store.Driver != "endee" && c.Store.Driver != "qdrant" {
		warnings = append(warnings, fmt.Sprintf("unknown store driver %q, expected endee or qdrant", c.Store.Driver))
	}
	if c.Store.Port <= 0 {
		warnings = append(warnings, fmt.Sprintf("store port %d is not positive", c.Store.Port))
	}
	if c.Embedding.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding dimension %d is not positive", c.Embedding.Dimension))
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		warnings = append(warnings, "embedding provider 'openai' is configured but api_key is empty")
	}
	if c.Chunking.ChunkSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("chunk size %d is not positive", c.Chunking.ChunkSize))
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize && c.Chunking.ChunkSize > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk overlap %d is not smaller than chunk size %d", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize))
	}
	if c.Search.SimilarityThreshold < -1 || c.Search.SimilarityThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("similarity threshold %.2f is outside [-1, 1]", c.Search.SimilarityThreshold))
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	return warnings
}

// Load reads configuration from file and environment.
// An empty path loads defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.host", defaults.Store.Host)
	v.SetDefault("store.port", defaults.Store.Port)
	v.SetDefault("store.collection", defaults.Store.Collection)
	v.SetDefault("store.batch_size", defaults.Store.BatchSize)
	v.SetDefault("store.timeout_sec", defaults.Store.TimeoutSec)
	v.SetDefault("embedding.provider", defaults.Embedding.Provider)
	v.SetDefault("embedding.model", defaults.Embedding.Model)
	v.SetDefault("embedding.dimension", defaults.Embedding.Dimension)
	v.SetDefault("embedding.batch_size", defaults.Embedding.BatchSize)
	v.SetDefault("chunking.chunk_size", defaults.Chunking.ChunkSize)
	v.SetDefault("chunking.chunk_overlap", defaults.Chunking.ChunkOverlap)
	v.SetDefault("chunking.min_paragraph_len", defaults.Chunking.MinParagraphLen)
	v.SetDefault("search.top_k", defaults.Search.TopK)
	v.SetDefault("search.similarity_threshold", defaults.Search.SimilarityThreshold)
	v.SetDefault("llm.provider", defaults.LLM.Provider)
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
