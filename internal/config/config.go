// Package config loads report-rag settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Server configuration
	Port         string `env:"PORT" envDefault:"8080"`
	ServerMode   bool   `env:"SERVER_MODE" envDefault:"false"`
	MCPStateless bool   `env:"MCP_STATELESS" envDefault:"false"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	GitHubToken  string `env:"GITHUB_TOKEN"`

	Embedding EmbeddingConfig `envPrefix:"EMBEDDING_"`
	Chat      ChatConfig      `envPrefix:"CHAT_"`
	Index     IndexConfig     `envPrefix:"INDEX_"`
	Retrieval RetrievalConfig `envPrefix:"RETRIEVAL_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Qdrant    QdrantConfig    `envPrefix:"QDRANT_"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type EmbeddingConfig struct {
	BaseURL    string        `env:"BASE_URL"`
	Model      string        `env:"MODEL" envDefault:"text-embedding-3-small"`
	Dimensions int           `env:"DIMENSIONS" envDefault:"0"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
	// RetryMaxElapsed of zero disables retries on rate limits.
	RetryMaxElapsed time.Duration `env:"RETRY_MAX_ELAPSED" envDefault:"30s"`
	// CacheTTL of zero disables the embedding cache.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"0s"`
}

type ChatConfig struct {
	BaseURL          string `env:"BASE_URL"`
	Model            string `env:"MODEL" envDefault:"gpt-4o"`
	MaxContextTokens int    `env:"MAX_CONTEXT_TOKENS" envDefault:"16000"`
}

type IndexConfig struct {
	ChunkSize     int           `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap  int           `env:"CHUNK_OVERLAP" envDefault:"200"`
	EmbedInterval time.Duration `env:"EMBED_INTERVAL" envDefault:"100ms"`
}

type RetrievalConfig struct {
	Threshold float64 `env:"THRESHOLD" envDefault:"0.35"`
	Limit     int     `env:"LIMIT" envDefault:"8"`
}

type SessionConfig struct {
	TTL time.Duration `env:"TTL" envDefault:"30m"`
}

// QdrantConfig configures the optional snapshot mirror.
type QdrantConfig struct {
	Enabled    bool   `env:"ENABLED" envDefault:"false"`
	Host       string `env:"HOST" envDefault:"localhost"`
	Port       int    `env:"PORT" envDefault:"6334"`
	Collection string `env:"COLLECTION" envDefault:"report_chunks"`
	Dimension  uint64 `env:"DIMENSION" envDefault:"1536"`
}

// nativeDimensions lists the default vector length of well-known embedding models.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
}

// VectorDimension returns the length of the vectors the embedding model will
// return: EMBEDDING_DIMENSIONS when set, otherwise the model's native length.
// It returns 0 when the length cannot be known before the first call.
func (e EmbeddingConfig) VectorDimension() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return nativeDimensions[e.Model]
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("INDEX_CHUNK_SIZE must be positive, got %d", c.Index.ChunkSize))
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("INDEX_CHUNK_OVERLAP must be in [0, INDEX_CHUNK_SIZE), got %d", c.Index.ChunkOverlap))
	}
	if c.Index.EmbedInterval < 0 {
		errs = append(errs, fmt.Errorf("INDEX_EMBED_INTERVAL must not be negative, got %s", c.Index.EmbedInterval))
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_THRESHOLD must be in [-1, 1), got %g", c.Retrieval.Threshold))
	}
	if c.Retrieval.Limit <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_LIMIT must be positive, got %d", c.Retrieval.Limit))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.Session.TTL))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative, got %d", c.Embedding.Dimensions))
	}
	if c.Qdrant.Enabled {
		if c.Qdrant.Dimension == 0 {
			errs = append(errs, errors.New("QDRANT_DIMENSION must be positive when QDRANT_ENABLED is set"))
		} else if dim := c.Embedding.VectorDimension(); dim > 0 && uint64(dim) != c.Qdrant.Dimension {
			errs = append(errs, fmt.Errorf("QDRANT_DIMENSION %d does not match the %d-dimensional vectors of embedding model %s",
				c.Qdrant.Dimension, dim, c.Embedding.Model))
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ChatBaseURL falls back to the embedding endpoint when no chat endpoint is set.
func (c *Config) ChatBaseURL() string {
	if c.Chat.BaseURL != "" {
		return c.Chat.BaseURL
	}
	return c.Embedding.BaseURL
}

// NewLogger builds a text logger on stderr; stdout is reserved for the stdio MCP transport.
func NewLogger(level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", level)
	}
	return lvl, nil
}
