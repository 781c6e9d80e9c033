package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.ServerMode)
	assert.False(t, cfg.MCPStateless)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 30*time.Second, cfg.Embedding.RetryMaxElapsed)
	assert.Zero(t, cfg.Embedding.CacheTTL)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 100*time.Millisecond, cfg.Index.EmbedInterval)
	assert.Equal(t, 0.35, cfg.Retrieval.Threshold)
	assert.Equal(t, 8, cfg.Retrieval.Limit)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.False(t, cfg.Qdrant.Enabled)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "report_chunks", cfg.Qdrant.Collection)
}

func TestParse_FromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("PORT", "9090")
	t.Setenv("EMBEDDING_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-004")
	t.Setenv("INDEX_CHUNK_SIZE", "500")
	t.Setenv("INDEX_CHUNK_OVERLAP", "100")
	t.Setenv("RETRIEVAL_THRESHOLD", "0.5")
	t.Setenv("QDRANT_ENABLED", "true")
	t.Setenv("QDRANT_HOST", "qdrant")
	t.Setenv("QDRANT_DIMENSION", "768")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.True(t, cfg.ServerMode)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.Retrieval.Threshold)
	assert.True(t, cfg.Qdrant.Enabled)
	assert.Equal(t, "qdrant", cfg.Qdrant.Host)
	assert.Equal(t, uint64(768), cfg.Qdrant.Dimension)
	assert.Equal(t, cfg.Embedding.BaseURL, cfg.ChatBaseURL())
}

func TestParse_CollectsAllViolations(t *testing.T) {
	t.Setenv("INDEX_CHUNK_SIZE", "100")
	t.Setenv("INDEX_CHUNK_OVERLAP", "100")
	t.Setenv("RETRIEVAL_LIMIT", "0")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INDEX_CHUNK_OVERLAP")
	assert.Contains(t, err.Error(), "RETRIEVAL_LIMIT")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestParse_QdrantDimensionMatchesEmbeddings(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		dims      string
		qdrantDim string
		wantErr   bool
	}{
		{"default model and dimension", "", "", "", false},
		{"large model with default dimension", "text-embedding-3-large", "", "", true},
		{"large model with matching dimension", "text-embedding-3-large", "", "3072", false},
		{"explicit dimensions match", "text-embedding-3-large", "256", "256", false},
		{"explicit dimensions differ", "", "512", "1536", true},
		{"unknown model is not checked", "nomic-embed-text", "", "768", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QDRANT_ENABLED", "true")
			if tt.model != "" {
				t.Setenv("EMBEDDING_MODEL", tt.model)
			}
			if tt.dims != "" {
				t.Setenv("EMBEDDING_DIMENSIONS", tt.dims)
			}
			if tt.qdrantDim != "" {
				t.Setenv("QDRANT_DIMENSION", tt.qdrantDim)
			}

			_, err := Parse()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "QDRANT_DIMENSION")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParse_DimensionsIgnoredWithoutQdrant(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 3072, cfg.Embedding.VectorDimension())
}

func TestParse_MalformedValue(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")

	_, err := Parse()
	require.Error(t, err)
}

func TestChatBaseURL_Override(t *testing.T) {
	cfg := &Config{
		Embedding: EmbeddingConfig{BaseURL: "https://embed.example/v1/"},
		Chat:      ChatConfig{BaseURL: "https://chat.example/v1/"},
	}
	assert.Equal(t, "https://chat.example/v1/", cfg.ChatBaseURL())
}

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger("debug")
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	logger = NewLogger("not-a-level")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}
