package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/bull/report-rag/internal/config"
	"github.com/bull/report-rag/internal/embedding"
	"github.com/bull/report-rag/internal/index"
)

// fakeOpenAI embeds texts mentioning "speech" on one axis and everything else on another.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vec := []float64{0, 1}
		if strings.Contains(strings.ToLower(req.Input), "speech") {
			vec = []float64{1, 0}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-model",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_BASE_URL", baseURL)
	t.Setenv("INDEX_EMBED_INTERVAL", "0s")
	t.Setenv("INDEX_CHUNK_SIZE", "40")
	t.Setenv("INDEX_CHUNK_OVERLAP", "10")
	cfg, err := config.Parse()
	require.NoError(t, err)
	return cfg
}

func TestNew_RequiresAPIKey(t *testing.T) {
	cfg, err := config.Parse()
	require.NoError(t, err)
	cfg.OpenAIAPIKey = ""

	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNew_EndToEnd(t *testing.T) {
	srv := fakeOpenAI(t)
	a, err := New(context.Background(), testConfig(t, srv.URL+"/v1/"), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Storage, "mirror is off by default")

	result, err := a.Pipeline.RunDocuments(context.Background(), "s", []index.Document{
		{ID: "r1", Date: "2024-01-01", Category: "Speech Therapy", Content: "Speech sessions twice a week."},
		{ID: "r2", Date: "2024-02-01", Category: "School", Content: "Joined group games at recess with peers and teachers."},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalDocs)
	assert.Greater(t, result.TotalChunks, 2, "configured chunk size splits the longer report")
	assert.Equal(t, result.TotalChunks, result.EmbeddedChunks)

	sess, err := a.Sessions.Lookup("s")
	require.NoError(t, err)

	chunks, err := sess.Retriever.Query(context.Background(), "speech progress", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "r1", chunks[0].DocumentID)
}

func TestNewEmbedder_Composition(t *testing.T) {
	client, err := embedding.NewClient(embedding.ClientConfig{APIKey: "sk-test"})
	require.NoError(t, err)

	plain := NewEmbedder(client, config.EmbeddingConfig{})
	assert.IsType(t, &embedding.Embedder{}, plain)

	retrying := NewEmbedder(client, config.EmbeddingConfig{RetryMaxElapsed: time.Second})
	assert.IsType(t, &embedding.Retrying{}, retrying)

	cached := NewEmbedder(client, config.EmbeddingConfig{RetryMaxElapsed: time.Second, CacheTTL: time.Minute})
	assert.IsType(t, &embedding.Cached{}, cached)
}

func TestThrottle(t *testing.T) {
	assert.Equal(t, rate.Inf, Throttle(0).Limit())
	assert.InDelta(t, 10.0, float64(Throttle(100*time.Millisecond).Limit()), 1e-9)
}
