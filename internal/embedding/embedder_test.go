package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// newFakeProvider serves /embeddings with handler and returns a client pointed at it.
func newFakeProvider(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	return client
}

func writeEmbedding(w http.ResponseWriter, vec []float64) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  "test-model",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"usage": map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": "provider says no", "type": "server_error"},
	})
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	client := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEmbedding(w, []float64{0.25, -0.5, 1})
	})

	e := NewEmbedder(client, "text-embedding-004", 3)
	vec, err := e.Embed(context.Background(), "speech therapy progress")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "speech therapy progress", got.Input)
	assert.Equal(t, "text-embedding-004", got.Model)
	assert.Equal(t, 3, got.Dimensions)
}

func TestEmbedder_DefaultModel(t *testing.T) {
	e := NewEmbedder(nil, "", 0)
	assert.Equal(t, DefaultModel, e.Model())
}

func TestEmbedder_ProviderError(t *testing.T) {
	client := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError)
	})

	_, err := NewEmbedder(client, "", 0).Embed(context.Background(), "text")

	require.ErrorIs(t, err, ErrEmbeddingFailure)
	var embErr *Error
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, http.StatusInternalServerError, embErr.StatusCode)
	assert.False(t, embErr.RateLimited())
}

func TestEmbedder_EmptyVector(t *testing.T) {
	client := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbedding(w, []float64{})
	})

	_, err := NewEmbedder(client, "", 0).Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingFailure)
}

func TestEmbedder_NoRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusTooManyRequests)
	})

	_, err := NewEmbedder(client, "", 0).Embed(context.Background(), "text")

	var embErr *Error
	require.True(t, errors.As(err, &embErr))
	assert.True(t, embErr.RateLimited())
	assert.Equal(t, int32(1), calls.Load())
}

// stubProvider returns queued results in order.
type stubProvider struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	vec []float32
	err error
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.vec, r.err
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestWithRetry_RetriesRateLimit(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &Error{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}},
		{err: &Error{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}},
		{vec: []float32{1, 2}},
	}}

	vec, err := WithRetry(stub, fastRetry()).Embed(context.Background(), "text")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, 3, stub.calls)
}

func TestWithRetry_PermanentError(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &Error{StatusCode: http.StatusBadRequest, Err: errors.New("bad input")}},
	}}

	_, err := WithRetry(stub, fastRetry()).Embed(context.Background(), "text")

	require.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.Equal(t, 1, stub.calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &Error{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(stub, DefaultRetryConfig()).Embed(ctx, "text")
	require.Error(t, err)
	assert.LessOrEqual(t, stub.calls, 1)
}

func TestWithCache(t *testing.T) {
	stub := &stubProvider{results: []stubResult{{vec: []float32{0.5, 0.5}}}}
	cached := WithCache(stub, time.Minute)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "same text")
	require.NoError(t, err)
	first[0] = 99 // callers must not be able to poison the cache

	second, err := cached.Embed(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, 0.5}, second)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 1, cached.Len())

	_, err = cached.Embed(ctx, "other text")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestWithCache_DoesNotCacheFailures(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &Error{Err: errors.New("boom")}},
		{vec: []float32{1}},
	}}
	cached := WithCache(stub, time.Minute)

	_, err := cached.Embed(context.Background(), "text")
	require.Error(t, err)

	vec, err := cached.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 2, stub.calls)
}
