package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector size of text-embedding-3-small.
	DefaultDimension = 1536
)

// Provider turns one text into one vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Provider = (*Embedder)(nil)

// Embedder generates a single embedding per call against an OpenAI-compatible API.
// It never retries; wrap it with WithRetry for that.
type Embedder struct {
	client     *Client
	model      string
	dimensions int
}

// NewEmbedder creates an Embedder. An empty model selects DefaultModel;
// dimensions <= 0 leaves the provider default.
func NewEmbedder(client *Client, model string, dimensions int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// Model returns the configured model name.
func (e *Embedder) Model() string {
	return e.model
}

// Embed sends one request for text. Every failure is an *Error.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, wrapProviderError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &Error{Err: errors.New("provider returned no embedding")}
	}

	return toFloat32(resp.Data[0].Embedding), nil
}

func wrapProviderError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &Error{Err: fmt.Errorf("request: %w", err)}
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
