// Package retriever ranks indexed chunks against a query.
package retriever

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/similarity"
)

const (
	// DefaultLimit is the number of chunks returned when the caller passes 0.
	DefaultLimit = 8

	// DefaultThreshold is the relevance cutoff; only scores strictly above it are kept.
	DefaultThreshold = 0.35
)

// ErrRetrievalUnavailable means the query could not be embedded.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// SnapshotSource provides the snapshot to search. *index.Store satisfies it.
type SnapshotSource interface {
	Snapshot() *index.Snapshot
}

// Request describes one search. A zero Limit or a nil Threshold selects the
// retriever's defaults. Any explicit Threshold is honored, including 0.
type Request struct {
	Text      string
	Limit     int
	Threshold *float64
}

// Retriever embeds queries and scores them against the current snapshot.
// It never mutates the snapshot.
type Retriever struct {
	source    SnapshotSource
	embedder  index.Embedder
	limit     int
	threshold float64
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLimit sets the default result count.
func WithLimit(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithThreshold sets the default relevance cutoff.
func WithThreshold(t float64) Option {
	return func(r *Retriever) {
		r.threshold = t
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Retriever over source using embedder for queries.
func New(source SnapshotSource, embedder index.Embedder, opts ...Option) (*Retriever, error) {
	if source == nil {
		return nil, errors.New("retriever: snapshot source must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("retriever: embedder must not be nil")
	}

	r := &Retriever{
		source:    source,
		embedder:  embedder,
		limit:     DefaultLimit,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Query returns up to limit chunks scoring above the default threshold, best first.
func (r *Retriever) Query(ctx context.Context, text string, limit int) ([]index.ScoredChunk, error) {
	return r.Search(ctx, Request{Text: text, Limit: limit})
}

// Search ranks every chunk of the current snapshot against req.Text.
//
// An empty snapshot returns no results without calling the embedder. A failed
// query embedding returns an error wrapping ErrRetrievalUnavailable. Chunks
// without a vector, or whose vector cannot be compared, never pass the cutoff.
// Equal scores keep snapshot order.
func (r *Retriever) Search(ctx context.Context, req Request) ([]index.ScoredChunk, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = r.limit
	}
	threshold := r.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	snap := r.source.Snapshot()
	if snap == nil || snap.Empty() {
		return []index.ScoredChunk{}, nil
	}

	query, err := r.embedder.Embed(ctx, req.Text)
	if err != nil {
		r.logger.Warn("Query embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	scored := Rank(query, snap.Chunks())

	results := make([]index.ScoredChunk, 0, min(limit, len(scored)))
	for _, sc := range scored {
		if len(results) == limit {
			break
		}
		if !similarity.IsScored(sc.Score) || sc.Score <= threshold {
			// Sorted descending: nothing after this can pass.
			break
		}
		results = append(results, sc)
	}

	r.logger.Debug("Retrieved chunks",
		"candidates", len(scored),
		"returned", len(results),
		"threshold", threshold,
		"generation", snap.Generation(),
	)

	return results, nil
}

// Rank scores every chunk against query and sorts by score descending.
// The sort is stable and unscored chunks carry similarity.Unscored.
func Rank(query []float32, chunks []index.Chunk) []index.ScoredChunk {
	scored := make([]index.ScoredChunk, len(chunks))
	for i, c := range chunks {
		score := similarity.Unscored
		if c.Embedded() {
			score = similarity.Cosine(query, c.Embedding)
		}
		scored[i] = index.ScoredChunk{Chunk: c, Score: score}
	}

	slices.SortStableFunc(scored, func(a, b index.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scored
}
