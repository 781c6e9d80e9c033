// Package index holds the session-scoped, in-memory chunk index and keeps it
// in step with the caller's document set.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bull/report-rag/internal/chunker"
)

// DefaultEmbedInterval is the minimum spacing between embedding calls during Sync.
const DefaultEmbedInterval = 100 * time.Millisecond

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Throttle paces outbound embedding calls. *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Mirror receives every newly published snapshot. Errors are logged, never returned.
type Mirror interface {
	Replace(ctx context.Context, snap *Snapshot) error
}

// SyncResult contains statistics about a Sync call.
// TotalChunks != EmbeddedChunks means the index is degraded.
type SyncResult struct {
	Skipped        bool
	TotalDocs      int
	TotalChunks    int
	EmbeddedChunks int
	FailedChunks   int
	Generation     uint64
	Duration       time.Duration
}

// Stats describes the current snapshot.
type Stats struct {
	Documents      int
	Chunks         int
	EmbeddedChunks int
	Generation     uint64
	BuiltAt        time.Time
}

// Store owns one snapshot and rebuilds it when the document set changes.
// Concurrent Sync calls must be serialized by the caller; reads are always safe.
type Store struct {
	embedder   Embedder
	chunker    *chunker.Chunker
	throttle   Throttle
	mirror     Mirror
	logger     *slog.Logger
	snapshot   atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// Option configures a Store.
type Option func(*Store) error

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(s *Store) error {
		c, err := chunker.New(size, overlap)
		if err != nil {
			return err
		}
		s.chunker = c
		return nil
	}
}

// WithThrottle replaces the default 100ms rate limiter.
func WithThrottle(t Throttle) Option {
	return func(s *Store) error {
		s.throttle = t
		return nil
	}
}

// WithMirror publishes every rebuilt snapshot to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) error {
		s.mirror = m
		return nil
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// New creates an empty Store. Invalid chunking returns chunker.ErrInvalidConfiguration.
func New(embedder Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		embedder: embedder,
		chunker:  chunker.NewDefault(),
		throttle: rate.NewLimiter(rate.Every(DefaultEmbedInterval), 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.snapshot.Store(emptySnapshot())
	return s, nil
}

// Snapshot returns the currently published snapshot. It is never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Stats reports counts for the current snapshot.
func (s *Store) Stats() Stats {
	snap := s.Snapshot()
	return Stats{
		Documents:      len(snap.docIDs),
		Chunks:         snap.Len(),
		EmbeddedChunks: snap.EmbeddedCount(),
		Generation:     snap.Generation(),
		BuiltAt:        snap.BuiltAt(),
	}
}

// Sync makes the index reflect docs.
//
// If the document id set equals the indexed one and the snapshot is non-empty,
// Sync returns immediately with Skipped set. Otherwise every document is
// re-chunked and re-embedded sequentially, pausing on the throttle before each
// call. A chunk whose embedding fails is kept without a vector. The new
// snapshot replaces the old one only after every chunk has been processed; if
// ctx is cancelled first, the previous snapshot stays and ctx's error is returned.
func (s *Store) Sync(ctx context.Context, docs []Document) (*SyncResult, error) {
	start := time.Now()
	current := s.Snapshot()

	docs = s.dedupe(docs)
	ids := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		ids[d.ID] = struct{}{}
	}

	if !current.Empty() && current.sameDocuments(ids) {
		s.logger.Debug("Document set unchanged, skipping sync", "docs", len(ids))
		return &SyncResult{
			Skipped:        true,
			TotalDocs:      len(ids),
			TotalChunks:    current.Len(),
			EmbeddedChunks: current.EmbeddedCount(),
			Generation:     current.Generation(),
			Duration:       time.Since(start),
		}, nil
	}

	s.logger.Info("Starting index rebuild", "docs", len(docs))

	chunks := s.chunkAll(docs)
	result := &SyncResult{
		TotalDocs:   len(docs),
		TotalChunks: len(chunks),
	}

	for i := range chunks {
		if err := s.throttle.Wait(ctx); err != nil {
			s.logger.Warn("Sync aborted while throttled", "processed", i, "total", len(chunks), "error", err)
			return nil, fmt.Errorf("sync aborted: %w", err)
		}

		vec, err := s.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.logger.Warn("Sync aborted", "processed", i, "total", len(chunks), "error", ctxErr)
				return nil, fmt.Errorf("sync aborted: %w", ctxErr)
			}
			s.logger.Warn("Failed to embed chunk, keeping it unscored",
				"chunk", chunks[i].ID, "error", err)
			result.FailedChunks++
			continue
		}

		chunks[i].Embedding = vec
		result.EmbeddedChunks++
	}

	next := newSnapshot(chunks, ids, s.generation.Add(1))
	s.snapshot.Store(next)

	result.Generation = next.Generation()
	result.Duration = time.Since(start)

	s.logger.Info("Index rebuild complete",
		"docs", result.TotalDocs,
		"chunks", result.TotalChunks,
		"embedded", result.EmbeddedChunks,
		"failed", result.FailedChunks,
		"generation", result.Generation,
		"duration", result.Duration,
	)

	if s.mirror != nil {
		if err := s.mirror.Replace(ctx, next); err != nil {
			s.logger.Warn("Failed to mirror snapshot", "generation", next.Generation(), "error", err)
		}
	}

	return result, nil
}

// chunkAll splits every document and copies its metadata into each chunk.
func (s *Store) chunkAll(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for ordinal, text := range s.chunker.Split(doc.Content) {
			chunks = append(chunks, Chunk{
				ID:           ChunkID(doc.ID, ordinal),
				DocumentID:   doc.ID,
				DocumentDate: doc.Date,
				Category:     doc.Category,
				Ordinal:      ordinal,
				Content:      text,
			})
		}
	}
	return chunks
}

// dedupe keeps the first document for each id.
func (s *Store) dedupe(docs []Document) []Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			s.logger.Warn("Duplicate document id, ignoring later occurrence", "id", d.ID)
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Fingerprint identifies a document id set independent of order and duplicates.
func Fingerprint(docs []Document) string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return hex.EncodeToString(sum[:])
}
