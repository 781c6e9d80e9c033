package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/bull/report-rag/internal/chunker"
)

// fakeEmbedder returns a fixed vector per call and fails for texts containing failOn.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
	hook   func(call int)
}

var errFake = errors.New("provider unavailable")

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.hook != nil {
		f.hook(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errFake
	}
	return []float32{1, float32(len(text))}, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingThrottle struct {
	waits int
}

func (c *countingThrottle) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

type recordingMirror struct {
	snaps []*Snapshot
	err   error
}

func (m *recordingMirror) Replace(ctx context.Context, snap *Snapshot) error {
	m.snaps = append(m.snaps, snap)
	return m.err
}

func newTestStore(t *testing.T, e Embedder, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithThrottle(rate.NewLimiter(rate.Inf, 1))}, opts...)
	s, err := New(e, opts...)
	require.NoError(t, err)
	return s
}

func reports() []Document {
	return []Document{
		{ID: "r1", Date: "2024-01-10", Category: "Speech Therapy", Content: "Child used two-word phrases during play."},
		{ID: "r2", Date: "2024-02-14", Category: "Occupational Therapy", Content: "Improved tolerance to textures."},
		{ID: "r3", Date: "2024-03-20", Category: "School", Content: "Participated in circle time with support."},
	}
}

func TestNew_InvalidChunking(t *testing.T) {
	_, err := New(&fakeEmbedder{}, WithChunking(10, 10))
	require.ErrorIs(t, err, chunker.ErrInvalidConfiguration)
}

func TestNew_EmptySnapshot(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})
	snap := s.Snapshot()

	require.NotNil(t, snap)
	assert.True(t, snap.Empty())
	assert.Zero(t, snap.Generation())
}

func TestSync_BuildsSnapshot(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	result, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, result.EmbeddedChunks)
	assert.Zero(t, result.FailedChunks)
	assert.Equal(t, uint64(1), result.Generation)

	chunks := s.Snapshot().Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "r1_0", chunks[0].ID)
	assert.Equal(t, "r1", chunks[0].DocumentID)
	assert.Equal(t, "2024-01-10", chunks[0].DocumentDate)
	assert.Equal(t, "Speech Therapy", chunks[0].Category)
	assert.True(t, chunks[0].Embedded())
	assert.Equal(t, []string{"r1", "r2", "r3"}, s.Snapshot().DocumentIDs())
}

func TestSync_Idempotent(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)
	ctx := context.Background()

	_, err := s.Sync(ctx, reports())
	require.NoError(t, err)
	before := emb.Calls()
	first := s.Snapshot()

	// Same ids in a different order with different content: still unchanged.
	docs := reports()
	docs[0], docs[2] = docs[2], docs[0]
	docs[1].Content = "edited"

	result, err := s.Sync(ctx, docs)
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, before, emb.Calls())
	assert.Same(t, first, s.Snapshot())
}

func TestSync_RebuildOnAddAndRemove(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)
	ctx := context.Background()

	_, err := s.Sync(ctx, reports())
	require.NoError(t, err)

	added := append(reports(), Document{ID: "r4", Date: "2024-04-01", Category: "Psychology", Content: "New report."})
	result, err := s.Sync(ctx, added)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 4, s.Snapshot().Len())
	assert.Equal(t, 3+4, emb.Calls())

	removed := reports()[1:]
	_, err = s.Sync(ctx, removed)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.False(t, snap.HasDocument("r1"))
	for _, c := range snap.Chunks() {
		assert.NotEqual(t, "r1", c.DocumentID)
	}
	assert.Equal(t, uint64(3), snap.Generation())
}

func TestSync_PartialFailure(t *testing.T) {
	emb := &fakeEmbedder{failOn: "textures"}
	s := newTestStore(t, emb)

	result, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 2, result.EmbeddedChunks)
	assert.Equal(t, 1, result.FailedChunks)

	snap := s.Snapshot()
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, 2, snap.EmbeddedCount())
	assert.False(t, snap.Chunks()[1].Embedded())
	assert.Equal(t, "r2_0", snap.Chunks()[1].ID)
}

func TestSync_AllEmbeddingsFail(t *testing.T) {
	emb := &fakeEmbedder{failOn: " "}
	s := newTestStore(t, emb)

	result, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)
	assert.Zero(t, result.EmbeddedChunks)
	assert.Equal(t, 3, s.Snapshot().Len())
}

func TestSync_CancelledKeepsPreviousSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	_, err := s.Sync(ctx, reports())
	require.NoError(t, err)
	previous := s.Snapshot()

	emb.hook = func(call int) {
		if call == 5 {
			cancel()
		}
	}
	changed := append(reports(), Document{ID: "r4", Content: "Another report."})

	result, err := s.Sync(ctx, changed)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Same(t, previous, s.Snapshot())
}

func TestSync_ThrottledBeforeEveryCall(t *testing.T) {
	throttle := &countingThrottle{}
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, WithThrottle(throttle))

	_, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)

	assert.Equal(t, emb.Calls(), throttle.waits)
}

func TestSync_DuplicateIDsFirstWins(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	docs := append(reports(), Document{ID: "r1", Content: "A later duplicate."})
	result, err := s.Sync(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, "Child used two-word phrases during play.", s.Snapshot().Chunks()[0].Content)
}

func TestSync_MultipleChunksPerDocument(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, WithChunking(1000, 200))

	doc := Document{ID: "long", Date: "2024-05-05", Category: "Neurology", Content: strings.Repeat("A", 1500)}
	_, err := s.Sync(context.Background(), []Document{doc})
	require.NoError(t, err)

	chunks := s.Snapshot().Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, "long_0", chunks[0].ID)
	assert.Equal(t, "long_1", chunks[1].ID)
	assert.Equal(t, 1, chunks[1].Ordinal)
	assert.Len(t, chunks[1].Content, 700)
}

func TestSync_EmptyDocumentSetClearsIndex(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	_, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)

	_, err = s.Sync(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, s.Snapshot().Empty())
}

func TestSync_Mirror(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("qdrant down")}
	s := newTestStore(t, &fakeEmbedder{}, WithMirror(mirror))

	result, err := s.Sync(context.Background(), reports())
	require.NoError(t, err, "mirror failures must not fail the sync")
	require.Len(t, mirror.snaps, 1)
	assert.Same(t, s.Snapshot(), mirror.snaps[0])

	_, err = s.Sync(context.Background(), reports())
	require.NoError(t, err)
	assert.Len(t, mirror.snaps, 1, "skipped sync publishes nothing")
	assert.Equal(t, uint64(1), result.Generation)
}

func TestStats(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{failOn: "circle"})
	_, err := s.Sync(context.Background(), reports())
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.EmbeddedChunks)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.False(t, stats.BuiltAt.IsZero())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]Document{{ID: "x"}, {ID: "y"}})
	b := Fingerprint([]Document{{ID: "y"}, {ID: "x"}, {ID: "x"}})
	c := Fingerprint([]Document{{ID: "x"}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestScoredChunk_PromotesChunkFields(t *testing.T) {
	sc := ScoredChunk{
		Chunk: Chunk{ID: ChunkID("r1", 0), DocumentID: "r1", DocumentDate: "2024-01-15", Category: "Speech Therapy", Content: "text"},
		Score: 0.7,
	}

	assert.Equal(t, "r1_0", sc.ID)
	assert.Equal(t, "r1", sc.DocumentID)
	assert.Equal(t, "2024-01-15", sc.DocumentDate)
	assert.Equal(t, "Speech Therapy", sc.Category)
	assert.Equal(t, "text", sc.Content)
	assert.False(t, sc.Embedded())
}
