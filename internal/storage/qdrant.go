package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/report-rag/internal/index"
)

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(cfg Config) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// Collection returns the mirrored collection name.
func (s *QdrantStorage) Collection() string {
	return s.collection
}

// EnsureCollection creates the collection with a cosine named vector and
// keyword payload indexes. Idempotent - safe to call multiple times.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	// Named vector so unembedded chunks can be stored payload-only
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     s.dimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes creates indexes for all filterable fields.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{fieldSessionID, fieldDocumentID, fieldCategory} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func sessionFilter(sessionID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(fieldSessionID, sessionID),
		},
	}
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// DeleteSession removes every point of a session.
func (s *QdrantStorage) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(sessionFilter(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// ReplaceSession swaps a session's points for the given snapshot's chunks.
// Chunks are batched in groups of 100. Returns the number of points written.
func (s *QdrantStorage) ReplaceSession(ctx context.Context, sessionID string, snap *index.Snapshot) (int, error) {
	points, err := s.pointsFor(sessionID, snap)
	if err != nil {
		return 0, err
	}

	if err := s.DeleteSession(ctx, sessionID); err != nil {
		return 0, err
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))
		if err := s.upsertWithRetry(ctx, points[i:end]); err != nil {
			return i, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return len(points), nil
}

// pointsFor converts chunks to points. Unembedded chunks carry no vector.
func (s *QdrantStorage) pointsFor(sessionID string, snap *index.Snapshot) ([]*qdrant.PointStruct, error) {
	chunks := snap.Chunks()
	points := make([]*qdrant.PointStruct, len(chunks))
	mirroredAt := time.Now().UTC().Format(time.RFC3339)

	for i, c := range chunks {
		vectors := map[string]*qdrant.Vector{}
		if c.Embedded() {
			if s.dimension != 0 && uint64(len(c.Embedding)) != s.dimension {
				return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
					ErrDimensionMismatch, c.ID, len(c.Embedding), s.dimension)
			}
			vectors[VectorName] = qdrant.NewVector(c.Embedding...)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(sessionID, c.ID)),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldSessionID:  sessionID,
				fieldDocumentID: c.DocumentID,
				fieldChunkID:    c.ID,
				fieldOrdinal:    c.Ordinal,
				fieldDate:       c.DocumentDate,
				fieldCategory:   c.Category,
				fieldContent:    c.Content,
				fieldEmbedded:   c.Embedded(),
				fieldGeneration: int64(snap.Generation()),
				fieldMirroredAt: mirroredAt,
			}),
		}
	}

	return points, nil
}

// CountSession returns the exact number of points stored for a session.
func (s *QdrantStorage) CountSession(ctx context.Context, sessionID string) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         sessionFilter(sessionID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count session %s: %w", sessionID, err)
	}
	return n, nil
}

// WaitForCount polls CountSession until it reports want, with a fixed delay
// between a bounded number of attempts. When the budget runs out it returns
// the last observed count and an error wrapping ErrReadLag.
// A zero Attempts uses DefaultWaitConfig.
func (s *QdrantStorage) WaitForCount(ctx context.Context, sessionID string, want uint64, cfg WaitConfig) (uint64, error) {
	if cfg.Attempts == 0 {
		cfg = DefaultWaitConfig()
	}
	var last uint64

	err := retry.Do(
		func() error {
			n, err := s.CountSession(ctx, sessionID)
			if err != nil {
				return err
			}
			last = n
			if n != want {
				return fmt.Errorf("%w: have %d points, want %d", ErrReadLag, n, want)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.Delay(cfg.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	return last, err
}

// CollectionPoints returns the number of points in the collection across
// all sessions.
func (s *QdrantStorage) CollectionPoints(ctx context.Context) (uint64, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection %s: %w", s.collection, err)
	}
	return info.GetPointsCount(), nil
}
