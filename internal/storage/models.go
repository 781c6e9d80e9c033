package storage

import (
	"time"

	"github.com/google/uuid"
)

// Config locates the Qdrant collection used for mirroring.
type Config struct {
	Host       string
	Port       int
	Collection string
	Dimension  uint64 // must match the embedding model
}

// DefaultCollection is the Qdrant collection for mirrored report chunks.
const DefaultCollection = "report_chunks"

// VectorName is the named vector holding chunk embeddings.
const VectorName = "content"

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// Payload field names. Keyword fields are indexed for filtering.
const (
	fieldSessionID  = "session_id"
	fieldDocumentID = "document_id"
	fieldChunkID    = "chunk_id"
	fieldOrdinal    = "ordinal"
	fieldDate       = "date"
	fieldCategory   = "category"
	fieldContent    = "content"
	fieldEmbedded   = "embedded"
	fieldGeneration = "generation"
	fieldMirroredAt = "mirrored_at"
)

// pointNamespace scopes deterministic point ids.
var pointNamespace = uuid.MustParse("0b7e9f3c-5d1a-4c4e-9a57-2f6d8c1e4b90")

// PointID maps a session's chunk id to a stable Qdrant UUID.
func PointID(sessionID, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(sessionID+"/"+chunkID)).String()
}

// WaitConfig bounds the read-after-write check.
type WaitConfig struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultWaitConfig polls five times, 200ms apart.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{Attempts: 5, Delay: 200 * time.Millisecond}
}
