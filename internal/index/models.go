package index

import (
	"slices"
	"strconv"
	"time"
)

// Document is a report as supplied by the caller. It is read-only to the index.
type Document struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Date     string `json:"date" yaml:"date"`         // Display date, usually YYYY-MM-DD
	Category string `json:"category" yaml:"category"` // Report type: "Speech Therapy", "School", ...
	Content  string `json:"content" yaml:"content"`
}

// Chunk is one window of a document's text plus the metadata copied from its document.
type Chunk struct {
	ID           string    // DocumentID + "_" + Ordinal
	DocumentID   string    // Links to Document.ID
	DocumentDate string    // Same as parent document date
	Category     string    // Same as parent document category
	Ordinal      int       // Position in document (0, 1, 2...)
	Content      string    // Chunk text
	Embedding    []float32 // nil when embedding failed
}

// Embedded reports whether the chunk has a vector.
func (c Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk
	Score float64
}

// ChunkID builds the deterministic chunk identifier.
func ChunkID(documentID string, ordinal int) string {
	return documentID + "_" + strconv.Itoa(ordinal)
}

// Snapshot is an immutable view of the index: chunks in document-then-ordinal
// order and the exact set of document ids they were built from.
type Snapshot struct {
	chunks     []Chunk
	docIDs     map[string]struct{}
	embedded   int
	generation uint64
	builtAt    time.Time
}

func newSnapshot(chunks []Chunk, docIDs map[string]struct{}, generation uint64) *Snapshot {
	embedded := 0
	for _, c := range chunks {
		if c.Embedded() {
			embedded++
		}
	}
	return &Snapshot{
		chunks:     chunks,
		docIDs:     docIDs,
		embedded:   embedded,
		generation: generation,
		builtAt:    time.Now(),
	}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{docIDs: map[string]struct{}{}}
}

// Chunks returns the snapshot's chunks. The slice must not be modified.
func (s *Snapshot) Chunks() []Chunk { return s.chunks }

// Len returns the number of chunks.
func (s *Snapshot) Len() int { return len(s.chunks) }

// Empty reports whether the snapshot holds no chunks.
func (s *Snapshot) Empty() bool { return len(s.chunks) == 0 }

// EmbeddedCount returns how many chunks carry a vector.
func (s *Snapshot) EmbeddedCount() int { return s.embedded }

// Generation increases by one with every rebuild. Zero is the initial empty snapshot.
func (s *Snapshot) Generation() uint64 { return s.generation }

// BuiltAt is when the snapshot was built; zero for the initial empty snapshot.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// HasDocument reports whether id was part of the synced set.
func (s *Snapshot) HasDocument(id string) bool {
	_, ok := s.docIDs[id]
	return ok
}

// DocumentIDs returns the synced document ids, sorted.
func (s *Snapshot) DocumentIDs() []string {
	ids := make([]string, 0, len(s.docIDs))
	for id := range s.docIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Snapshot) sameDocuments(ids map[string]struct{}) bool {
	if len(ids) != len(s.docIDs) {
		return false
	}
	for id := range ids {
		if _, ok := s.docIDs[id]; !ok {
			return false
		}
	}
	return true
}
