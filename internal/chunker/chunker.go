// Package chunker splits report text into fixed-size overlapping windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by consecutive chunks.
const DefaultChunkOverlap = 200

// ErrInvalidConfiguration is returned when size or overlap cannot produce forward progress.
var ErrInvalidConfiguration = errors.New("invalid chunker configuration")

// Chunker holds a validated size/overlap pair.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Size must be positive and overlap must satisfy 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// NewDefault creates a Chunker with DefaultChunkSize and DefaultChunkOverlap.
func NewDefault() *Chunker {
	return &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
}

// Size returns the window length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split normalizes whitespace and cuts text into windows.
// Windows start every size-overlap characters while the start is inside the
// text, so the final window may be shorter than the overlap.
// Characters are Unicode code points. Empty or blank text yields no chunks.
func (c *Chunker) Split(text string) []string {
	runes := []rune(normalize(text))
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	chunks := make([]string, 0, len(runes)/stride+1)

	for start := 0; start < len(runes); start += stride {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}

// Chunk is a one-shot helper that validates the configuration and splits text.
func Chunk(text string, size, overlap int) ([]string, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfiguration, size, overlap)
	}
	return nil
}

// normalize collapses every run of whitespace into a single space and trims the ends.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
