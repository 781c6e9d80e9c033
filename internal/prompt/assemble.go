// Package prompt formats retrieved chunks into the context block of an LLM prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bull/report-rag/internal/index"
)

// NoContext is returned when there is nothing relevant to show the model.
const NoContext = "No relevant information was found in the analyzed reports."

const unknown = "unknown"

// Assemble renders chunks as labeled blocks, in the given order, separated by blank lines.
// Each block names its position, the report date and the report category.
func Assemble(chunks []index.ScoredChunk) string {
	if len(chunks) == 0 {
		return NoContext
	}

	blocks := make([]string, len(chunks))
	for i, sc := range chunks {
		blocks[i] = fmt.Sprintf("=== Report %d | Date: %s | Category: %s ===\n%s",
			i+1,
			orUnknown(sc.Chunk.DocumentDate),
			orUnknown(sc.Chunk.Category),
			strings.TrimSpace(sc.Chunk.Content),
		)
	}
	return strings.Join(blocks, "\n\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
