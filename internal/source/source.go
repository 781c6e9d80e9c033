// Package source loads report documents from files or GitHub repositories.
package source

import (
	"context"

	"github.com/bull/report-rag/internal/index"
)

// Source produces the current set of reports for a session.
type Source interface {
	Load(ctx context.Context) ([]index.Document, error)
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*GitHubSource)(nil)
)
