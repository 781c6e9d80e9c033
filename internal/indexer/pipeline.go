// Package indexer loads reports from a source into a session's index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/session"
	"github.com/bull/report-rag/internal/source"
)

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	SessionID      string
	Skipped        bool
	TotalDocs      int
	TotalChunks    int
	EmbeddedChunks int
	FailedChunks   int
	FailedDocs     []source.FailedFile
	Revision       string
	Generation     uint64
	Duration       time.Duration
}

// Syncer rebuilds a session's index. *session.Manager satisfies it.
type Syncer interface {
	Sync(ctx context.Context, sessionID string, docs []index.Document) (*index.SyncResult, error)
}

var _ Syncer = (*session.Manager)(nil)

// revisioner is implemented by sources that know their upstream revision.
type revisioner interface {
	Revision(ctx context.Context) (string, error)
}

// failureReporter is implemented by sources that skip unreadable entries.
type failureReporter interface {
	Failed() []source.FailedFile
}

// Pipeline orchestrates loading reports and syncing them into a session.
type Pipeline struct {
	syncer Syncer
	logger *slog.Logger
}

// NewPipeline creates a new indexing pipeline over syncer.
func NewPipeline(syncer Syncer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		syncer: syncer,
		logger: logger,
	}
}

// Run loads every report from src and syncs them into the session.
// Returns detailed statistics about the indexing operation.
func (p *Pipeline) Run(ctx context.Context, sessionID string, src source.Source) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{SessionID: sessionID}

	// 1. Capture upstream revision when the source has one
	if r, ok := src.(revisioner); ok {
		rev, err := r.Revision(ctx)
		if err != nil {
			p.logger.Warn("Could not resolve source revision", "error", err)
		} else {
			result.Revision = rev
		}
	}

	// 2. Load reports
	docs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	if f, ok := src.(failureReporter); ok {
		result.FailedDocs = f.Failed()
	}
	p.logger.Info("Loaded reports", "session", sessionID, "count", len(docs), "failed", len(result.FailedDocs))

	// 3. Sync into the session index
	return p.sync(ctx, start, result, docs)
}

// RunDocuments syncs an already loaded report set into the session.
func (p *Pipeline) RunDocuments(ctx context.Context, sessionID string, docs []index.Document) (*IndexResult, error) {
	return p.sync(ctx, time.Now(), &IndexResult{SessionID: sessionID}, docs)
}

func (p *Pipeline) sync(ctx context.Context, start time.Time, result *IndexResult, docs []index.Document) (*IndexResult, error) {
	synced, err := p.syncer.Sync(ctx, result.SessionID, docs)
	if err != nil {
		return nil, err
	}

	result.Skipped = synced.Skipped
	result.TotalDocs = synced.TotalDocs
	result.TotalChunks = synced.TotalChunks
	result.EmbeddedChunks = synced.EmbeddedChunks
	result.FailedChunks = synced.FailedChunks
	result.Generation = synced.Generation
	result.Duration = time.Since(start)

	p.logger.Info("Indexing complete",
		"session", result.SessionID,
		"skipped", result.Skipped,
		"docs", result.TotalDocs,
		"chunks", result.TotalChunks,
		"embedded", result.EmbeddedChunks,
		"duration", result.Duration,
	)

	return result, nil
}
