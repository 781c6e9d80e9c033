package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/report-rag/internal/chat"
	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/indexer"
	"github.com/bull/report-rag/internal/prompt"
	"github.com/bull/report-rag/internal/retriever"
	"github.com/bull/report-rag/internal/session"
	"github.com/bull/report-rag/internal/source"
)

const noSessionMessage = "No reports have been synced for this session. Call sync_reports first."

func sessionID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// lookup returns the session or nil when it does not exist.
func lookup(sessions *session.Manager, id string) (*session.Session, error) {
	sess, err := sessions.Lookup(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, nil
	}
	return sess, err
}

func toSearchResults(chunks []index.ScoredChunk) []SearchResult {
	results := make([]SearchResult, len(chunks))
	for i, c := range chunks {
		results[i] = SearchResult{
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Date:       c.DocumentDate,
			Category:   c.Category,
			Score:      c.Score,
			Content:    c.Content,
		}
	}
	return results
}

// makeSyncHandler creates the sync_reports tool handler.
// A file path takes precedence over inline reports.
func makeSyncHandler(pipeline *indexer.Pipeline) func(
	context.Context, *mcp.CallToolRequest, SyncReportsInput,
) (*mcp.CallToolResult, SyncReportsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SyncReportsInput) (
		*mcp.CallToolResult, SyncReportsOutput, error,
	) {
		id := sessionID(input.SessionID)

		var (
			result *indexer.IndexResult
			err    error
		)
		if input.File != "" {
			result, err = pipeline.Run(ctx, id, source.NewFileSource(input.File))
		} else {
			docs := make([]index.Document, len(input.Reports))
			for i, r := range input.Reports {
				docs[i] = index.Document{
					ID:       r.ID,
					Title:    r.Title,
					Date:     r.Date,
					Category: r.Category,
					Content:  r.Content,
				}
			}
			result, err = pipeline.RunDocuments(ctx, id, docs)
		}
		if err != nil {
			return nil, SyncReportsOutput{}, fmt.Errorf("sync failed: %w", err)
		}

		return nil, SyncReportsOutput{
			SessionID:      id,
			Skipped:        result.Skipped,
			TotalDocs:      result.TotalDocs,
			TotalChunks:    result.TotalChunks,
			EmbeddedChunks: result.EmbeddedChunks,
			FailedChunks:   result.FailedChunks,
			Generation:     result.Generation,
			DurationMS:     result.Duration.Milliseconds(),
			Degraded:       result.EmbeddedChunks < result.TotalChunks,
		}, nil
	}
}

// makeSearchHandler creates the search_reports tool handler.
func makeSearchHandler(sessions *session.Manager) func(
	context.Context, *mcp.CallToolRequest, SearchReportsInput,
) (*mcp.CallToolResult, SearchReportsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchReportsInput) (
		*mcp.CallToolResult, SearchReportsOutput, error,
	) {
		sess, err := lookup(sessions, sessionID(input.SessionID))
		if err != nil {
			return nil, SearchReportsOutput{}, err
		}
		if sess == nil {
			return nil, SearchReportsOutput{
				Results: []SearchResult{},
				Context: prompt.NoContext,
				Message: noSessionMessage,
			}, nil
		}

		chunks, err := sess.Retriever.Search(ctx, retriever.Request{
			Text:      input.Query,
			Limit:     input.Limit,
			Threshold: input.Threshold,
		})
		if err != nil {
			return nil, SearchReportsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchReportsOutput{
			Results: toSearchResults(chunks),
			Context: prompt.Assemble(chunks),
		}
		if len(chunks) == 0 {
			out.Message = "No matching reports found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_reports tool handler.
func makeAskHandler(sessions *session.Manager, completer chat.Completer, limit int, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, AskReportsInput,
) (*mcp.CallToolResult, AskReportsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskReportsInput) (
		*mcp.CallToolResult, AskReportsOutput, error,
	) {
		sess, err := lookup(sessions, sessionID(input.SessionID))
		if err != nil {
			return nil, AskReportsOutput{}, err
		}
		if sess == nil {
			return nil, AskReportsOutput{
				Answer:  chat.NoInformationReply,
				Sources: []SearchResult{},
				Message: noSessionMessage,
			}, nil
		}

		history := make([]chat.Message, 0, len(input.History))
		for _, h := range input.History {
			role := chat.RoleUser
			if h.Role == string(chat.RoleAssistant) {
				role = chat.RoleAssistant
			}
			history = append(history, chat.Message{Role: role, Text: h.Content})
		}

		answer, err := chat.NewAnswerer(completer, sess.Retriever, limit, logger).Ask(ctx, input.Question, history)
		if err != nil {
			return nil, AskReportsOutput{}, fmt.Errorf("answer failed: %w", err)
		}

		return nil, AskReportsOutput{
			Answer:   answer.Text,
			Grounded: answer.Grounded,
			Sources:  toSearchResults(answer.Sources),
		}, nil
	}
}

// makeEvolutionHandler creates the analyze_evolution tool handler.
func makeEvolutionHandler(sessions *session.Manager, analyzer *chat.Analyzer) func(
	context.Context, *mcp.CallToolRequest, AnalyzeEvolutionInput,
) (*mcp.CallToolResult, AnalyzeEvolutionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeEvolutionInput) (
		*mcp.CallToolResult, AnalyzeEvolutionOutput, error,
	) {
		sess, err := lookup(sessions, sessionID(input.SessionID))
		if err != nil {
			return nil, AnalyzeEvolutionOutput{}, err
		}
		if sess == nil {
			return nil, AnalyzeEvolutionOutput{
				Metrics: []chat.EvolutionMetric{},
				Message: noSessionMessage,
			}, nil
		}

		docs := sess.Documents()
		if len(docs) == 0 {
			return nil, AnalyzeEvolutionOutput{
				Metrics: []chat.EvolutionMetric{},
				Message: noSessionMessage,
			}, nil
		}

		metrics, err := analyzer.AnalyzeEvolution(ctx, docs)
		if err != nil {
			return nil, AnalyzeEvolutionOutput{}, fmt.Errorf("evolution analysis failed: %w", err)
		}
		if metrics == nil {
			metrics = []chat.EvolutionMetric{}
		}

		return nil, AnalyzeEvolutionOutput{Metrics: metrics}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// Mirror errors are logged and leave the mirror counts unset.
func makeStatusHandler(sessions *session.Manager, mirror MirrorCounter, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		if logger == nil {
			logger = slog.Default()
		}
		id := sessionID(input.SessionID)
		out := StatusOutput{
			SessionID:      id,
			DocumentIDs:    []string{},
			ActiveSessions: sessions.Count(),
		}

		sess, err := lookup(sessions, id)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		if sess == nil {
			out.Message = noSessionMessage
			return nil, out, nil
		}

		stats := sess.Store.Stats()
		out.Found = true
		out.TotalDocs = stats.Documents
		out.TotalChunks = stats.Chunks
		out.EmbeddedChunks = stats.EmbeddedChunks
		out.Generation = stats.Generation
		out.DocumentIDs = sess.Store.Snapshot().DocumentIDs()
		if !stats.BuiltAt.IsZero() {
			out.LastSyncTime = stats.BuiltAt.Format(time.RFC3339)
		}
		if out.EmbeddedChunks < out.TotalChunks {
			out.Message = fmt.Sprintf("%d of %d chunks could not be embedded and are not searchable. Resync to retry.",
				out.TotalChunks-out.EmbeddedChunks, out.TotalChunks)
		}

		if mirror != nil {
			n, err := mirror.CountSession(ctx, id)
			if err != nil {
				logger.Warn("Mirror count failed", "session", id, "error", err)
			} else {
				out.MirroredPoints = &n
			}
			total, err := mirror.CollectionPoints(ctx)
			if err != nil {
				logger.Warn("Mirror collection info failed", "error", err)
			} else {
				out.CollectionPoints = &total
			}
		}

		return nil, out, nil
	}
}
