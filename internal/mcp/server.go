package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/report-rag/internal/chat"
	"github.com/bull/report-rag/internal/indexer"
	"github.com/bull/report-rag/internal/session"
)

// MirrorCounter reports point counts held by the mirror.
// *storage.QdrantStorage implements it.
type MirrorCounter interface {
	CountSession(ctx context.Context, sessionID string) (uint64, error)
	CollectionPoints(ctx context.Context) (uint64, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Sessions  *session.Manager
	Pipeline  *indexer.Pipeline
	Completer chat.Completer
	Analyzer  *chat.Analyzer
	// AnswerLimit caps the excerpts handed to the model; <= 0 uses the retriever default.
	AnswerLimit int
	// Mirror is optional.
	Mirror MirrorCounter
	Logger *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = indexer.NewPipeline(cfg.Sessions, cfg.Logger)
	}

	impl := &mcp.Implementation{
		Name:    "report-rag-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_reports",
		Description: "Index a patient's clinical and therapy reports for a session. Accepts inline reports or a report file path. Unchanged report sets are not re-embedded.",
	}, makeSyncHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_reports",
		Description: "Semantically search the session's indexed reports. Returns the most relevant excerpts with date, category and score, plus an assembled context block.",
	}, makeSearchHandler(cfg.Sessions))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_reports",
		Description: "Answer a question about the patient's development using only the session's reports as evidence.",
	}, makeAskHandler(cfg.Sessions, cfg.Completer, cfg.AnswerLimit, cfg.Logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_evolution",
		Description: "Score communication, social interaction, behavior and autonomy for every synced report, in chronological order.",
	}, makeEvolutionHandler(cfg.Sessions, cfg.Analyzer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of a session's report index including document and chunk counts, embedding coverage and last sync time.",
	}, makeStatusHandler(cfg.Sessions, cfg.Mirror, cfg.Logger))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
