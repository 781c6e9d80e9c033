package mcp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RouterConfig holds the HTTP surface dependencies.
type RouterConfig struct {
	Server   *Server
	Sessions SessionCounter
	// Mirror is optional.
	Mirror HealthChecker
	// Stateless disables MCP session tracking. Report sessions are still
	// selected per call by session_id.
	Stateless bool
	Logger    *slog.Logger
}

// NewRouter mounts the MCP endpoint at /mcp and the health check at /health.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Recoverer) // Recover from panics
	r.Use(middleware.RequestID) // Add request ID
	r.Use(requestLogger(logger))

	r.Get("/health", NewHealthHandler(cfg.Sessions, cfg.Mirror))
	r.Handle("/mcp", newStreamableHandler(cfg.Server, cfg.Stateless))

	return r
}

// newStreamableHandler serves the MCP server over Streamable HTTP.
func newStreamableHandler(server *Server, stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}

// requestLogger logs each request once it completes.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("Handled HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
