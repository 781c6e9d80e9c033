// Package main provides the MCP server entry point for the report index.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bull/report-rag/internal/app"
	"github.com/bull/report-rag/internal/config"
	mcpserver "github.com/bull/report-rag/internal/mcp"
)

func main() {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		config.NewLogger("info").Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	serverCfg := &mcpserver.Config{
		Sessions:    a.Sessions,
		Pipeline:    a.Pipeline,
		Completer:   a.Completer,
		Analyzer:    a.Analyzer,
		AnswerLimit: cfg.Retrieval.Limit,
		Logger:      logger,
	}
	var mirror mcpserver.HealthChecker
	if a.Storage != nil {
		serverCfg.Mirror = a.Storage
		mirror = a.Storage
	}

	// Create MCP server
	server := mcpserver.NewServer(serverCfg)
	router := mcpserver.NewRouter(mcpserver.RouterConfig{
		Server:    server,
		Sessions:  a.Sessions,
		Mirror:    mirror,
		Stateless: cfg.MCPStateless,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients
	// Also start HTTP health endpoint in background for local testing
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting report MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
