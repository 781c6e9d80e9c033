// Package app wires configuration into the running components shared by the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bull/report-rag/internal/chat"
	"github.com/bull/report-rag/internal/config"
	"github.com/bull/report-rag/internal/embedding"
	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/indexer"
	"github.com/bull/report-rag/internal/retriever"
	"github.com/bull/report-rag/internal/session"
	"github.com/bull/report-rag/internal/storage"
)

// mirrorCleanupTimeout bounds the Qdrant delete run when a session is evicted.
const mirrorCleanupTimeout = 10 * time.Second

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Embedder  embedding.Provider
	Sessions  *session.Manager
	Pipeline  *indexer.Pipeline
	Completer chat.Completer
	Analyzer  *chat.Analyzer
	// Storage is nil unless QDRANT_ENABLED is set.
	Storage *storage.QdrantStorage
}

// New builds every component from cfg. Qdrant is contacted only when enabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embeddingClient, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	chatClient := embeddingClient
	if cfg.ChatBaseURL() != cfg.Embedding.BaseURL {
		chatClient, err = embedding.NewClient(embedding.ClientConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.ChatBaseURL(),
			Timeout: cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create chat client: %w", err)
		}
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Embedder: NewEmbedder(embeddingClient, cfg.Embedding),
	}

	if cfg.Qdrant.Enabled {
		store, err := storage.NewQdrantStorage(storage.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Qdrant.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
		a.Storage = store
		logger.Info("Qdrant mirror enabled", "collection", store.Collection())
	}

	var sessionOpts []session.Option
	if a.Storage != nil {
		sessionOpts = append(sessionOpts, session.WithEvictionHook(a.dropMirroredSession))
	}
	a.Sessions = session.NewManager(a.storeFactory(), cfg.Session.TTL, logger, sessionOpts...)
	a.Pipeline = indexer.NewPipeline(a.Sessions, logger)
	a.Completer = chat.NewOpenAICompleter(chatClient.Client(), cfg.Chat.Model)
	a.Analyzer = chat.NewAnalyzer(a.Completer, logger, cfg.Chat.MaxContextTokens)

	return a, nil
}

// NewEmbedder composes the provider with rate limit retries and an optional cache.
func NewEmbedder(client *embedding.Client, cfg config.EmbeddingConfig) embedding.Provider {
	var provider embedding.Provider = embedding.NewEmbedder(client, cfg.Model, cfg.Dimensions)

	if cfg.RetryMaxElapsed > 0 {
		retryCfg := embedding.DefaultRetryConfig()
		retryCfg.MaxElapsedTime = cfg.RetryMaxElapsed
		provider = embedding.WithRetry(provider, retryCfg)
	}
	if cfg.CacheTTL > 0 {
		provider = embedding.WithCache(provider, cfg.CacheTTL)
	}
	return provider
}

// dropMirroredSession deletes an evicted session's points from Qdrant.
func (a *App) dropMirroredSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorCleanupTimeout)
	defer cancel()
	if err := a.Storage.DeleteSession(ctx, sessionID); err != nil {
		a.Logger.Warn("Failed to delete mirrored session", "session", sessionID, "error", err)
		return
	}
	a.Logger.Debug("Deleted mirrored session", "session", sessionID)
}

// storeFactory builds each session's index and retriever from configuration.
func (a *App) storeFactory() session.StoreFactory {
	cfg := a.Config
	return func(sessionID string) (*index.Store, *retriever.Retriever, error) {
		logger := a.Logger.With("session", sessionID)

		opts := []index.Option{
			index.WithChunking(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
			index.WithThrottle(Throttle(cfg.Index.EmbedInterval)),
			index.WithLogger(logger),
		}
		if a.Storage != nil {
			opts = append(opts, index.WithMirror(a.Storage.MirrorFor(sessionID, logger)))
		}

		store, err := index.New(a.Embedder, opts...)
		if err != nil {
			return nil, nil, err
		}

		ret, err := retriever.New(store, a.Embedder,
			retriever.WithLimit(cfg.Retrieval.Limit),
			retriever.WithThreshold(cfg.Retrieval.Threshold),
			retriever.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return store, ret, nil
	}
}

// Throttle allows one embedding call per interval; zero disables throttling.
func Throttle(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Close releases external connections.
func (a *App) Close() error {
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
