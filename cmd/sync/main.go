// Package main provides the report indexing CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/report-rag/internal/app"
	"github.com/bull/report-rag/internal/config"
	ghclient "github.com/bull/report-rag/internal/github"
	"github.com/bull/report-rag/internal/indexer"
	"github.com/bull/report-rag/internal/prompt"
	"github.com/bull/report-rag/internal/retriever"
	"github.com/bull/report-rag/internal/source"
)

const cliSession = "cli"

var (
	flagFile      string
	flagGitHub    string
	flagRef       string
	flagLimit     int
	flagThreshold float64
)

var rootCmd = &cobra.Command{
	Use:   "report-sync",
	Short: "Clinical report indexing tool",
	Long:  "CLI tool for indexing clinical and therapy reports and querying the index",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index reports from a file or GitHub",
	Long: `Loads reports, chunks and embeds them, and prints index statistics.

Reports come from --file (YAML or JSON list) or --github owner/repo/path
(markdown files, one directory per category).

Environment variables:
  OPENAI_API_KEY       API key for embeddings (required)
  EMBEDDING_BASE_URL   OpenAI-compatible endpoint (optional)
  QDRANT_ENABLED       Mirror the index into Qdrant (default: false)
  GITHUB_TOKEN         GitHub token for higher rate limits (optional)`,
	RunE: runSync,
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Index reports and print the context retrieved for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	for _, cmd := range []*cobra.Command{syncCmd, queryCmd} {
		cmd.Flags().StringVar(&flagFile, "file", "", "YAML or JSON report file")
		cmd.Flags().StringVar(&flagGitHub, "github", "", "GitHub reports location as owner/repo/path")
		cmd.Flags().StringVar(&flagRef, "ref", "", "Git ref to read (default: repository default branch)")
		cmd.MarkFlagsMutuallyExclusive("file", "github")
		cmd.MarkFlagsOneRequired("file", "github")
	}
	queryCmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum chunks to return (default from RETRIEVAL_LIMIT)")
	queryCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "Similarity cutoff (default from RETRIEVAL_THRESHOLD)")

	rootCmd.AddCommand(syncCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// githubLocation splits owner/repo/path; path may be empty.
func githubLocation(location string) (owner, repo, basePath string, err error) {
	parts := strings.SplitN(strings.Trim(location, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid --github %q, want owner/repo/path", location)
	}
	if len(parts) == 3 {
		basePath = parts[2]
	}
	return parts[0], parts[1], basePath, nil
}

func newSource(cfg *config.Config, a *app.App) (source.Source, error) {
	if flagFile != "" {
		return source.NewFileSource(flagFile), nil
	}

	owner, repo, basePath, err := githubLocation(flagGitHub)
	if err != nil {
		return nil, err
	}
	client, err := ghclient.NewClient(cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("Failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(client, owner, repo, basePath, flagRef)
	return source.NewGitHubSource(fetcher, a.Logger), nil
}

// indexReports loads configuration, wires the components and syncs the source.
func indexReports(ctx context.Context) (*app.App, *indexer.IndexResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, config.NewLogger(cfg.LogLevel))
	if err != nil {
		return nil, nil, err
	}

	src, err := newSource(cfg, a)
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	result, err := a.Pipeline.Run(ctx, cliSession, src)
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("Indexing failed: %w", err)
	}
	return a, result, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	fmt.Println("Starting sync...")
	fmt.Println()

	a, result, err := indexReports(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d\n", result.TotalDocs)
	fmt.Printf("  Chunks: %d (%d embedded)\n", result.TotalChunks, result.EmbeddedChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.Revision != "" {
		fmt.Printf("  Commit: %s\n", result.Revision)
	}
	if a.Storage != nil {
		n, err := a.Storage.CountSession(ctx, cliSession)
		if err == nil {
			fmt.Printf("  Mirrored points: %d (collection %s)\n", n, a.Storage.Collection())
		}
	}

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	if result.FailedChunks > 0 {
		fmt.Println()
		fmt.Printf("Warning: %d chunks could not be embedded and will not be searchable.\n", result.FailedChunks)
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, _, err := indexReports(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Sessions.Lookup(cliSession)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	chunks, err := sess.Retriever.Search(ctx, retriever.Request{
		Text:      question,
		Limit:     flagLimit,
		Threshold: thresholdFlag(cmd),
	})
	if errors.Is(err, retriever.ErrRetrievalUnavailable) {
		return fmt.Errorf("Query embedding failed, try again later: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Found %d relevant chunks\n\n", len(chunks))
	for i, c := range chunks {
		fmt.Printf("  %d. %s  score=%.3f  %s  %s\n", i+1, c.ID, c.Score, c.DocumentDate, c.Category)
	}
	fmt.Println()
	fmt.Println(prompt.Assemble(chunks))

	return nil
}

// thresholdFlag returns the --threshold value, or nil when it was not given.
func thresholdFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("threshold") {
		return nil
	}
	v := flagThreshold
	return &v
}
