package source

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/bull/report-rag/internal/github"
	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/markdown"
)

// DefaultCategory is used for files at the root of the base directory.
const DefaultCategory = "General"

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// Fetcher lists and downloads markdown files. *github.Fetcher satisfies it.
type Fetcher interface {
	ListFiles(ctx context.Context) ([]string, error)
	FetchFile(ctx context.Context, relativePath string) (*github.FetchedFile, error)
	LatestCommitSHA(ctx context.Context) (string, error)
}

// FailedFile represents a file that could not be loaded.
type FailedFile struct {
	Path   string
	Reason string
}

// GitHubSource loads markdown reports from a repository directory.
//
// Layout: <base>/<category>/<YYYY-MM-DD>-<name>.md. Front matter title, date
// and category override what the path implies.
type GitHubSource struct {
	fetcher   Fetcher
	converter *markdown.Converter
	logger    *slog.Logger
	failed    []FailedFile
}

// NewGitHubSource creates a source over fetcher.
func NewGitHubSource(fetcher Fetcher, logger *slog.Logger) *GitHubSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubSource{
		fetcher:   fetcher,
		converter: markdown.NewConverter(),
		logger:    logger,
	}
}

// Load fetches and converts every markdown file. Unreadable files are skipped
// and reported by Failed.
func (s *GitHubSource) Load(ctx context.Context) ([]index.Document, error) {
	paths, err := s.fetcher.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	s.logger.Info("Found report files", "count", len(paths))

	s.failed = nil
	docs := make([]index.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := s.loadFile(ctx, p)
		if err != nil {
			s.logger.Warn("Failed to load report", "path", p, "error", err)
			s.failed = append(s.failed, FailedFile{Path: p, Reason: err.Error()})
			continue // Skip unparseable files, continue with others
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Failed returns the files skipped by the last Load.
func (s *GitHubSource) Failed() []FailedFile {
	return s.failed
}

// Revision returns the latest commit touching the base directory.
func (s *GitHubSource) Revision(ctx context.Context) (string, error) {
	return s.fetcher.LatestCommitSHA(ctx)
}

func (s *GitHubSource) loadFile(ctx context.Context, relPath string) (index.Document, error) {
	fetched, err := s.fetcher.FetchFile(ctx, relPath)
	if err != nil {
		return index.Document{}, fmt.Errorf("fetch: %w", err)
	}

	md, err := s.converter.Convert([]byte(fetched.Content))
	if err != nil {
		return index.Document{}, fmt.Errorf("convert: %w", err)
	}

	return documentFromMarkdown(relPath, md), nil
}

func documentFromMarkdown(relPath string, md *markdown.Document) index.Document {
	name := strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))

	category := md.FrontMatter.Category
	if category == "" {
		if dir := path.Dir(relPath); dir != "." {
			category = strings.Split(dir, "/")[0]
		} else {
			category = DefaultCategory
		}
	}

	date := md.FrontMatter.Date
	if date == "" {
		date = datePrefix.FindString(name)
	}

	title := md.Title
	if title == "" {
		title = name
	}

	return index.Document{
		ID:       relPath,
		Title:    title,
		Date:     date,
		Category: category,
		Content:  md.Text,
	}
}
