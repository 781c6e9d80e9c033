package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// FetchedFile represents a markdown file fetched from GitHub
type FetchedFile struct {
	Path    string // Relative path within the base directory
	Content string // Raw file content
	SHA     string // File's Git blob SHA
}

// Fetcher lists and downloads markdown files under one repository directory.
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
	ref      string
}

// NewFetcher creates a new file fetcher. An empty ref uses the default branch.
func NewFetcher(client *Client, owner, repo, basePath, ref string) *Fetcher {
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
		ref:      ref,
	}
}

// Repository returns "owner/repo".
func (f *Fetcher) Repository() string {
	return f.owner + "/" + f.repo
}

func (f *Fetcher) options() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}

// ListFiles recursively lists all markdown files in the base directory
func (f *Fetcher) ListFiles(ctx context.Context) ([]string, error) {
	return f.listRecursive(ctx, f.basePath, "")
}

// listRecursive recursively traverses directories to find all .md files
func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var files []string

	_, dirContents, _, err := f.client.Repositories.GetContents(
		ctx,
		f.owner,
		f.repo,
		fullPath,
		f.options(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				files = append(files, itemRelPath)
			}

		case "dir":
			itemFullPath := path.Join(fullPath, *item.Name)
			sub, err := f.listRecursive(ctx, itemFullPath, itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}

	return files, nil
}

// FetchFile fetches the content of a specific markdown file
func (f *Fetcher) FetchFile(ctx context.Context, relativePath string) (*FetchedFile, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx,
		f.owner,
		f.repo,
		fullPath,
		f.options(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}

	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedFile{
		Path:    relativePath,
		Content: string(content),
		SHA:     fileContent.GetSHA(),
	}, nil
}

// LatestCommitSHA retrieves the SHA of the most recent commit affecting the base directory
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(
		ctx,
		f.owner,
		f.repo,
		&github.CommitsListOptions{
			SHA:  f.ref,
			Path: f.basePath,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}

	if commits[0].SHA == nil {
		return "", errors.New("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}
