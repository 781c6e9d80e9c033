package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bull/report-rag/internal/index"
)

// ErrInvalidReport is returned for report entries missing an id.
var ErrInvalidReport = errors.New("invalid report")

// fileReport accepts "type" as an alias of "category".
type fileReport struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Date     string `yaml:"date"`
	Category string `yaml:"category"`
	Type     string `yaml:"type"`
	Content  string `yaml:"content"`
}

type fileReports struct {
	Reports []fileReport `yaml:"reports"`
}

// FileSource reads reports from a YAML or JSON file. The file holds either a
// list of reports or an object with a "reports" list.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]index.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read reports file: %w", err)
	}
	return ParseReports(data)
}

// ParseReports decodes YAML or JSON report data.
func ParseReports(data []byte) ([]index.Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse reports: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var reports []fileReport
	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Content[0].Decode(&reports); err != nil {
			return nil, fmt.Errorf("parse reports: %w", err)
		}
	case yaml.MappingNode:
		var wrapped fileReports
		if err := node.Content[0].Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parse reports: %w", err)
		}
		reports = wrapped.Reports
	default:
		return nil, fmt.Errorf("parse reports: expected a list or a mapping with \"reports\"")
	}

	docs := make([]index.Document, 0, len(reports))
	for i, r := range reports {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidReport, i)
		}
		category := r.Category
		if category == "" {
			category = r.Type
		}
		docs = append(docs, index.Document{
			ID:       r.ID,
			Title:    r.Title,
			Date:     r.Date,
			Category: category,
			Content:  r.Content,
		})
	}
	return docs, nil
}
