// Package markdown turns markdown reports into plain text for indexing.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
	"gopkg.in/yaml.v3"
)

// FrontMatter holds the optional YAML header of a report file.
type FrontMatter struct {
	Title    string `yaml:"title"`
	Date     string `yaml:"date"`
	Category string `yaml:"category"`
}

// Document is a converted markdown file.
type Document struct {
	Title       string // front matter title, else first H1, else empty
	Text        string // plain text, one block per line
	FrontMatter FrontMatter
}

// Converter renders markdown to plain text with goldmark.
type Converter struct {
	parser goldmark.Markdown
}

// NewConverter creates a new converter configured with goldmark parser.
func NewConverter() *Converter {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Converter{
		parser: md,
	}
}

// Convert strips front matter, markup, and raw HTML from source.
func (c *Converter) Convert(source []byte) (*Document, error) {
	fm, body, err := splitFrontMatter(source)
	if err != nil {
		return nil, err
	}

	doc := c.parser.Parser().Parse(text.NewReader(body))

	title := fm.Title
	if title == "" {
		tree, err := toc.Inspect(doc, body, toc.MinDepth(1), toc.MaxDepth(1), toc.Compact(true))
		if err != nil {
			return nil, fmt.Errorf("inspect TOC: %w", err)
		}
		if len(tree.Items) > 0 {
			title = string(tree.Items[0].Title)
		}
	}

	return &Document{
		Title:       title,
		Text:        render(doc, body),
		FrontMatter: fm,
	}, nil
}

// PlainText is a convenience wrapper returning only the text of source.
func PlainText(source []byte) (string, error) {
	doc, err := NewConverter().Convert(source)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// render walks the AST collecting inline text; each block ends a line.
func render(doc ast.Node, source []byte) string {
	var buf bytes.Buffer

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			switch {
			case node.HardLineBreak():
				buf.WriteByte('\n')
			case node.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(source))
		}
		return ast.WalkContinue, nil
	})

	lines := strings.Split(buf.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// splitFrontMatter separates a leading "---" YAML block from the markdown body.
func splitFrontMatter(source []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter

	normalized := bytes.ReplaceAll(source, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return fm, source, nil
	}

	rest := normalized[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, source, nil
	}

	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, nil, fmt.Errorf("parse front matter: %w", err)
	}

	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, body, nil
}
