package markdown

import (
	"strings"
	"testing"
)

// TestConvert_StripsMarkup tests headers, emphasis, lists and links become plain text.
func TestConvert_StripsMarkup(t *testing.T) {
	input := `# Speech Therapy Evaluation

The child **named colors** and used _two-word_ phrases.

## Goals

- Expand vocabulary
- Request help with [gestures](https://example.com)
`

	doc, err := NewConverter().Convert([]byte(input))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if doc.Title != "Speech Therapy Evaluation" {
		t.Errorf("Expected title from H1, got %q", doc.Title)
	}

	want := strings.Join([]string{
		"Speech Therapy Evaluation",
		"The child named colors and used two-word phrases.",
		"Goals",
		"Expand vocabulary",
		"Request help with gestures",
	}, "\n")
	if doc.Text != want {
		t.Errorf("Unexpected text:\n%s\nwant:\n%s", doc.Text, want)
	}
}

// TestConvert_FrontMatter tests the YAML header is parsed and removed from the text.
func TestConvert_FrontMatter(t *testing.T) {
	input := `---
title: School Report
date: 2024-03-15
category: School
---
# Ignored For Title

Participated in circle time.
`

	doc, err := NewConverter().Convert([]byte(input))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if doc.Title != "School Report" {
		t.Errorf("Expected front matter title, got %q", doc.Title)
	}
	if doc.FrontMatter.Date != "2024-03-15" {
		t.Errorf("Expected date 2024-03-15, got %q", doc.FrontMatter.Date)
	}
	if doc.FrontMatter.Category != "School" {
		t.Errorf("Expected category School, got %q", doc.FrontMatter.Category)
	}
	if strings.Contains(doc.Text, "category:") {
		t.Errorf("Front matter leaked into text: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Participated in circle time.") {
		t.Errorf("Missing body text: %q", doc.Text)
	}
}

// TestConvert_InvalidFrontMatter tests malformed YAML is reported.
func TestConvert_InvalidFrontMatter(t *testing.T) {
	input := "---\ntitle: [unclosed\n---\nBody\n"

	if _, err := NewConverter().Convert([]byte(input)); err == nil {
		t.Error("Expected error for malformed front matter")
	}
}

// TestConvert_SkipsHTMLKeepsCode tests raw HTML is dropped while code text is kept.
func TestConvert_SkipsHTMLKeepsCode(t *testing.T) {
	input := "<div class=\"note\">hidden</div>\n\nVisible paragraph.\n\n```\nschedule: morning\n```\n"

	text, err := PlainText([]byte(input))
	if err != nil {
		t.Fatalf("PlainText failed: %v", err)
	}

	if strings.Contains(text, "hidden") || strings.Contains(text, "<div") {
		t.Errorf("HTML should be stripped, got %q", text)
	}
	if !strings.Contains(text, "Visible paragraph.") {
		t.Errorf("Missing paragraph, got %q", text)
	}
	if !strings.Contains(text, "schedule: morning") {
		t.Errorf("Missing code block text, got %q", text)
	}
}

// TestConvert_NoHeaders tests documents without headers have no title.
func TestConvert_NoHeaders(t *testing.T) {
	doc, err := NewConverter().Convert([]byte("Just a note.\nSecond line."))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if doc.Title != "" {
		t.Errorf("Expected empty title, got %q", doc.Title)
	}
	if doc.Text != "Just a note. Second line." {
		t.Errorf("Expected soft line break as space, got %q", doc.Text)
	}
}
