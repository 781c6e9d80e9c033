package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bull/report-rag/internal/index"
)

// DefaultMaxTokens is the maximum prompt length before truncation (in tokens).
const DefaultMaxTokens = 16000

// EvolutionMetric scores one report date on a 0-10 scale per development area.
type EvolutionMetric struct {
	Date              string  `json:"date"`
	Communication     float64 `json:"communication"`
	SocialInteraction float64 `json:"social_interaction"`
	Behavior          float64 `json:"behavior"`
	Autonomy          float64 `json:"autonomy"`
	Summary           string  `json:"summary"`
}

type evolutionResponse struct {
	Metrics []EvolutionMetric `json:"metrics"`
}

// Analyzer extracts evolution metrics from a chronological set of reports.
type Analyzer struct {
	completer Completer
	maxTokens int
	logger    *slog.Logger
}

// NewAnalyzer creates an analyzer.
// Optional maxTokens parameter sets truncation limit (defaults to DefaultMaxTokens).
func NewAnalyzer(completer Completer, logger *slog.Logger, maxTokens ...int) *Analyzer {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		completer: completer,
		maxTokens: max,
		logger:    logger,
	}
}

// AnalyzeEvolution asks the model to score every report, oldest first.
// No reports yields no metrics and no model call.
func (a *Analyzer) AnalyzeEvolution(ctx context.Context, docs []index.Document) ([]EvolutionMetric, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	sorted := SortChronologically(docs)

	var reports strings.Builder
	for i, d := range sorted {
		if i > 0 {
			reports.WriteString("\n\n")
		}
		fmt.Fprintf(&reports, "[Date: %s] [Type: %s] Content: %s", d.Date, d.Category, d.Content)
	}

	userPrompt := fmt.Sprintf(`Analyze the following chronological therapy reports of a child.
For each report, assign a qualitative score from 0 to 10 for: communication, social interaction, behavior (fewer disruptive behaviors = higher score) and autonomy.

Important:
- Consider the evolution. If a report mentions "significant improvement", its score must be higher than the previous one.
- If an area is not explicitly mentioned, keep the trend of the previous report.

Reports:
%s

Respond in JSON format:
{"metrics": [{"date": "YYYY-MM-DD", "communication": 0, "social_interaction": 0, "behavior": 0, "autonomy": 0, "summary": "Main milestone of this date in at most 10 words"}]}`,
		a.truncateContent(reports.String()))

	reply, err := a.completer.Complete(ctx, Request{
		System:   "Extract temporal evolution metrics.",
		Messages: []Message{{Role: RoleUser, Text: userPrompt}},
		JSON:     true,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := parseMetrics(reply)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Analyzed evolution", "reports", len(sorted), "metrics", len(metrics))
	return metrics, nil
}

// parseMetrics accepts {"metrics": [...]}, a bare array, and either wrapped in code fences.
func parseMetrics(reply string) ([]EvolutionMetric, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if strings.HasPrefix(cleaned, "[") {
		var metrics []EvolutionMetric
		if err := json.Unmarshal([]byte(cleaned), &metrics); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return metrics, nil
	}

	var resp evolutionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Metrics, nil
}

// SortChronologically returns a copy of docs ordered by date, oldest first.
// Dates that do not parse as YYYY-MM-DD are compared as strings after the parsed ones.
func SortChronologically(docs []index.Document) []index.Document {
	sorted := slices.Clone(docs)
	slices.SortStableFunc(sorted, func(x, y index.Document) int {
		tx, errX := time.Parse(time.DateOnly, x.Date)
		ty, errY := time.Parse(time.DateOnly, y.Date)
		switch {
		case errX == nil && errY == nil:
			return tx.Compare(ty)
		case errX == nil:
			return -1
		case errY == nil:
			return 1
		default:
			return strings.Compare(x.Date, y.Date)
		}
	})
	return sorted
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (a *Analyzer) truncateContent(content string) string {
	maxChars := a.maxTokens * 4

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	a.logger.Warn("Truncating report content",
		"from_chars", len(runes), "to_chars", maxChars, "max_tokens", a.maxTokens)

	return string(runes[:maxChars])
}
