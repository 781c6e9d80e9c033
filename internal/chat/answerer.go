package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/report-rag/internal/index"
	"github.com/bull/report-rag/internal/prompt"
	"github.com/bull/report-rag/internal/retriever"
)

// NoInformationReply is returned instead of calling the model when retrieval is unavailable.
const NoInformationReply = "I could not find specific information in the analyzed reports for this question."

// EmptyReply is returned when the model produced no text.
const EmptyReply = "Sorry, I could not produce an analysis based on the reports."

// SystemInstruction frames the model as a clinical reviewer of chronological reports.
const SystemInstruction = `You are a senior clinical specialist in child development and autism (ASD).

Main goal: analyze the child's EVOLUTION over time by comparing the provided reports.

Guidelines:
1. Chronological comparison: always cite dates. Compare the oldest report with the most recent one to show gains or losses.
2. Evidence: base your answers STRICTLY on the provided excerpts. If something changed, cite the specific report.
3. Action: suggest practical interventions based on ABA or the therapies mentioned, focusing on areas that stagnated or regressed.
4. Tone: clinical and encouraging, but realistic.

Structure your answers contrasting "Previous Context" with "Current Situation".`

// Searcher finds report excerpts relevant to a question. *retriever.Retriever satisfies it.
type Searcher interface {
	Query(ctx context.Context, text string, limit int) ([]index.ScoredChunk, error)
}

// Answer is the model's reply plus the excerpts it was grounded in.
type Answer struct {
	Text    string              `json:"text"`
	Sources []index.ScoredChunk `json:"-"`
	// Grounded is false when retrieval was unavailable and the model was not called.
	Grounded bool `json:"grounded"`
}

// Answerer answers questions about a session's reports.
type Answerer struct {
	completer Completer
	searcher  Searcher
	limit     int
	logger    *slog.Logger
}

// NewAnswerer creates an Answerer. limit <= 0 uses retriever.DefaultLimit.
func NewAnswerer(completer Completer, searcher Searcher, limit int, logger *slog.Logger) *Answerer {
	if limit <= 0 {
		limit = retriever.DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		completer: completer,
		searcher:  searcher,
		limit:     limit,
		logger:    logger,
	}
}

// Ask retrieves excerpts for question, assembles them into context and asks the model,
// replaying history between the context and the question.
func (a *Answerer) Ask(ctx context.Context, question string, history []Message) (*Answer, error) {
	chunks, err := a.searcher.Query(ctx, question, a.limit)
	if err != nil {
		if errors.Is(err, retriever.ErrRetrievalUnavailable) {
			a.logger.Warn("Retrieval unavailable, answering without model", "error", err)
			return &Answer{Text: NoInformationReply}, nil
		}
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleUser, Text: contextMessage(prompt.Assemble(chunks))})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Text: question})

	reply, err := a.completer.Complete(ctx, Request{
		System:   SystemInstruction,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = EmptyReply
	}

	a.logger.Debug("Answered question", "sources", len(chunks), "history", len(history))
	return &Answer{Text: reply, Sources: chunks, Grounded: true}, nil
}

func contextMessage(reportContext string) string {
	return "RELEVANT REPORT EXCERPTS:\n\n" + reportContext + "\n\n" +
		"Answer the user's question considering the evolution shown in these excerpts. " +
		"If the question is about improvement or evolution, explicitly compare the earliest and the latest dates."
}
