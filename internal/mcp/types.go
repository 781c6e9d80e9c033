// Package mcp exposes the report index as MCP tools.
package mcp

import "github.com/bull/report-rag/internal/chat"

// DefaultSessionID is used when a tool call names no session.
const DefaultSessionID = "default"

// ReportInput is one report supplied inline to sync_reports.
type ReportInput struct {
	ID       string `json:"id" jsonschema:"Unique report identifier"`
	Title    string `json:"title,omitempty" jsonschema:"Human readable report title"`
	Date     string `json:"date,omitempty" jsonschema:"Report date (YYYY-MM-DD)"`
	Category string `json:"category,omitempty" jsonschema:"Report category such as Speech Therapy or School"`
	Content  string `json:"content" jsonschema:"Full report text"`
}

// SyncReportsInput defines the input parameters for the sync_reports tool.
type SyncReportsInput struct {
	// SessionID selects the session index; empty uses the default session.
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose index is synced"`
	// Reports are inline reports. Ignored when File is set.
	Reports []ReportInput `json:"reports,omitempty" jsonschema:"Reports to index"`
	// File is a YAML or JSON report list readable by the server.
	File string `json:"file,omitempty" jsonschema:"Path to a YAML or JSON report file on the server"`
}

// SyncReportsOutput summarizes a sync.
type SyncReportsOutput struct {
	SessionID      string `json:"session_id"`
	Skipped        bool   `json:"skipped"`
	TotalDocs      int    `json:"total_docs"`
	TotalChunks    int    `json:"total_chunks"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	FailedChunks   int    `json:"failed_chunks"`
	Generation     uint64 `json:"generation"`
	DurationMS     int64  `json:"duration_ms"`
	// Degraded is true when some chunks could not be embedded and are invisible to search.
	Degraded bool `json:"degraded"`
}

// SearchReportsInput defines the input parameters for the search_reports tool.
type SearchReportsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session to search"`
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// Limit is the maximum number of chunks to return.
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of chunks to return (default 8)"`
	// Threshold is the minimum similarity a chunk must exceed. Nil uses the default.
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum similarity score a chunk must exceed (default 0.35)"`
}

// SearchReportsOutput contains the search results.
type SearchReportsOutput struct {
	Results []SearchResult `json:"results"`
	// Context is the assembled context block for the results.
	Context string `json:"context"`
	// Message provides informational context (e.g., "No matching reports found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single chunk match.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Date       string  `json:"date"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// HistoryMessage is one prior conversation turn.
type HistoryMessage struct {
	Role    string `json:"role" jsonschema:"Either user or assistant"`
	Content string `json:"content" jsonschema:"Message text"`
}

// AskReportsInput defines the input parameters for the ask_reports tool.
type AskReportsInput struct {
	SessionID string           `json:"session_id,omitempty" jsonschema:"Session whose reports are consulted"`
	Question  string           `json:"question" jsonschema:"The question about the patient's reports"`
	History   []HistoryMessage `json:"history,omitempty" jsonschema:"Earlier conversation turns, oldest first"`
}

// AskReportsOutput contains the grounded answer.
type AskReportsOutput struct {
	Answer string `json:"answer"`
	// Grounded is false when retrieval was unavailable.
	Grounded bool           `json:"grounded"`
	Sources  []SearchResult `json:"sources"`
	Message  string         `json:"message,omitempty"`
}

// AnalyzeEvolutionInput defines the input parameters for the analyze_evolution tool.
type AnalyzeEvolutionInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose synced reports are analyzed"`
}

// AnalyzeEvolutionOutput contains the chronological metrics.
type AnalyzeEvolutionOutput struct {
	Metrics []chat.EvolutionMetric `json:"metrics"`
	Message string                 `json:"message,omitempty"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session to inspect"`
}

// StatusOutput describes a session's index.
type StatusOutput struct {
	SessionID      string   `json:"session_id"`
	Found          bool     `json:"found"`
	TotalDocs      int      `json:"total_docs"`
	TotalChunks    int      `json:"total_chunks"`
	EmbeddedChunks int      `json:"embedded_chunks"`
	Generation     uint64   `json:"generation"`
	DocumentIDs    []string `json:"document_ids"`
	LastSyncTime   string   `json:"last_sync_time,omitempty"`
	ActiveSessions int      `json:"active_sessions"`
	// MirroredPoints is nil when no mirror is configured or it could not be read.
	MirroredPoints *uint64 `json:"mirrored_points,omitempty"`
	// CollectionPoints counts every session's points in the mirror.
	CollectionPoints *uint64 `json:"collection_points,omitempty"`
	Message          string  `json:"message,omitempty"`
}
