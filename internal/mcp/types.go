// Package mcp exposes the policy question-answering pipeline as MCP tools.
package mcp

import "github.com/bull/policy-rag/internal/rag"

// AskInput defines the input parameters for the ask_documents tool.
type AskInput struct {
	// Question is asked against the indexed policy documents.
	Question string `json:"question" jsonschema:"The question to answer from the policy documents"`
	// TopK is the number of chunks to retrieve.
	TopK int `json:"top_k,omitempty" jsonschema:"Number of chunks to retrieve (1-10), default 5"`
	// MinScore drops chunks scoring below it.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum similarity score (0-1), default 0"`
	// Summarize requests a two-sentence summary of the answer.
	Summarize bool `json:"summarize,omitempty" jsonschema:"Also return a two-sentence summary"`
}

// AskOutput is the pipeline response.
type AskOutput = rag.Response

// SearchInput defines the input parameters for the search_documents tool.
type SearchInput struct {
	Query    string  `json:"query" jsonschema:"Text to search the policy documents for"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (1-10), default 5"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum similarity score (0-1), default 0"`
}

// SearchOutput contains the matching chunks, best first.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message is set when nothing matched.
	Message string `json:"message,omitempty"`
}

// SearchResult is one matching chunk.
type SearchResult struct {
	Source  string  `json:"source"`
	Page    string  `json:"page"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// HistoryInput takes no parameters.
type HistoryInput struct{}

// HistoryOutput lists completed queries, oldest first.
type HistoryOutput struct {
	History []rag.Entry `json:"history"`
	Count   int         `json:"count"`
}

// ClearHistoryInput takes no parameters.
type ClearHistoryInput struct{}

// ClearHistoryOutput confirms the history was emptied.
type ClearHistoryOutput struct {
	Cleared int `json:"cleared"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the live index.
type StatusOutput struct {
	Healthy     bool     `json:"healthy"`
	Error       string   `json:"error,omitempty"`
	Backend     string   `json:"backend"`
	TotalChunks int      `json:"total_chunks"`
	Dimension   int      `json:"dimension"`
	Sources     []string `json:"sources"`
	Source      string   `json:"source,omitempty"`   // Where the corpus was read from
	Revision    string   `json:"revision,omitempty"` // GitHub commit SHA for remote corpora
	LastIndexed string   `json:"last_indexed,omitempty"`
}
