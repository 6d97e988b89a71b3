// Package api serves the question-answering pipeline over a JSON REST interface.
package api

import (
	"github.com/bull/policy-rag/internal/prompt"
	"github.com/bull/policy-rag/internal/rag"
)

// Request limits.
const (
	MaxQuestionChars = 500
	MaxTopK          = 10
	DefaultBasicTopK = 3
)

// BasicQueryRequest is the body of POST /api/query/basic.
type BasicQueryRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// BasicQueryResponse is the reply to a basic query.
type BasicQueryResponse struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

// AdvancedQueryRequest is the body of POST /api/query/advanced.
type AdvancedQueryRequest struct {
	Question     string        `json:"question"`
	TopK         *int          `json:"top_k,omitempty"`
	MinScore     *float64      `json:"min_score,omitempty"`
	Summarize    bool          `json:"summarize"`
	Conversation []prompt.Turn `json:"conversation,omitempty"`
}

// AdvancedQueryResponse is the reply to an advanced query.
type AdvancedQueryResponse struct {
	rag.Response
	Timestamp string `json:"timestamp"`
}

// HistoryResponse is the reply to GET /api/history.
type HistoryResponse struct {
	History []rag.Entry `json:"history"`
	Count   int         `json:"count"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// InfoResponse is served at / to non-browser clients.
type InfoResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Health  string `json:"health"`
}
