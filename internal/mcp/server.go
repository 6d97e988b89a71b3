package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/policy-rag/internal/rag"
	"github.com/bull/policy-rag/internal/retriever"
)

// Pipeline answers questions and keeps their history. rag.Pipeline satisfies it.
type Pipeline interface {
	Query(ctx context.Context, req rag.Request) (*rag.Response, error)
	History() []rag.Entry
	ClearHistory()
}

// Searcher returns scored chunks. retriever.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, question string, topK int) ([]retriever.Result, error)
}

// Index is the live index as reported by get_index_status.
type Index interface {
	Health(ctx context.Context) error
	Len() int
	Dimension() int
}

// IndexInfo is provenance of the live index, filled in by whoever built it.
type IndexInfo struct {
	Backend   string
	Source    string
	Revision  string
	IndexedAt time.Time
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Pipeline Pipeline
	Searcher Searcher
	Index    Index
	// Info is optional; nil reports no provenance.
	Info func() IndexInfo
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "policy-rag-server",
		Version: "v1.0.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the company policy documents. Returns the answer with a citation, the retrieved sources, an optional summary and suggested follow-up questions.",
	}, makeAskHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over the policy documents. Returns matching chunks with their source file, page and similarity score.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_history",
		Description: "List previously answered questions, oldest first.",
	}, makeHistoryHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_history",
		Description: "Forget all previously answered questions.",
	}, makeClearHistoryHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the state of the document index: chunk count, indexed sources, where the corpus came from and when it was last built.",
	}, makeStatusHandler(cfg.Index, cfg.Info))

	return &Server{server: server}
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
