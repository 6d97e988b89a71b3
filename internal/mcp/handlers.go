package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/policy-rag/internal/rag"
	"github.com/bull/policy-rag/internal/retriever"
)

// Tool argument bounds, shared with the REST interface.
const (
	maxTopK          = 10
	maxQuestionChars = 500
)

func checkQuestion(field, q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if len([]rune(q)) > maxQuestionChars {
		return fmt.Errorf("%s must be at most %d characters", field, maxQuestionChars)
	}
	return nil
}

// resolveTopK applies the default for an omitted top_k and enforces the upper bound.
func resolveTopK(k int) (int, error) {
	if k == 0 {
		return rag.DefaultTopK, nil
	}
	if k < 1 || k > maxTopK {
		return 0, fmt.Errorf("top_k must be between 1 and %d, got %d", maxTopK, k)
	}
	return k, nil
}

// makeAskHandler creates the ask_documents tool handler.
func makeAskHandler(pipeline Pipeline) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		if err := checkQuestion("question", input.Question); err != nil {
			return nil, AskOutput{}, err
		}
		topK, err := resolveTopK(input.TopK)
		if err != nil {
			return nil, AskOutput{}, err
		}

		resp, err := pipeline.Query(ctx, rag.Request{
			Question:  input.Question,
			TopK:      topK,
			MinScore:  input.MinScore,
			Summarize: input.Summarize,
		})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}
		return nil, *resp, nil
	}
}

// makeSearchHandler creates the search_documents tool handler.
// Results below min_score are dropped after retrieval, so fewer than top_k may come back.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		if err := checkQuestion("query", input.Query); err != nil {
			return nil, SearchOutput{}, err
		}
		topK, err := resolveTopK(input.TopK)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		if input.MinScore < 0 || input.MinScore > 1 {
			return nil, SearchOutput{}, fmt.Errorf("min_score must be between 0 and 1, got %v", input.MinScore)
		}

		found, err := searcher.Search(ctx, input.Query, topK)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		kept := retriever.Filter(found, input.MinScore)
		results := make([]SearchResult, len(kept))
		for i, r := range kept {
			results[i] = SearchResult{
				Source:  r.Metadata.SourceFile,
				Page:    r.Metadata.PageLabel(),
				Section: r.Metadata.Section,
				Score:   r.Score,
				Content: r.Content,
			}
		}

		if len(results) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No matching documents found. Try broader search terms or a lower min_score.",
			}, nil
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeHistoryHandler creates the get_history tool handler.
func makeHistoryHandler(pipeline Pipeline) func(
	context.Context, *mcp.CallToolRequest, HistoryInput,
) (*mcp.CallToolResult, HistoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (
		*mcp.CallToolResult, HistoryOutput, error,
	) {
		history := pipeline.History()
		if history == nil {
			history = []rag.Entry{}
		}
		return nil, HistoryOutput{History: history, Count: len(history)}, nil
	}
}

// makeClearHistoryHandler creates the clear_history tool handler.
func makeClearHistoryHandler(pipeline Pipeline) func(
	context.Context, *mcp.CallToolRequest, ClearHistoryInput,
) (*mcp.CallToolResult, ClearHistoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClearHistoryInput) (
		*mcp.CallToolResult, ClearHistoryOutput, error,
	) {
		n := len(pipeline.History())
		pipeline.ClearHistory()
		return nil, ClearHistoryOutput{Cleared: n}, nil
	}
}

// sourceLister is implemented by backends that can enumerate their source files.
type sourceLister interface {
	Sources() []string
}

// makeStatusHandler creates the get_index_status tool handler.
// An unhealthy index is reported in the output, not as a tool error.
func makeStatusHandler(index Index, info func() IndexInfo) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{Sources: []string{}}

		if err := index.Health(ctx); err != nil {
			out.Error = err.Error()
		} else {
			out.Healthy = true
			out.TotalChunks = index.Len()
			out.Dimension = index.Dimension()
		}
		if sl, ok := index.(sourceLister); ok {
			if sources := sl.Sources(); sources != nil {
				out.Sources = sources
			}
		}

		if info != nil {
			meta := info()
			out.Backend = meta.Backend
			out.Source = meta.Source
			out.Revision = meta.Revision
			if !meta.IndexedAt.IsZero() {
				out.LastIndexed = meta.IndexedAt.UTC().Format(time.RFC3339)
			}
		}
		return nil, out, nil
	}
}
