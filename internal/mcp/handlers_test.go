package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/policy-rag/internal/rag"
	"github.com/bull/policy-rag/internal/retriever"
	"github.com/bull/policy-rag/internal/storage"
)

type fakePipeline struct {
	last    rag.Request
	err     error
	history []rag.Entry
}

func (p *fakePipeline) Query(ctx context.Context, req rag.Request) (*rag.Response, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	p.history = append(p.history, rag.Entry{Question: req.Question, Answer: "answer"})
	return &rag.Response{Question: req.Question, Answer: "answer", Sources: []rag.Source{}, FollowUpQuestions: []string{}}, nil
}

func (p *fakePipeline) History() []rag.Entry { return p.history }
func (p *fakePipeline) ClearHistory()        { p.history = nil }

type fakeSearcher struct {
	results []retriever.Result
	topK    int
}

func (s *fakeSearcher) Search(ctx context.Context, q string, topK int) ([]retriever.Result, error) {
	s.topK = topK
	return s.results, nil
}

type fakeIndex struct {
	err     error
	sources []string
}

func (i fakeIndex) Health(ctx context.Context) error { return i.err }
func (i fakeIndex) Len() int                         { return 12 }
func (i fakeIndex) Dimension() int                   { return 1536 }
func (i fakeIndex) Sources() []string                { return i.sources }

func TestAskHandler(t *testing.T) {
	p := &fakePipeline{}
	ask := makeAskHandler(p)

	_, out, err := ask(context.Background(), nil, AskInput{Question: "Who is the CEO?", MinScore: 0.5, Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Answer)
	assert.Equal(t, rag.Request{Question: "Who is the CEO?", TopK: rag.DefaultTopK, MinScore: 0.5, Summarize: true}, p.last)

	_, _, err = ask(context.Background(), nil, AskInput{Question: "  "})
	assert.Error(t, err)
	_, _, err = ask(context.Background(), nil, AskInput{Question: "q", TopK: 11})
	assert.Error(t, err)

	p.err = rag.ErrIndexNotLoaded
	_, _, err = ask(context.Background(), nil, AskInput{Question: "q"})
	assert.ErrorIs(t, err, rag.ErrIndexNotLoaded)
}

func TestSearchHandler(t *testing.T) {
	s := &fakeSearcher{results: []retriever.Result{
		{Content: "Jane Doe is CEO.", Score: 0.9, Metadata: storage.ChunkMetadata{SourceFile: "handbook.pdf", Page: "1"}},
		{Content: "Leave lasts 26 weeks.", Score: 0.3, Metadata: storage.ChunkMetadata{SourceFile: "leave.md", Section: "# Leave"}},
	}}
	search := makeSearchHandler(s)

	_, out, err := search(context.Background(), nil, SearchInput{Query: "ceo", TopK: 2, MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2, s.topK)
	require.Len(t, out.Results, 1)
	assert.Equal(t, SearchResult{Source: "handbook.pdf", Page: "1", Score: 0.9, Content: "Jane Doe is CEO."}, out.Results[0])

	_, out, err = search(context.Background(), nil, SearchInput{Query: "ceo"})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, storage.UnknownPage, out.Results[1].Page)
	assert.Equal(t, "# Leave", out.Results[1].Section)

	_, out, err = search(context.Background(), nil, SearchInput{Query: "ceo", MinScore: 0.95})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.NotNil(t, out.Results)
	assert.NotEmpty(t, out.Message)

	_, _, err = search(context.Background(), nil, SearchInput{Query: "ceo", MinScore: 2})
	assert.Error(t, err)
}

func TestHistoryHandlers(t *testing.T) {
	p := &fakePipeline{}
	ask := makeAskHandler(p)
	for _, q := range []string{"one", "two"} {
		_, _, err := ask(context.Background(), nil, AskInput{Question: q})
		require.NoError(t, err)
	}

	_, hist, err := makeHistoryHandler(p)(context.Background(), nil, HistoryInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, hist.Count)
	assert.Equal(t, "two", hist.History[1].Question)

	_, cleared, err := makeClearHistoryHandler(p)(context.Background(), nil, ClearHistoryInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, cleared.Cleared)

	_, hist, err = makeHistoryHandler(p)(context.Background(), nil, HistoryInput{})
	require.NoError(t, err)
	assert.Zero(t, hist.Count)
	assert.NotNil(t, hist.History)
}

func TestStatusHandler(t *testing.T) {
	indexedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := func() IndexInfo {
		return IndexInfo{Backend: "file", Source: "dir:data", IndexedAt: indexedAt}
	}

	_, out, err := makeStatusHandler(fakeIndex{sources: []string{"handbook.pdf"}}, info)(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Healthy)
	assert.Equal(t, 12, out.TotalChunks)
	assert.Equal(t, 1536, out.Dimension)
	assert.Equal(t, []string{"handbook.pdf"}, out.Sources)
	assert.Equal(t, "file", out.Backend)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.LastIndexed)

	_, out, err = makeStatusHandler(fakeIndex{err: errors.New("index not loaded")}, nil)(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.False(t, out.Healthy)
	assert.Equal(t, "index not loaded", out.Error)
	assert.Zero(t, out.TotalChunks)
	assert.Equal(t, []string{}, out.Sources)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(&Config{
		Pipeline: &fakePipeline{},
		Searcher: &fakeSearcher{},
		Index:    fakeIndex{},
	})
	require.NotNil(t, s.MCPServer())
	assert.NotNil(t, NewHTTPHandler(s, true))
}
