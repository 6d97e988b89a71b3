// Package rag sequences scope check, retrieval, prompt composition, generation and
// post-processing for a single question, and records every completed query.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/bull/policy-rag/internal/history"
	"github.com/bull/policy-rag/internal/prompt"
	"github.com/bull/policy-rag/internal/retriever"
	"github.com/bull/policy-rag/internal/scope"
)

// Fallback answers. Both start with fallbackPrefix so they are never treated as substantive.
const (
	fallbackPrefix = "I couldn't find"

	NoDocumentsAnswer = "I couldn't find relevant information in the company documents for your question. " +
		"Please try rephrasing, or ask about HR policies, leave, benefits, or other company topics."

	BelowThresholdAnswer = "I couldn't find information in the company documents that is relevant enough to answer your question. " +
		"Try lowering the minimum relevance score, rephrasing, or asking about HR policies, leave, benefits, or other company topics."

	// NoResultsBasicAnswer is what SearchAndSummarize returns when nothing is retrieved.
	NoResultsBasicAnswer = "No relevant documents found."

	// minSubstantiveChars is the length in characters an answer must exceed to earn a citation.
	minSubstantiveChars = 80
)

// Generator produces text from a prompt. generation.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher returns scored results for a question. retriever.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, question string, topK int) ([]retriever.Result, error)
}

// Pipeline answers questions over the indexed corpus.
type Pipeline struct {
	searcher   Searcher
	generator  Generator
	classifier scope.Classifier
	composer   prompt.Composer
	history    *history.Log[Entry]
	logger     *slog.Logger
}

// NewPipeline creates a pipeline with an empty history.
func NewPipeline(
	searcher Searcher,
	generator Generator,
	classifier scope.Classifier,
	composer prompt.Composer,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		searcher:   searcher,
		generator:  generator,
		classifier: classifier,
		composer:   composer,
		history:    history.New[Entry](),
		logger:     logger,
	}
}

// Query answers req. A query that returns an error is not recorded in history.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	if scope.IsOutOfScope(p.classifier, req.Question) {
		p.logger.Debug("Question out of scope", "question", req.Question)
		return p.answerOutOfScope(ctx, req.Question)
	}

	results, err := p.searcher.Search(ctx, req.Question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		p.logger.Info("No documents retrieved", "question", req.Question)
		return p.record(req.Question, NoDocumentsAnswer, nil, nil), nil
	}

	kept := retriever.Filter(results, req.MinScore)
	if len(kept) == 0 {
		p.logger.Info("All results below minimum score",
			"question", req.Question,
			"retrieved", len(results),
			"min_score", req.MinScore,
			"best_score", results[0].Score,
		)
		return p.record(req.Question, BelowThresholdAnswer, nil, nil), nil
	}

	contexts := make([]string, len(kept))
	sources := make([]Source, len(kept))
	for i, res := range kept {
		contexts[i] = res.Content
		sources[i] = newSource(res)
	}

	answerPrompt, err := p.composer.Answer(req.Question, req.Conversation, contexts)
	if err != nil {
		return nil, fmt.Errorf("compose answer: %w", err)
	}
	answer, err := p.generator.Generate(ctx, answerPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: answer: %w", ErrGeneration, err)
	}

	substantive := isSubstantive(answer, sources)
	summary, followUps, err := p.postProcess(ctx, req, answer, substantive)
	if err != nil {
		return nil, err
	}

	resp := p.record(req.Question, answer, sources, summary)
	resp.FollowUpQuestions = followUps
	if substantive {
		resp.Answer = answer + citation(sources[0])
	}

	p.logger.Info("Query answered",
		"sources", len(sources),
		"substantive", substantive,
		"summary", summary != nil,
		"follow_ups", len(followUps),
		"duration", time.Since(start),
	)
	return resp, nil
}

func (p *Pipeline) answerOutOfScope(ctx context.Context, question string) (*Response, error) {
	casualPrompt, err := p.composer.OutOfScope(question)
	if err != nil {
		return nil, fmt.Errorf("compose reply: %w", err)
	}
	answer, err := p.generator.Generate(ctx, casualPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: casual reply: %w", ErrGeneration, err)
	}
	return p.record(question, answer, nil, nil), nil
}

// postProcess runs summary and follow-up generation concurrently.
// A summary failure fails the query; follow-up failures yield an empty list.
func (p *Pipeline) postProcess(ctx context.Context, req Request, answer string, substantive bool) (*string, []string, error) {
	followUps := []string{}
	if !substantive {
		return nil, followUps, nil
	}

	var summary *string
	g, gctx := errgroup.WithContext(ctx)

	if req.Summarize {
		g.Go(func() error {
			text, err := p.generator.Generate(gctx, p.composer.Summary(answer))
			if err != nil {
				return fmt.Errorf("%w: summary: %w", ErrGeneration, err)
			}
			summary = &text
			return nil
		})
	}

	g.Go(func() error {
		text, err := p.generator.Generate(gctx, p.composer.FollowUps(req.Question, answer))
		if err != nil {
			p.logger.Warn("Follow-up generation failed", "error", err)
			return nil
		}
		followUps = prompt.ParseFollowUps(text)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return summary, followUps, nil
}

// record appends the uncited answer to history and returns the matching response.
func (p *Pipeline) record(question, answer string, sources []Source, summary *string) *Response {
	if sources == nil {
		sources = []Source{}
	}
	p.history.Append(Entry{
		Question: question,
		Answer:   answer,
		Sources:  sources,
		Summary:  summary,
	})
	return &Response{
		Question:          question,
		Answer:            answer,
		Sources:           sources,
		Summary:           summary,
		FollowUpQuestions: []string{},
	}
}

// isSubstantive reports whether answer came from the documents and is long enough to cite.
func isSubstantive(answer string, sources []Source) bool {
	return len(sources) > 0 &&
		utf8.RuneCountInString(answer) > minSubstantiveChars &&
		!strings.HasPrefix(answer, fallbackPrefix)
}

func citation(top Source) string {
	return fmt.Sprintf("\n\nCitation:\n[1] %s (page %s)", top.Source, top.Page)
}

// History returns a snapshot of every completed query, oldest first.
func (p *Pipeline) History() []Entry {
	return p.history.Entries()
}

// ClearHistory empties the history.
func (p *Pipeline) ClearHistory() {
	p.history.Clear()
	p.logger.Info("Query history cleared")
}

// SearchAndSummarize is the single-shot path: retrieve topK chunks with no score threshold
// and summarize them for the question. It does not touch history.
func (p *Pipeline) SearchAndSummarize(ctx context.Context, question string, topK int) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: question is empty", ErrMalformedInput)
	}
	if topK < 1 {
		return "", fmt.Errorf("%w: top_k must be at least 1, got %d", ErrMalformedInput, topK)
	}

	results, err := p.searcher.Search(ctx, question, topK)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Content != "" {
			texts = append(texts, r.Content)
		}
	}
	if len(texts) == 0 {
		return NoResultsBasicAnswer, nil
	}

	answer, err := p.generator.Generate(ctx, p.composer.Basic(question, strings.Join(texts, "\n\n")))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return answer, nil
}
