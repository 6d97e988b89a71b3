// Package retriever turns nearest-neighbor hits into scored, relevance-filtered results.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/bull/policy-rag/internal/storage"
)

// Searcher is the read side of a storage backend.
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]storage.Hit, error)
}

// Result is one retrieved chunk with its similarity score in (0, 1].
type Result struct {
	Content  string
	Metadata storage.ChunkMetadata
	Score    float64
}

// Retriever queries the live searcher. The searcher can be swapped while queries are in flight.
type Retriever struct {
	live atomic.Pointer[searcherBox]
}

type searcherBox struct{ s Searcher }

// New creates a Retriever over s.
func New(s Searcher) *Retriever {
	r := &Retriever{}
	r.Swap(s)
	return r
}

// Swap replaces the live searcher. Queries already running finish on the old one.
func (r *Retriever) Swap(s Searcher) {
	r.live.Store(&searcherBox{s: s})
}

// Searcher returns the live searcher.
func (r *Retriever) Searcher() Searcher {
	return r.live.Load().s
}

// Similarity maps a squared Euclidean distance to a score in (0, 1].
func Similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// Search returns up to topK scored results, best first, without any score threshold.
func (r *Retriever) Search(ctx context.Context, question string, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k %d", storage.ErrInvalidK, topK)
	}
	hits, err := r.Searcher().Query(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Content:  h.Metadata.Text,
			Metadata: h.Metadata,
			Score:    Similarity(h.Distance),
		}
	}
	// Hits arrive nearest first; a stable sort keeps that order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// Filter drops results scoring below minScore. Order is preserved.
func Filter(results []Result, minScore float64) []Result {
	kept := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Score >= minScore {
			kept = append(kept, res)
		}
	}
	return kept
}

// Retrieve is Search followed by Filter. It returns an empty slice, not an error, when nothing passes.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, minScore float64) ([]Result, error) {
	results, err := r.Search(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	return Filter(results, minScore), nil
}
