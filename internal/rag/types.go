package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/bull/policy-rag/internal/prompt"
	"github.com/bull/policy-rag/internal/retriever"
	"github.com/bull/policy-rag/internal/storage"
)

// Defaults applied by callers that do not set their own.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.0
)

// Request is one question put to the pipeline.
type Request struct {
	Question     string
	TopK         int
	MinScore     float64
	Summarize    bool
	Conversation []prompt.Turn // Prior turns, oldest first. Only the last 6 are used.
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is empty", ErrMalformedInput)
	}
	if r.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrMalformedInput, r.TopK)
	}
	if math.IsNaN(r.MinScore) || r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [0, 1], got %v", ErrMalformedInput, r.MinScore)
	}
	return nil
}

// Source describes one retrieved chunk in a response.
type Source struct {
	Source  string  `json:"source"`
	Page    string  `json:"page"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Response is the pipeline's answer to a Request.
type Response struct {
	Question          string   `json:"question"`
	Answer            string   `json:"answer"`
	Sources           []Source `json:"sources"`
	Summary           *string  `json:"summary"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// Entry is a history record. Answer never includes the citation line.
type Entry struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Summary  *string  `json:"summary"`
}

const previewChars = 120

func newSource(r retriever.Result) Source {
	source := r.Metadata.SourceFile
	if source == "" {
		source = storage.UnknownPage
	}
	return Source{
		Source:  source,
		Page:    r.Metadata.PageLabel(),
		Score:   r.Score,
		Preview: preview(r.Content),
	}
}

// preview returns the first 120 characters, with "..." appended when text was cut.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}
