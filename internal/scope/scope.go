// Package scope decides whether a question needs document retrieval at all.
package scope

import "strings"

// Verdict is the outcome of a scope check.
type Verdict int

const (
	InScope Verdict = iota
	OutOfScope
)

func (v Verdict) String() string {
	if v == OutOfScope {
		return "out_of_scope"
	}
	return "in_scope"
}

// Classifier labels a question as in or out of scope. Implementations must be deterministic.
type Classifier interface {
	Classify(question string) Verdict
}

// IsOutOfScope reports whether c labels question OutOfScope.
func IsOutOfScope(c Classifier, question string) bool {
	return c.Classify(question) == OutOfScope
}

// DefaultPhrases are conversational inputs that never need retrieval.
var DefaultPhrases = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "whats up", "thanks", "thank you", "bye",
	"goodbye", "ok", "okay", "cool", "great", "nice", "sure", "help",
	"what can you do", "what do you do", "who are you", "what are you",
}

// DefaultKeywords mark short questions as domain queries.
var DefaultKeywords = []string{
	"leave", "policy", "salary", "hr", "ceo", "benefit", "vacation", "medical", "bonus",
}

// DefaultMaxShortWords is the word count at or below which keyword-free questions are out of scope.
const DefaultMaxShortWords = 2

// Options configures a Heuristic classifier. Zero values fall back to the defaults.
type Options struct {
	Phrases       []string
	Keywords      []string
	MaxShortWords int
}

// Heuristic is the rule-based Classifier.
//
// A question is OutOfScope when its normalized form equals a phrase, or when it has at most
// MaxShortWords words and contains none of the keywords as a substring.
type Heuristic struct {
	phrases       map[string]struct{}
	keywords      []string
	maxShortWords int
}

// NewHeuristic builds a Heuristic from opts.
func NewHeuristic(opts Options) *Heuristic {
	phrases := opts.Phrases
	if phrases == nil {
		phrases = DefaultPhrases
	}
	keywords := opts.Keywords
	if keywords == nil {
		keywords = DefaultKeywords
	}
	maxShort := opts.MaxShortWords
	if maxShort <= 0 {
		maxShort = DefaultMaxShortWords
	}

	h := &Heuristic{
		phrases:       make(map[string]struct{}, len(phrases)),
		keywords:      make([]string, 0, len(keywords)),
		maxShortWords: maxShort,
	}
	for _, p := range phrases {
		h.phrases[normalize(p)] = struct{}{}
	}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			h.keywords = append(h.keywords, k)
		}
	}
	return h
}

// Classify implements Classifier.
func (h *Heuristic) Classify(question string) Verdict {
	q := normalize(question)
	if _, ok := h.phrases[q]; ok {
		return OutOfScope
	}
	if len(strings.Fields(q)) <= h.maxShortWords && !h.hasKeyword(q) {
		return OutOfScope
	}
	return InScope
}

// hasKeyword matches substrings, so "leaves" and "hrms" count.
func (h *Heuristic) hasKeyword(q string) bool {
	for _, k := range h.keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(s)), "?!.")
}
