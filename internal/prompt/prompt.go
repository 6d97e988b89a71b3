// Package prompt builds the text prompts sent to the language model.
// Every function here is pure: same input, same prompt.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuestion is returned when the question is blank.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoContext is returned when an answer prompt is requested without retrieved context.
	ErrNoContext = errors.New("no context to answer from")
)

const (
	// MaxTurns is how many trailing conversation turns an answer prompt includes.
	MaxTurns = 6

	// FollowUpAnswerChars caps the answer excerpt shown to the follow-up prompt.
	FollowUpAnswerChars = 400

	// MaxFollowUps is how many follow-up questions ParseFollowUps keeps.
	MaxFollowUps = 2
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the caller-supplied conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Composer holds the assistant persona used across prompts.
type Composer struct {
	Persona string // "a helpful HR and company policy assistant"
	Topics  string // What the assistant can help with, used in out-of-scope replies
	Corpus  string // How the context block is labeled: "company documents"
}

// NewComposer returns the HR policy assistant composer.
func NewComposer() Composer {
	return Composer{
		Persona: "a helpful HR and company policy assistant",
		Topics:  "company policies, HR documents, leave policies, benefits, or any document-related questions",
		Corpus:  "company documents",
	}
}

// Answer builds the grounded answer prompt. contexts are joined by blank lines in the given order.
func (c Composer) Answer(question string, conversation []Turn, contexts []string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	if len(contexts) == 0 {
		return "", ErrNoContext
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Use the context below to answer the question accurately and in detail.\n\n", c.Persona)
	b.WriteString("IMPORTANT: If the context contains numbers, statistics, percentages, dates, or amounts, ALWAYS include them in your answer.\n\n")
	b.WriteString(historyBlock(conversation))
	fmt.Fprintf(&b, "Context from %s:\n%s\n\n", c.Corpus, strings.Join(contexts, "\n\n"))
	fmt.Fprintf(&b, "Current question: %s\n\n", question)
	b.WriteString("Answer (detailed, using the context above):")
	return b.String(), nil
}

// historyBlock renders the last MaxTurns turns, or "" when there are none.
func historyBlock(conversation []Turn) string {
	if len(conversation) == 0 {
		return ""
	}
	if len(conversation) > MaxTurns {
		conversation = conversation[len(conversation)-MaxTurns:]
	}

	lines := make([]string, len(conversation))
	for i, turn := range conversation {
		speaker := "Assistant"
		if turn.Role == RoleUser {
			speaker = "User"
		}
		lines[i] = speaker + ": " + strings.TrimSpace(turn.Content)
	}
	return "Conversation so far:\n" + strings.Join(lines, "\n") + "\n\n"
}

// OutOfScope builds the casual reply prompt for greetings and meta-questions.
func (c Composer) OutOfScope(question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	return fmt.Sprintf(`You are %s. The user said: "%s"

This is a greeting or general question, not a policy query. Respond briefly and naturally, and let them know you can help with %s.`,
		c.Persona, question, c.Topics), nil
}

// Summary builds the prompt that condenses an answer.
func (c Composer) Summary(answer string) string {
	return "Provide a concise summary of the following answer in 3-4 sentences, highlighting the key points:\n" + answer
}

// FollowUps builds the prompt asking for exactly two follow-up questions.
func (c Composer) FollowUps(question, answer string) string {
	return fmt.Sprintf(`Based on this Q&A about %s, generate exactly 2 short follow-up questions the user might ask next.
Output ONLY the questions as a numbered list (1. ... 2. ...), nothing else.

Q: %s
A: %s`, c.Corpus, question, truncate(answer, FollowUpAnswerChars))
}

// Basic builds the single-shot summarize-the-context prompt.
func (c Composer) Basic(question, context string) string {
	return fmt.Sprintf("Summarize the following context for the query: '%s'\n\nContext:\n%s\n\nSummary:", question, context)
}

var numberedLine = regexp.MustCompile(`^\d+[.)\s]+(.+)$`)

// ParseFollowUps extracts up to MaxFollowUps items from a numbered list.
// Lines that are not numbered are ignored.
func ParseFollowUps(text string) []string {
	questions := make([]string, 0, MaxFollowUps)
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		m := numberedLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if q := strings.TrimSpace(m[1]); q != "" {
			questions = append(questions, q)
		}
		if len(questions) == MaxFollowUps {
			break
		}
	}
	return questions
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
