package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/policy-rag/internal/embedding"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxTokens is the maximum prompt length before truncation (in tokens).
	DefaultMaxTokens = 16000
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Generator produces free text from a prompt with an OpenAI chat model.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a Generator. Empty model falls back to DefaultModel.
// Optional maxTokens parameter sets the truncation limit (defaults to DefaultMaxTokens).
func NewGenerator(client *openai.Client, model string, logger *slog.Logger, maxTokens ...int) *Generator {
	if model == "" {
		model = DefaultModel
	}
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:    client,
		model:     model,
		maxTokens: max,
		logger:    logger,
	}
}

// Model returns the configured chat model name.
func (g *Generator) Model() string { return g.model }

// Generate sends prompt as a single user message and returns the trimmed reply.
// Rate limit errors are retried with backoff; anything else fails immediately.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = g.truncatePrompt(prompt)

	var content string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: openai.ChatModel(g.model),
		})
		if err != nil {
			if embedding.IsRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyCompletion)
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(embedding.NewBackOff(), ctx)); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return strings.TrimSpace(content), nil
}

// truncatePrompt truncates the prompt to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncatePrompt(prompt string) string {
	maxChars := g.maxTokens * 4

	if len(prompt) <= maxChars {
		return prompt
	}

	g.logger.Warn("Truncating prompt",
		"from_chars", len(prompt),
		"to_chars", maxChars,
		"max_tokens", g.maxTokens,
	)
	return prompt[:maxChars]
}
