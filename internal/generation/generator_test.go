package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
	return NewGenerator(&c, "test-chat-model", nil)
}

func writeCompletion(w http.ResponseWriter, model string, contents ...string) {
	choices := make([]map[string]any, len(contents))
	for i, c := range contents {
		choices[i] = map[string]any{
			"index":         i,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": c},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   model,
		"choices": choices,
	})
}

func TestGenerate_SendsPromptAndTrims(t *testing.T) {
	var got chatRequest
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, got.Model, "  The CEO is Jane Doe.\n")
	})

	answer, err := g.Generate(context.Background(), "Who is the CEO?")
	require.NoError(t, err)
	assert.Equal(t, "The CEO is Jane Doe.", answer)

	assert.Equal(t, "test-chat-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Who is the CEO?", got.Messages[0].Content)
}

func TestGenerate_EmptyChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "test-chat-model")
	})

	_, err := g.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGenerate_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		writeCompletion(w, "test-chat-model", "ok")
	})

	answer, err := g.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestGenerate_ServerErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := g.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestTruncatePrompt(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		prompt    string
		wantLen   int
	}{
		{"default limit, long prompt", DefaultMaxTokens, strings.Repeat("This is a test content. ", 4000), DefaultMaxTokens * 4},
		{"default limit, short prompt", DefaultMaxTokens, strings.Repeat("Short. ", 140), 7 * 140},
		{"custom limit", 1000, strings.Repeat("Content. ", 1000), 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(nil, "", nil, tt.maxTokens)
			truncated := g.truncatePrompt(tt.prompt)
			assert.Len(t, truncated, tt.wantLen)
			assert.True(t, strings.HasPrefix(tt.prompt, truncated))
		})
	}
}

func TestNewGenerator_Defaults(t *testing.T) {
	g := NewGenerator(nil, "", nil)
	assert.Equal(t, DefaultModel, g.Model())
	assert.Equal(t, DefaultMaxTokens, g.maxTokens)
}
