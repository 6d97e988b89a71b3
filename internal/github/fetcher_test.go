package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, mux *http.ServeMux, basePath string) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return NewFetcher(&Client{Client: gh}, "acme", "handbook", basePath)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func fileEntry(name, typ string) map[string]any {
	return map[string]any{"name": name, "type": typ}
}

func TestFetcher_ListAndRead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/handbook/contents/policies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{
			fileEntry("leave.md", "file"),
			fileEntry("logo.png", "file"),
			fileEntry("hr", "dir"),
		})
	})
	mux.HandleFunc("GET /repos/acme/handbook/contents/policies/hr", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{fileEntry("salary.txt", "file")})
	})
	mux.HandleFunc("GET /repos/acme/handbook/contents/policies/leave.md", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"type":     "file",
			"name":     "leave.md",
			"path":     "policies/leave.md",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Leave\n\nTwenty days.")),
			"sha":      "abc123",
		})
	})

	f := newTestFetcher(t, mux, "/policies/")
	assert.Equal(t, "github:acme/handbook/policies", f.Name())

	paths, err := f.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.md", "hr/salary.txt"}, paths)

	file, err := f.Read(context.Background(), "leave.md")
	require.NoError(t, err)
	assert.Equal(t, "leave.md", file.Path)
	assert.Equal(t, "# Leave\n\nTwenty days.", string(file.Content))
}

func TestFetcher_Revision(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "policies", r.URL.Query().Get("path"))
		writeJSON(w, []any{map[string]any{"sha": "deadbeef"}})
	})

	sha, err := newTestFetcher(t, mux, "policies").Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
}

func TestFetcher_ListError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/handbook/contents/policies", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := newTestFetcher(t, mux, "policies").List(context.Background())
	assert.Error(t, err)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input             string
		owner, repo, base string
		wantErr           bool
	}{
		{"acme/handbook", "acme", "handbook", "", false},
		{"acme/handbook/docs/policies", "acme", "handbook", "docs/policies", false},
		{"/acme/handbook/", "acme", "handbook", "", false},
		{"acme", "", "", "", true},
		{"", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			owner, repo, base, err := ParseSource(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.base, base)
		})
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/", c.BaseURL.String())

	c, err = NewClient(ClientConfig{Token: "t", BaseURL: "https://git.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://git.example.com/api/v3/", c.BaseURL.String())
}
