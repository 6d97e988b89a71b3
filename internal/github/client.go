package github

import (
	"fmt"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// ClientConfig holds GitHub connection settings.
type ClientConfig struct {
	Token   string // Empty gives an unauthenticated client (60 requests/hour)
	BaseURL string // GitHub Enterprise API root, empty for github.com
}

// Client wraps the GitHub API client with rate limiting support.
type Client struct {
	*github.Client
}

// NewClient creates a GitHub client that waits out primary and secondary rate limits.
func NewClient(cfg ClientConfig) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	gh := github.NewClient(rateLimiter)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		gh, err = gh.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("enterprise URL %q: %w", base, err)
		}
	}

	return &Client{Client: gh}, nil
}
