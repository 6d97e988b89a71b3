// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	BackendFile   = "file"
	BackendQdrant = "qdrant"
)

// QdrantConfig holds connection details for the Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// OpenAIConfig configures the embedding and chat models.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"` // "rest", "mcp" (REST plus MCP at /mcp) or "stdio"
	CORSOrigins []string `yaml:"cors_origins"`
}

// QueryConfig holds request defaults.
type QueryConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// Config is the root configuration.
type Config struct {
	DataDir      string       `yaml:"data_dir"`
	IndexDir     string       `yaml:"index_dir"`
	IndexBackend string       `yaml:"index_backend"`
	WatchDataDir bool         `yaml:"watch_data_dir"`
	GitHubSource string       `yaml:"github_source"` // owner/repo[/path]
	GitHubToken  string       `yaml:"github_token"`
	GitHubAPIURL string       `yaml:"github_api_url"` // GitHub Enterprise only
	LogLevel     string       `yaml:"log_level"`
	Qdrant       QdrantConfig `yaml:"qdrant"`
	OpenAI       OpenAIConfig `yaml:"openai"`
	Server       ServerConfig `yaml:"server"`
	Query        QueryConfig  `yaml:"query"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		IndexDir:     "index",
		IndexBackend: BackendFile,
		LogLevel:     "info",
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "policy_chunks",
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		},
		Server: ServerConfig{
			Port:        "8000",
			Mode:        "rest",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Query: QueryConfig{
			TopK:     5,
			MinScore: 0,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.IndexDir = getEnv("INDEX_DIR", c.IndexDir)
	c.IndexBackend = strings.ToLower(getEnv("INDEX_BACKEND", c.IndexBackend))
	c.WatchDataDir = getEnvBool("WATCH_DATA_DIR", c.WatchDataDir)
	c.GitHubSource = getEnv("GITHUB_SOURCE", c.GitHubSource)
	c.GitHubToken = getEnv("GITHUB_TOKEN", c.GitHubToken)
	c.GitHubAPIURL = getEnv("GITHUB_API_URL", c.GitHubAPIURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Qdrant.Host = getEnv("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getEnvInt("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.Collection = getEnv("QDRANT_COLLECTION", c.Qdrant.Collection)

	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)
	c.OpenAI.ChatModel = getEnv("CHAT_MODEL", c.OpenAI.ChatModel)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Mode = strings.ToLower(getEnv("SERVER_MODE", c.Server.Mode))
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Query.TopK = getEnvInt("TOP_K", c.Query.TopK)
	c.Query.MinScore = getEnvFloat("MIN_SCORE", c.Query.MinScore)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.IndexBackend {
	case BackendFile, BackendQdrant:
	default:
		return fmt.Errorf("unknown index backend %q (want %s or %s)", c.IndexBackend, BackendFile, BackendQdrant)
	}
	switch c.Server.Mode {
	case "rest", "mcp", "stdio":
	default:
		return fmt.Errorf("unknown server mode %q (want rest, mcp or stdio)", c.Server.Mode)
	}
	if c.Query.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.Query.TopK)
	}
	if c.Query.MinScore < 0 || c.Query.MinScore > 1 {
		return fmt.Errorf("min_score must be within [0, 1], got %v", c.Query.MinScore)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
