// Package app wires configuration into a running question-answering service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bull/policy-rag/internal/config"
	"github.com/bull/policy-rag/internal/embedding"
	ghclient "github.com/bull/policy-rag/internal/github"
	"github.com/bull/policy-rag/internal/generation"
	"github.com/bull/policy-rag/internal/indexer"
	"github.com/bull/policy-rag/internal/loader"
	"github.com/bull/policy-rag/internal/markdown"
	mcpserver "github.com/bull/policy-rag/internal/mcp"
	"github.com/bull/policy-rag/internal/prompt"
	"github.com/bull/policy-rag/internal/rag"
	"github.com/bull/policy-rag/internal/retriever"
	"github.com/bull/policy-rag/internal/scope"
	"github.com/bull/policy-rag/internal/storage"
)

// App owns the components behind every transport.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embedder  storage.Embedder
	generator rag.Generator
	source    loader.Source
	parser    *loader.Parser
	qdrant    *storage.QdrantStorage // nil for the file backend

	retriever *retriever.Retriever
	pipeline  *rag.Pipeline
	rebuilder *indexer.Rebuilder

	mu   sync.RWMutex
	live storage.Backend
	info mcpserver.IndexInfo
}

// New builds the service from cfg using the OpenAI adapters.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	client, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, 0)
	generator := generation.NewGenerator(client.Client(), cfg.OpenAI.ChatModel, logger)
	return NewWithModels(cfg, embedder, generator, logger)
}

// NewWithModels builds the service around the given embedder and generator.
func NewWithModels(cfg *config.Config, embedder storage.Embedder, generator rag.Generator, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		generator: generator,
		source:    source,
		parser:    loader.NewParser(markdown.NewChunker(), loader.NewSplitter(loader.DefaultChunkSize, loader.DefaultChunkOverlap)),
	}

	if cfg.IndexBackend == config.BackendQdrant {
		a.qdrant, err = storage.NewQdrantStorage(storage.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
		}, embedder, logger)
		if err != nil {
			return nil, err
		}
	}

	a.live = a.newBackend()
	a.info = mcpserver.IndexInfo{Backend: cfg.IndexBackend, Source: source.Name()}
	a.retriever = retriever.New(a.live)
	a.pipeline = rag.NewPipeline(a.retriever, generator, scope.NewHeuristic(scope.Options{}), prompt.NewComposer(), logger)
	a.rebuilder = indexer.NewRebuilder(source, a.parser, func() (storage.Backend, error) {
		return a.newBackend(), nil
	}, a.swap, logger)
	return a, nil
}

func newSource(cfg *config.Config) (loader.Source, error) {
	if cfg.GitHubSource == "" {
		return loader.NewDirSource(cfg.DataDir), nil
	}
	owner, repo, basePath, err := ghclient.ParseSource(cfg.GitHubSource)
	if err != nil {
		return nil, err
	}
	client, err := ghclient.NewClient(ghclient.ClientConfig{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubAPIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	return ghclient.NewFetcher(client, owner, repo, basePath), nil
}

// newBackend returns an unloaded file store, or the shared Qdrant storage whose Build swaps collections behind an alias.
func (a *App) newBackend() storage.Backend {
	if a.qdrant != nil {
		return a.qdrant
	}
	return storage.NewStore(a.cfg.IndexDir, a.embedder, a.logger)
}

func (a *App) swap(b storage.Backend) {
	a.mu.Lock()
	a.live = b
	a.info.IndexedAt = time.Now()
	a.mu.Unlock()
	a.retriever.Swap(b)
}

// EnsureIndex loads the persisted index, building it from the source when none exists.
// An inconsistent store is returned as an error and never rebuilt over.
func (a *App) EnsureIndex(ctx context.Context) error {
	err := a.Backend().Load(ctx)
	switch {
	case err == nil:
		a.mu.Lock()
		a.info.IndexedAt = time.Now()
		a.mu.Unlock()
		return nil
	case errors.Is(err, storage.ErrNotFound):
		a.logger.Info("No index found, building from source", "source", a.source.Name())
		_, err := a.Rebuild(ctx)
		return err
	default:
		return err
	}
}

// Rebuild indexes the source into a fresh backend and swaps it in on success.
func (a *App) Rebuild(ctx context.Context) (*indexer.IndexResult, error) {
	result, err := a.rebuilder.Rebuild(ctx)
	if result != nil && result.Revision != "" {
		a.mu.Lock()
		a.info.Revision = result.Revision
		a.mu.Unlock()
	}
	return result, err
}

// Watcher returns a watcher that rebuilds on changes to the local data directory.
// It returns nil when the corpus is not a local directory.
func (a *App) Watcher() *indexer.Watcher {
	dir, ok := a.source.(*loader.DirSource)
	if !ok {
		return nil
	}
	return indexer.NewWatcher(dir.Root(), dir.Matches, indexer.DefaultDebounce, func(ctx context.Context) error {
		_, err := a.Rebuild(ctx)
		return err
	}, a.logger)
}

// Backend returns the backend currently serving queries.
func (a *App) Backend() storage.Backend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// Info reports where the live index came from.
func (a *App) Info() mcpserver.IndexInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

// Pipeline returns the query orchestrator.
func (a *App) Pipeline() *rag.Pipeline { return a.pipeline }

// Retriever returns the retriever over the live backend.
func (a *App) Retriever() *retriever.Retriever { return a.retriever }

// Source returns the corpus source.
func (a *App) Source() loader.Source { return a.source }

// Index returns a view of the live backend that follows swaps.
func (a *App) Index() *LiveIndex { return &LiveIndex{app: a} }

// Close releases backend connections.
func (a *App) Close() error {
	if a.qdrant != nil {
		return a.qdrant.Close()
	}
	return nil
}

// LiveIndex forwards to whichever backend is live at call time.
type LiveIndex struct {
	app *App
}

func (l *LiveIndex) Health(ctx context.Context) error { return l.app.Backend().Health(ctx) }
func (l *LiveIndex) Len() int                         { return l.app.Backend().Len() }
func (l *LiveIndex) Dimension() int                   { return l.app.Backend().Dimension() }

// Sources lists indexed source files when the backend can enumerate them.
func (l *LiveIndex) Sources() []string {
	if s, ok := l.app.Backend().(interface{ Sources() []string }); ok {
		return s.Sources()
	}
	return nil
}
