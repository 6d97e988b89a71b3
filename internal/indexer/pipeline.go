package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/policy-rag/internal/loader"
	"github.com/bull/policy-rag/internal/storage"
)

// ErrNoDocuments is returned when a source yields nothing to index.
var ErrNoDocuments = errors.New("no documents to index")

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	Source         string
	Revision       string // Source revision when the source reports one (GitHub commit SHA)
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Builder is the write side of a storage backend.
type Builder interface {
	Build(ctx context.Context, docs []storage.Document) error
}

// revisioned is implemented by sources that can name the version they serve.
type revisioned interface {
	Revision(ctx context.Context) (string, error)
}

// Pipeline loads every file of a source, chunks it, and builds the index from the result.
type Pipeline struct {
	source  loader.Source
	parser  *loader.Parser
	builder Builder
	logger  *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(source loader.Source, parser *loader.Parser, builder Builder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:  source,
		parser:  parser,
		builder: builder,
		logger:  logger,
	}
}

// IndexAll reads and chunks every file, then builds the index in one pass.
// Files that fail to read or parse are skipped and reported in the result.
func (p *Pipeline) IndexAll(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Source: p.source.Name()}

	if rs, ok := p.source.(revisioned); ok {
		rev, err := rs.Revision(ctx)
		if err != nil {
			p.logger.Warn("Could not resolve source revision", "source", result.Source, "error", err)
		}
		result.Revision = rev
	}
	p.logger.Info("Starting indexing", "source", result.Source, "revision", result.Revision)

	paths, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found documents", "count", len(paths))

	var docs []storage.Document
	for _, path := range paths {
		chunks, err := p.processDocument(ctx, path)
		if err != nil {
			p.logger.Warn("Failed to process document", "path", path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   path,
				Reason: err.Error(),
			})
			continue
		}
		result.SuccessfulDocs++
		docs = append(docs, chunks...)
	}

	if len(docs) == 0 {
		return result, fmt.Errorf("%w: %w in %s", storage.ErrIndexBuild, ErrNoDocuments, result.Source)
	}
	if err := p.builder.Build(ctx, docs); err != nil {
		return result, err
	}
	result.TotalChunks = len(docs)

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// processDocument reads and chunks a single file.
func (p *Pipeline) processDocument(ctx context.Context, path string) ([]storage.Document, error) {
	file, err := p.source.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	p.logger.Debug("Read document", "path", path, "size", len(file.Content))

	chunks, err := p.parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("no text content")
	}
	p.logger.Debug("Chunked document", "path", path, "chunks", len(chunks))
	return chunks, nil
}
