package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection used when none is configured.
const DefaultCollection = "policy_chunks"

// QdrantConfig holds connection settings for the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// QdrantStorage is the Qdrant-backed alternative to Store with the same Build/Load/Query contract.
// The configured collection name is an alias; each Build writes a new "<alias>-<uuid>" collection.
// Collections use Euclidean distance; scores are squared on the way out.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	logger     *slog.Logger

	buildMu sync.Mutex

	mu     sync.RWMutex
	dim    int
	count  int
	loaded bool
}

// NewQdrantStorage creates a Qdrant client with health validation.
// It retries the health check on startup and fails fast if Qdrant stays unreachable.
func NewQdrantStorage(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		logger:     logger,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		_, err := s.client.HealthCheck(ctx)
		return err
	}, backoff.WithContext(newBackOff(), ctx))
}

// Health reports ErrIndexNotLoaded until Build or Load has succeeded, then pings Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if !loaded {
		return ErrIndexNotLoaded
	}

	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.GetTitle() == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Build embeds docs into a new collection and repoints the alias at it once every point is written.
// Queries keep reading the previous collection until the switch. A failed build drops the new
// collection and leaves the alias where it was.
func (s *QdrantStorage) Build(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents", ErrIndexBuild)
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			return fmt.Errorf("%w: document %d (%s) has empty text", ErrIndexBuild, i, doc.SourceFile)
		}
		texts[i] = doc.Text
	}

	vectors, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed chunks: %w", ErrIndexBuild, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents", ErrIndexBuild, len(vectors), len(docs))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("%w: %w: document %d has %d dimensions, expected %d",
				ErrIndexBuild, ErrDimensionMismatch, i, len(v), dim)
		}
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	target := s.collection + "-" + uuid.New().String()
	if err := s.createCollection(ctx, target, dim); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	if err := s.fill(ctx, target, docs, vectors); err != nil {
		s.dropCollection(target)
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	previous, err := s.switchAlias(ctx, target)
	if err != nil {
		s.dropCollection(target)
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	s.mu.Lock()
	s.dim = dim
	s.count = len(docs)
	s.loaded = true
	s.mu.Unlock()

	if previous != "" {
		s.dropCollection(previous)
	}

	s.logger.Info("Qdrant index built", "alias", s.collection, "collection", target, "chunks", len(docs), "dimension", dim)
	return nil
}

// createCollection creates name with Euclidean distance and a keyword index on source_file.
func (s *QdrantStorage) createCollection(ctx context.Context, name string, dim int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// source_file is the only filterable payload field.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      "source_file",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		s.dropCollection(name)
		return fmt.Errorf("failed to create index for field source_file: %w", err)
	}
	return nil
}

func (s *QdrantStorage) fill(ctx context.Context, collection string, docs []Document, vectors [][]float32) error {
	batchSize := 100
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.New().String()),
				Vectors: qdrant.NewVectors(vectors[j]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"position":    j,
					"text":        docs[j].Text,
					"source_file": docs[j].SourceFile,
					"page":        docs[j].Page,
					"section":     docs[j].Section,
				}),
			})
		}
		if err := s.upsertWithRetry(ctx, collection, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx))
}

// resolveAlias returns the collection the alias points at, or "" when there is no alias.
func (s *QdrantStorage) resolveAlias(ctx context.Context) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == s.collection {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// switchAlias points the alias at target in one request and returns the collection it replaced.
// A plain collection carrying the alias name, left by older builds, is dropped first since
// Qdrant rejects an alias that shadows a collection.
func (s *QdrantStorage) switchAlias(ctx context.Context, target string) (string, error) {
	previous, err := s.resolveAlias(ctx)
	if err != nil {
		return "", err
	}

	ops := make([]*qdrant.AliasOperations, 0, 2)
	if previous != "" {
		ops = append(ops, qdrant.NewAliasDelete(s.collection))
	} else {
		legacy, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return "", fmt.Errorf("failed to check collection: %w", err)
		}
		if legacy {
			if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
				return "", fmt.Errorf("failed to delete collection %s: %w", s.collection, err)
			}
		}
	}
	ops = append(ops, qdrant.NewAliasCreate(s.collection, target))

	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		return "", fmt.Errorf("failed to point alias %s at %s: %w", s.collection, target, err)
	}
	return previous, nil
}

// dropCollection deletes name on a fresh context so cleanup still runs after cancellation.
func (s *QdrantStorage) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		s.logger.Warn("Failed to drop Qdrant collection", "collection", name, "error", err)
	}
}

// Load attaches to the collection behind the alias, or to a plain collection of that name.
// A missing or empty collection is ErrNotFound.
func (s *QdrantStorage) Load(ctx context.Context) error {
	target, err := s.resolveAlias(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("failed to check collection: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: collection %s", ErrNotFound, s.collection)
		}
		target = s.collection
	}

	info, err := s.client.GetCollectionInfo(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}
	count := int(info.GetPointsCount())
	if count == 0 {
		return fmt.Errorf("%w: collection %s is empty", ErrNotFound, target)
	}
	dim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if dim == 0 {
		return fmt.Errorf("%w: collection %s has no vector size", ErrInconsistentStore, target)
	}

	s.mu.Lock()
	s.dim = dim
	s.count = count
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("Qdrant index loaded", "alias", s.collection, "collection", target, "chunks", count, "dimension", dim)
	return nil
}

// Query embeds text and returns the k nearest chunks, nearest first.
func (s *QdrantStorage) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	s.mu.RLock()
	loaded, dim := s.loaded, s.dim
	s.mu.RUnlock()

	if !loaded {
		return nil, ErrIndexNotLoaded
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	vectors, err := s.embedder.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", ErrEmbedding, len(vectors))
	}
	if len(vectors[0]) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vectors[0]), dim)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		payload := result.GetPayload()
		distance := float64(result.GetScore())
		hits = append(hits, Hit{
			Metadata: ChunkMetadata{
				ID:         result.GetId().GetUuid(),
				Position:   int(payload["position"].GetIntegerValue()),
				Text:       payload["text"].GetStringValue(),
				SourceFile: payload["source_file"].GetStringValue(),
				Page:       payload["page"].GetStringValue(),
				Section:    payload["section"].GetStringValue(),
			},
			Distance: distance * distance,
		})
	}
	return hits, nil
}

// Len returns the number of points seen at Build or Load time.
func (s *QdrantStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Dimension returns the collection vector size.
func (s *QdrantStorage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}
