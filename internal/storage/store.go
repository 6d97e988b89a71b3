package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// metadataFile is the JSON layout of metadata.json.
type metadataFile struct {
	Version   string          `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Dimension int             `json:"dimension"`
	Count     int             `json:"count"`
	Chunks    []ChunkMetadata `json:"chunks"`
}

const metadataVersion = "1"

// Store is the file-backed chunk store: a FlatIndex plus positionally aligned metadata,
// persisted as index.bin and metadata.json inside dir.
//
// dir is owned by the store. Build replaces the whole directory, so nothing else should live in it.
type Store struct {
	dir      string
	embedder Embedder
	logger   *slog.Logger

	mu    sync.RWMutex
	index *FlatIndex
	meta  []ChunkMetadata
}

// NewStore creates an unloaded store rooted at dir. Call Build or Load before Query.
func NewStore(dir string, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      dir,
		embedder: embedder,
		logger:   logger,
	}
}

// Dir returns the index directory.
func (s *Store) Dir() string { return s.dir }

// Build embeds docs, indexes them in order and persists both artifacts.
// On failure the previous on-disk index and the in-memory state are left untouched.
func (s *Store) Build(ctx context.Context, docs []Document) error {
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

	start := time.Now()
	vectors, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed chunks: %w", ErrIndexBuild, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents", ErrIndexBuild, len(vectors), len(docs))
	}

	index, err := NewFlatIndex(len(vectors[0]))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	meta := make([]ChunkMetadata, len(docs))
	for i, doc := range docs {
		if err := index.Add(vectors[i]); err != nil {
			return fmt.Errorf("%w: document %d: %w", ErrIndexBuild, i, err)
		}
		meta[i] = ChunkMetadata{
			ID:         uuid.New().String(),
			Position:   i,
			Text:       doc.Text,
			SourceFile: doc.SourceFile,
			Page:       doc.Page,
			Section:    doc.Section,
		}
	}

	if err := s.persist(index, meta); err != nil {
		return fmt.Errorf("%w: persist: %w", ErrIndexBuild, err)
	}

	s.mu.Lock()
	s.index = index
	s.meta = meta
	s.mu.Unlock()

	s.logger.Info("Index built",
		"dir", s.dir,
		"chunks", len(meta),
		"dimension", index.Dimension(),
		"duration", time.Since(start),
	)
	return nil
}

// persist writes both artifacts into a staging directory and swaps it into place.
func (s *Store) persist(index *FlatIndex, meta []ChunkMetadata) error {
	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	staging, err := os.MkdirTemp(parent, filepath.Base(s.dir)+".staging-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	// No-op once the staging directory has been renamed into place.
	defer os.RemoveAll(staging)

	err = writeSynced(filepath.Join(staging, IndexFileName), func(f *os.File) error {
		_, err := index.WriteTo(f)
		return err
	})
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	err = writeSynced(filepath.Join(staging, MetadataFileName), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(metadataFile{
			Version:   metadataVersion,
			CreatedAt: time.Now().UTC(),
			Dimension: index.Dimension(),
			Count:     len(meta),
			Chunks:    meta,
		})
	})
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	var backup string
	if _, err := os.Stat(s.dir); err == nil {
		backup = fmt.Sprintf("%s.previous-%s", s.dir, uuid.New().String())
		if err := os.Rename(s.dir, backup); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat index directory: %w", err)
	}

	if err := os.Rename(staging, s.dir); err != nil {
		if backup != "" {
			if rerr := os.Rename(backup, s.dir); rerr != nil {
				s.logger.Error("Failed to restore previous index", "backup", backup, "error", rerr)
			}
		}
		return fmt.Errorf("install index directory: %w", err)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			s.logger.Warn("Failed to remove previous index", "backup", backup, "error", err)
		}
	}
	return nil
}

func writeSynced(path string, write func(f *os.File) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the persisted pair. It returns ErrNotFound when neither artifact exists and
// ErrInconsistentStore when only one does or when they disagree.
func (s *Store) Load(ctx context.Context) error {
	indexPath := filepath.Join(s.dir, IndexFileName)
	metaPath := filepath.Join(s.dir, MetadataFileName)

	hasIndex, err := fileExists(indexPath)
	if err != nil {
		return err
	}
	hasMeta, err := fileExists(metaPath)
	if err != nil {
		return err
	}

	switch {
	case !hasIndex && !hasMeta:
		return fmt.Errorf("%w: %s", ErrNotFound, s.dir)
	case !hasIndex:
		return fmt.Errorf("%w: %s present without %s", ErrInconsistentStore, MetadataFileName, IndexFileName)
	case !hasMeta:
		return fmt.Errorf("%w: %s present without %s", ErrInconsistentStore, IndexFileName, MetadataFileName)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat index: %w", err)
	}
	index, err := readFlatIndex(f, info.Size())
	f.Close()
	if err != nil {
		return fmt.Errorf("%w: decode index: %v", ErrInconsistentStore, err)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	var mf metadataFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("%w: decode metadata: %v", ErrInconsistentStore, err)
	}

	if len(mf.Chunks) != index.Len() {
		return fmt.Errorf("%w: %d metadata records for %d vectors", ErrInconsistentStore, len(mf.Chunks), index.Len())
	}
	if mf.Dimension != index.Dimension() {
		return fmt.Errorf("%w: metadata dimension %d, index dimension %d", ErrInconsistentStore, mf.Dimension, index.Dimension())
	}
	for i, m := range mf.Chunks {
		if m.Position != i {
			return fmt.Errorf("%w: record %d has position %d", ErrInconsistentStore, i, m.Position)
		}
	}

	s.mu.Lock()
	s.index = index
	s.meta = mf.Chunks
	s.mu.Unlock()

	s.logger.Info("Index loaded", "dir", s.dir, "chunks", index.Len(), "dimension", index.Dimension())
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Query embeds text with the build-time embedder and returns the k nearest chunks,
// nearest first. k larger than the corpus returns every chunk.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	s.mu.RLock()
	index, meta := s.index, s.meta
	s.mu.RUnlock()

	if index == nil {
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

	neighbors, err := index.Search(vectors[0], k)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(neighbors))
	for i, n := range neighbors {
		hits[i] = Hit{Metadata: meta[n.Position], Distance: n.Distance}
	}
	return hits, nil
}

// Len returns the number of indexed chunks, 0 when unloaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// Dimension returns the vector dimension, 0 when unloaded.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.Dimension()
}

// Sources returns the distinct source files in index order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var sources []string
	for _, m := range s.meta {
		if _, ok := seen[m.SourceFile]; ok {
			continue
		}
		seen[m.SourceFile] = struct{}{}
		sources = append(sources, m.SourceFile)
	}
	return sources
}

// Health reports ErrIndexNotLoaded until Build or Load has succeeded.
func (s *Store) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return ErrIndexNotLoaded
	}
	return nil
}
