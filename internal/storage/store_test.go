package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder hashes lowercase words into a fixed number of buckets and L2-normalizes.
// Identical texts map to identical vectors.
type wordEmbedder struct {
	dim   int
	err   error
	calls int
}

func (e *wordEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			h.Write([]byte(w))
			vec[h.Sum32()%uint32(e.dim)]++
		}
		var norm float64
		for _, x := range vec {
			norm += float64(x * x)
		}
		if norm > 0 {
			for j := range vec {
				vec[j] /= float32(math.Sqrt(norm))
			}
		}
		out[i] = vec
	}
	return out, nil
}

var testDocs = []Document{
	{Text: "The CEO of Bhavna Corp is Jane Doe.", SourceFile: "handbook.pdf", Page: "1"},
	{Text: "Employees receive twenty days of paid vacation per year.", SourceFile: "handbook.pdf", Page: "4"},
	{Text: "Maternity leave lasts twenty six weeks with full salary.", SourceFile: "leave-policy.pdf", Page: "2"},
	{Text: "Medical insurance covers spouse and two children.", SourceFile: "benefits.pdf"},
}

func newTestStore(t *testing.T) (*Store, *wordEmbedder) {
	t.Helper()
	emb := &wordEmbedder{dim: 256}
	return NewStore(filepath.Join(t.TempDir(), "index"), emb, nil), emb
}

func TestStore_BuildLoadRoundTrip(t *testing.T) {
	store, emb := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Build(ctx, testDocs))
	assert.FileExists(t, filepath.Join(store.Dir(), IndexFileName))
	assert.FileExists(t, filepath.Join(store.Dir(), MetadataFileName))

	loaded := NewStore(store.Dir(), emb, nil)
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, len(testDocs), loaded.Len())
	assert.Equal(t, 256, loaded.Dimension())

	for i, doc := range testDocs {
		hits, err := loaded.Query(ctx, doc.Text, len(testDocs))
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, i, hits[0].Metadata.Position, "identical text should rank first")
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
		assert.Equal(t, doc.SourceFile, hits[0].Metadata.SourceFile)
		assert.Equal(t, doc.Text, hits[0].Metadata.Text)
	}
}

func TestStore_QueryOrderingAndLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))

	hits, err := store.Query(ctx, "maternity leave salary", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "leave-policy.pdf", hits[0].Metadata.SourceFile)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

	all, err := store.Query(ctx, "maternity leave salary", 50)
	require.NoError(t, err)
	assert.Len(t, all, len(testDocs))
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
	}
}

func TestStore_QueryIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))

	first, err := store.Query(ctx, "vacation days", 3)
	require.NoError(t, err)
	second, err := store.Query(ctx, "vacation days", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_LoadMissing(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadInconsistent(t *testing.T) {
	for _, missing := range []string{IndexFileName, MetadataFileName} {
		t.Run("without "+missing, func(t *testing.T) {
			store, emb := newTestStore(t)
			ctx := context.Background()
			require.NoError(t, store.Build(ctx, testDocs))
			require.NoError(t, os.Remove(filepath.Join(store.Dir(), missing)))

			err := NewStore(store.Dir(), emb, nil).Load(ctx)
			assert.ErrorIs(t, err, ErrInconsistentStore)
		})
	}
}

func TestStore_LoadMismatchedPair(t *testing.T) {
	ctx := context.Background()
	small, emb := newTestStore(t)
	require.NoError(t, small.Build(ctx, testDocs[:2]))
	large := NewStore(filepath.Join(t.TempDir(), "index"), emb, nil)
	require.NoError(t, large.Build(ctx, testDocs))

	// Pair the small index with the large metadata file.
	data, err := os.ReadFile(filepath.Join(large.Dir(), MetadataFileName))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(small.Dir(), MetadataFileName), data, 0o644))

	err = NewStore(small.Dir(), emb, nil).Load(ctx)
	assert.ErrorIs(t, err, ErrInconsistentStore)
}

func TestStore_LoadCorruptHeader(t *testing.T) {
	store, emb := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))

	// Valid magic and dimension, absurd vector count.
	path := filepath.Join(store.Dir(), IndexFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(data[12:], 1<<62)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reloaded := NewStore(store.Dir(), emb, nil)
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, reloaded.Load(ctx), ErrInconsistentStore)
	})
	assert.Zero(t, reloaded.Len())
}

func TestStore_QueryBeforeLoad(t *testing.T) {
	store, emb := newTestStore(t)
	_, err := store.Query(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, ErrIndexNotLoaded)
	assert.Zero(t, emb.calls, "should not embed before the index is loaded")
	assert.ErrorIs(t, store.Health(context.Background()), ErrIndexNotLoaded)
}

func TestStore_BuildRejectsBadInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Build(ctx, nil), ErrIndexBuild)
	assert.ErrorIs(t, store.Build(ctx, []Document{{Text: "  ", SourceFile: "blank.txt"}}), ErrIndexBuild)

	_, err := os.Stat(store.Dir())
	assert.True(t, os.IsNotExist(err), "failed builds must not create the index")
}

func TestStore_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	store, emb := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))

	emb.err = errors.New("embedding service down")
	err := store.Build(ctx, testDocs[:1])
	require.ErrorIs(t, err, ErrIndexBuild)
	assert.Contains(t, err.Error(), "embedding service down")
	emb.err = nil

	assert.Equal(t, len(testDocs), store.Len(), "in-memory index must be untouched")

	reloaded := NewStore(store.Dir(), emb, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, len(testDocs), reloaded.Len(), "on-disk index must be untouched")
}

func TestStore_RebuildReplacesIndex(t *testing.T) {
	store, emb := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))
	require.NoError(t, store.Build(ctx, testDocs[:2]))

	reloaded := NewStore(store.Dir(), emb, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.Len())

	entries, err := os.ReadDir(filepath.Dir(store.Dir()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging and backup directories should be cleaned up")
}

func TestStore_QueryEmbeddingFailure(t *testing.T) {
	store, emb := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Build(ctx, testDocs))

	emb.err = errors.New("rate limited")
	_, err := store.Query(ctx, "vacation", 3)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestStore_Sources(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Build(context.Background(), testDocs))
	assert.Equal(t, []string{"handbook.pdf", "leave-policy.pdf", "benefits.pdf"}, store.Sources())
}

func TestChunkMetadata_PageLabel(t *testing.T) {
	assert.Equal(t, "3", ChunkMetadata{Page: "3"}.PageLabel())
	assert.Equal(t, UnknownPage, ChunkMetadata{}.PageLabel())
}
