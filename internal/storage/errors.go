package storage

import "errors"

var (
	ErrNotFound          = errors.New("index not found")
	ErrInconsistentStore = errors.New("inconsistent index store")
	ErrIndexBuild        = errors.New("index build failed")
	ErrIndexNotLoaded    = errors.New("index not loaded")
	ErrEmbedding         = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidK          = errors.New("k must be positive")
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
)
