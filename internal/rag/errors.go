package rag

import (
	"errors"

	"github.com/bull/policy-rag/internal/storage"
)

var (
	// ErrMalformedInput is returned for a blank question, top_k < 1, or min_score outside [0, 1].
	ErrMalformedInput = errors.New("malformed input")

	// ErrGeneration is returned when the language model fails to produce an answer or summary.
	ErrGeneration = errors.New("generation failed")
)

// Store errors surfaced unchanged through Query.
var (
	ErrEmbedding         = storage.ErrEmbedding
	ErrIndexNotLoaded    = storage.ErrIndexNotLoaded
	ErrNotFound          = storage.ErrNotFound
	ErrInconsistentStore = storage.ErrInconsistentStore
	ErrIndexBuild        = storage.ErrIndexBuild
)
