package storage

import "context"

// UnknownPage is rendered when a chunk carries no page number.
const UnknownPage = "unknown"

// Document is one ingested chunk waiting to be embedded and indexed.
type Document struct {
	Text       string // Chunk text, must be non-empty
	SourceFile string // File the chunk came from: "handbook.pdf"
	Page       string // Page label, empty when unknown
	Section    string // Header path for markdown sources: "# Leave > ## Maternity"
}

// ChunkMetadata is the persisted record for the vector at the same position in the index.
type ChunkMetadata struct {
	ID         string `json:"id"`       // UUID
	Position   int    `json:"position"` // Index position (0, 1, 2...)
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	Page       string `json:"page,omitempty"`
	Section    string `json:"section,omitempty"`
}

// PageLabel returns the page or UnknownPage.
func (m ChunkMetadata) PageLabel() string {
	if m.Page == "" {
		return UnknownPage
	}
	return m.Page
}

// Hit is a nearest-neighbor match. Distance is squared Euclidean.
type Hit struct {
	Metadata ChunkMetadata
	Distance float64
}

// Embedder turns texts into vectors of one fixed dimension.
// embedding.Embedder satisfies it.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Artifact file names inside the index directory. They are always written and read as a pair.
const (
	IndexFileName    = "index.bin"
	MetadataFileName = "metadata.json"
)

// Backend is the contract shared by Store and QdrantStorage.
type Backend interface {
	Build(ctx context.Context, docs []Document) error
	Load(ctx context.Context) error
	Query(ctx context.Context, text string, k int) ([]Hit, error)
	Health(ctx context.Context) error
	Len() int
	Dimension() int
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*QdrantStorage)(nil)
)
