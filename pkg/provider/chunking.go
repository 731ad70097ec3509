package provider

// Chunker splits document text into an ordered sequence of chunk texts.
// The returned slice order defines chunk indexes: position i becomes
// chunk_index i, so implementations must not reorder or leave holes.
type Chunker interface {
	// Name returns the strategy name (e.g., "overlap").
	Name() string

	// Split splits text into chunks. Empty input yields an empty slice.
	Split(text string) []string
}

// ChunkingConfig contains configuration for chunking strategies.
type ChunkingConfig struct {
	ChunkSize    int // Characters per chunk
	ChunkOverlap int // Characters shared between adjacent chunks
	MinChunkSize int // Chunks below this are dropped (except the first)
}
