package provider

import (
	"context"

	"github.com/vsedlak/chatrag/pkg/types"
)

// TextStore is the relational store holding document and chunk text.
// It is the source of truth: every vector record must be re-derivable
// from what this store returns.
type TextStore interface {
	// Name returns the store name (e.g., "sqlite").
	Name() string

	// Init opens the store at the given path and creates the schema.
	Init(path string) error

	// Close releases resources and closes connections.
	Close() error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// CreateDocument persists a document and all its chunks in one
	// transaction. Returns types.ErrDuplicateDocument (possibly wrapped)
	// when a document with the same content hash already exists.
	CreateDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error

	// GetDocument retrieves a document by id, without its chunks.
	// Returns types.ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// GetDocumentByHash retrieves a document by content hash.
	// Returns types.ErrNotFound if absent.
	GetDocumentByHash(ctx context.Context, hash string) (*types.Document, error)

	// ListDocuments returns all documents ordered by creation time,
	// text omitted.
	ListDocuments(ctx context.Context) ([]*types.Document, error)

	// GetChunkByID retrieves a chunk by its id.
	GetChunkByID(ctx context.Context, id string) (*types.Chunk, error)

	// GetChunkAt retrieves a chunk by its cross-store key.
	GetChunkAt(ctx context.Context, documentID string, chunkIndex int) (*types.Chunk, error)

	// ListChunkRefs lists every chunk as a ref, ordered by
	// (document_id, chunk_index). This is the verification walk.
	ListChunkRefs(ctx context.Context) ([]types.ChunkRef, error)

	// DeleteDocument removes a document and all its chunks in one
	// transaction. Deleting an absent document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Counts returns the number of documents and chunks.
	Counts(ctx context.Context) (documents, chunks int, err error)
}

// VectorStore holds embeddings keyed by numeric id, with no text.
// Nearest-neighbor search is delegated entirely to the implementation.
type VectorStore interface {
	// Name returns the store name (e.g., "sqlitevec").
	Name() string

	// Init opens the store at the given path for the given dimension.
	Init(path string, dimensions int) error

	// Close releases resources and closes connections.
	Close() error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Insert writes vector records. Re-inserting an existing id replaces
	// it, so reconciliation retries are idempotent.
	Insert(ctx context.Context, records []*types.VectorRecord) error

	// Delete removes records by numeric id. Absent ids are ignored, so a
	// retried delete that hits already-removed records succeeds.
	Delete(ctx context.Context, ids []int64) error

	// Search returns the topK nearest neighbors of the query vector,
	// closest first.
	Search(ctx context.Context, query []float32, topK int) ([]types.VectorHit, error)

	// ListIDs returns the numeric id for every record keyed by its
	// cross-store pair, for orphan detection.
	ListIDs(ctx context.Context) (map[types.PairKey]int64, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
