// Package types contains shared data types used across the chatrag project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is the authoritative record of an ingested file. The full text
// lives only in the relational text store; vectors are derived state.
type Document struct {
	ID          string    // UUID, immutable once created
	Filename    string    // Original filename
	FullText    string    // Complete document text
	ContentHash string    // SHA256 of FullText, unique per store
	CreatedAt   time.Time // Ingestion time
	ChunkCount  int       // Number of chunks produced at ingestion
	TOCJSON     string    // JSON-encoded []TOCItem, empty if none extracted
}

// HashText computes the content hash used for document de-duplication.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Chunk is a contiguous slice of a document's text, the unit of storage
// and retrieval. For a finished document the chunk indexes are exactly
// 0..ChunkCount-1 with no gaps.
type Chunk struct {
	ID         string    // UUID, unique across all chunks
	DocumentID string    // Owning document
	ChunkIndex int       // Zero-based position within the document
	Text       string    // Chunk text
	CreatedAt  time.Time // Ingestion time
}

// ChunkRef identifies a chunk without carrying its text. Both stores can
// list their contents as refs, which is what verification compares.
type ChunkRef struct {
	ChunkID    string // Empty when listed from the vector store
	DocumentID string
	ChunkIndex int
}

// Key returns the (document, index) pair used to match records across stores.
func (r ChunkRef) Key() PairKey {
	return PairKey{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex}
}

// PairKey is the cross-store join key. Chunk ids are native to the text
// store and numeric ids to the vector store; (document_id, chunk_index) is
// the only identifier both sides share.
type PairKey struct {
	DocumentID string
	ChunkIndex int
}

// VectorRecord is what the vector store holds for one chunk. It carries no
// text by construction: the text store is the single source of truth and
// the write path cannot smuggle a payload through this struct.
type VectorRecord struct {
	ID         int64 // idmap.ChunkKey of the chunk id, never independently generated
	Embedding  []float32
	DocumentID string
	ChunkIndex int
}

// VectorHit is one nearest-neighbor result from the vector store.
type VectorHit struct {
	ID         int64
	DocumentID string
	ChunkIndex int
	Distance   float64
}

// SearchResult is a vector hit resolved back to its text. Unavailable is
// set when the relational store no longer has the chunk (drift); the hit is
// still returned so one stale vector cannot fail a whole query.
type SearchResult struct {
	ChunkID     string
	DocumentID  string
	ChunkIndex  int
	Text        string
	Distance    float64
	Score       float64 // Monotonic transform of Distance; higher = more relevant
	Unavailable bool
}

// VerificationReport is the output of one verification pass. It is
// recomputed from scratch on every run and never persisted.
type VerificationReport struct {
	TextStoreConnected    bool
	VectorStoreConnected  bool
	InSync                bool
	DocumentCount         int
	ChunkCount            int
	VectorCount           int
	MissingInVectorStore  []string // Chunk ids with no vector record
	OrphanedInVectorStore []int64  // Numeric ids with no matching chunk
	Details               map[string]string
}

// ReconciliationResult summarizes one repair run.
type ReconciliationResult struct {
	Success            bool
	DocumentsProcessed int
	ChunksProcessed    int
	VectorsInserted    int
	Errors             []string
}

// TOCItem is one heading extracted from a document.
type TOCItem struct {
	Title    string `json:"title"`
	Level    int    `json:"level"`
	Position int    `json:"position"` // Byte offset of the heading in the full text
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// SessionInfo is the metadata kept per chat session.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
