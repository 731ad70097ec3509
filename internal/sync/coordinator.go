// Package sync keeps the text store and the vector store consistent. The
// text store is the source of truth: document content is written there
// first, vector writes are best-effort and repairable afterwards.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vsedlak/chatrag/internal/toc"
	"github.com/vsedlak/chatrag/pkg/idmap"
	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Coordinator orders writes across both stores during ingest and delete.
type Coordinator struct {
	text     provider.TextStore
	vectors  provider.VectorStore
	embedder provider.EmbeddingProvider
	chunker  provider.Chunker
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over the given stores.
func NewCoordinator(text provider.TextStore, vectors provider.VectorStore, embedder provider.EmbeddingProvider, chunker provider.Chunker, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		text:     text,
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunker,
		logger:   logger,
	}
}

// IngestDocument stores a document in both stores. Content already present
// (by hash) returns the existing document instead of a duplicate. When some
// vector writes fail the document is still returned together with a
// PartialWriteError naming the failed chunk indexes; a later resync repairs
// them.
func (c *Coordinator) IngestDocument(ctx context.Context, filename, fullText string) (*types.Document, error) {
	hash := types.HashText(fullText)

	existing, err := c.text.GetDocumentByHash(ctx, hash)
	if err == nil {
		c.logger.Info("document already ingested", "filename", filename, "document_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing content: %w", err)
	}

	pieces := c.chunker.Split(fullText)
	now := time.Now().UTC()

	doc := &types.Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		FullText:    fullText,
		ContentHash: hash,
		CreatedAt:   now,
		ChunkCount:  len(pieces),
		TOCJSON:     toc.ExtractJSON(fullText),
	}

	chunks := make([]*types.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &types.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       piece,
			CreatedAt:  now,
		}
	}

	// Text store first. Until this commits nothing exists anywhere, and
	// after it commits the document survives any vector failure below.
	if err := c.text.CreateDocument(ctx, doc, chunks); err != nil {
		if errors.Is(err, types.ErrDuplicateDocument) {
			// Another writer stored the same content between our hash
			// check and the insert. Their document wins.
			winner, werr := c.text.GetDocumentByHash(ctx, hash)
			if werr != nil {
				return nil, fmt.Errorf("duplicate content but winner not readable: %w", werr)
			}
			c.logger.Info("concurrent ingest of same content", "filename", filename, "document_id", winner.ID)
			return winner, nil
		}
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	c.logger.Info("document stored",
		"document_id", doc.ID,
		"filename", filename,
		"chunks", len(chunks))

	if len(chunks) == 0 {
		return doc, nil
	}

	failed := c.writeVectors(ctx, chunks)
	if len(failed) > 0 {
		c.logger.Warn("vector writes incomplete, resync will repair",
			"document_id", doc.ID,
			"failed", len(failed))
		return doc, &types.PartialWriteError{DocumentID: doc.ID, FailedIndexes: failed}
	}

	return doc, nil
}

// writeVectors embeds and stores the chunks, returning the indexes of
// chunks whose vector never made it in.
func (c *Coordinator) writeVectors(ctx context.Context, chunks []*types.Chunk) []int {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := c.embedder.Embed(ctx, texts)
	if err != nil || len(embeddings) != len(chunks) {
		c.logger.Warn("embedding failed for document", "document_id", chunks[0].DocumentID, "error", err)
		failed := make([]int, len(chunks))
		for i := range failed {
			failed[i] = i
		}
		return failed
	}

	var failed []int
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			for j := i; j < len(chunks); j++ {
				failed = append(failed, j)
			}
			return failed
		}
		rec := &types.VectorRecord{
			ID:         idmap.ChunkKey(chunk.ID),
			Embedding:  embeddings[i],
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
		}
		if err := c.vectors.Insert(ctx, []*types.VectorRecord{rec}); err != nil {
			c.logger.Warn("vector insert failed",
				"document_id", chunk.DocumentID,
				"chunk_index", chunk.ChunkIndex,
				"error", err)
			failed = append(failed, i)
		}
	}
	return failed
}

// DeleteDocument removes a document from both stores, vectors first so a
// partial delete never leaves vectors pointing at missing text.
func (c *Coordinator) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := c.text.GetDocument(ctx, documentID); err != nil {
		return err
	}

	refs, err := c.text.ListChunkRefs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	var chunkIDs []string
	for _, ref := range refs {
		if ref.DocumentID == documentID {
			chunkIDs = append(chunkIDs, ref.ChunkID)
		}
	}

	if len(chunkIDs) > 0 {
		if err := c.vectors.Delete(ctx, idmap.Keys(chunkIDs)); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}

	if err := c.text.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	c.logger.Info("document deleted", "document_id", documentID, "chunks", len(chunkIDs))
	return nil
}
