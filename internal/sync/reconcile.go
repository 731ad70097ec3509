package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/vsedlak/chatrag/pkg/idmap"
	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Reconciler rebuilds missing vectors from text store content. Only one
// resync runs at a time.
type Reconciler struct {
	text     provider.TextStore
	vectors  provider.VectorStore
	embedder provider.EmbeddingProvider
	verifier *Verifier
	logger   *slog.Logger

	mu stdsync.Mutex
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(text provider.TextStore, vectors provider.VectorStore, embedder provider.EmbeddingProvider, verifier *Verifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		text:     text,
		vectors:  vectors,
		embedder: embedder,
		verifier: verifier,
		logger:   logger,
	}
}

// Resync re-embeds and inserts every chunk the vector store is missing.
// Each chunk is repaired independently and a failure is recorded rather
// than aborting the pass. Orphaned vectors are reported by Verify and left
// alone here: deleting derived data is a separate, deliberate operation.
// Cancellation ends the pass early but still returns the progress made.
// Returns ErrResyncInProgress when another resync holds the lock.
func (r *Reconciler) Resync(ctx context.Context) (*types.ReconciliationResult, error) {
	if !r.mu.TryLock() {
		return nil, types.ErrResyncInProgress
	}
	defer r.mu.Unlock()

	report, err := r.verifier.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("verification before resync failed: %w", err)
	}

	result := &types.ReconciliationResult{}

	if !report.TextStoreConnected || !report.VectorStoreConnected {
		result.Errors = append(result.Errors, "cannot resync while a store is unreachable")
		return result, nil
	}

	if len(report.OrphanedInVectorStore) > 0 {
		r.logger.Warn("orphaned vectors present, not deleting",
			"count", len(report.OrphanedInVectorStore))
	}

	docsTouched := make(map[string]bool)
	for _, chunkID := range report.MissingInVectorStore {
		// Cancellation keeps the progress made so far; the recorded error
		// flips Success and the next resync picks up the remainder.
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("resync interrupted: %v", err))
			break
		}

		result.ChunksProcessed++

		chunk, err := r.text.GetChunkByID(ctx, chunkID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %s: %v", chunkID, err))
			continue
		}
		docsTouched[chunk.DocumentID] = true

		embeddings, err := r.embedder.Embed(ctx, []string{chunk.Text})
		if err != nil || len(embeddings) != 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %s: embedding failed: %v", chunkID, err))
			continue
		}

		rec := &types.VectorRecord{
			ID:         idmap.ChunkKey(chunk.ID),
			Embedding:  embeddings[0],
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
		}
		if err := r.vectors.Insert(ctx, []*types.VectorRecord{rec}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %s: insert failed: %v", chunkID, err))
			continue
		}

		result.VectorsInserted++
	}

	result.DocumentsProcessed = len(docsTouched)
	result.Success = len(result.Errors) == 0

	r.logger.Info("resync finished",
		"success", result.Success,
		"documents", result.DocumentsProcessed,
		"chunks", result.ChunksProcessed,
		"inserted", result.VectorsInserted,
		"errors", len(result.Errors))

	return result, nil
}
