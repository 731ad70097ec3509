package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Verifier compares the two stores without modifying either.
type Verifier struct {
	text    provider.TextStore
	vectors provider.VectorStore
	logger  *slog.Logger
}

// NewVerifier creates a verifier over the given stores.
func NewVerifier(text provider.TextStore, vectors provider.VectorStore, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{text: text, vectors: vectors, logger: logger}
}

// Verify reports the sync state of both stores. Comparison keys on the
// (document_id, chunk_index) pair: chunks without a vector come back as
// chunk ids, vectors without a chunk as their numeric ids. A store that
// cannot be reached short-circuits the comparison.
func (v *Verifier) Verify(ctx context.Context) (*types.VerificationReport, error) {
	report := &types.VerificationReport{
		TextStoreConnected:   true,
		VectorStoreConnected: true,
		Details:              make(map[string]string),
	}

	if err := v.text.Ping(ctx); err != nil {
		report.TextStoreConnected = false
		report.Details["text_store"] = err.Error()
	}
	if err := v.vectors.Ping(ctx); err != nil {
		report.VectorStoreConnected = false
		report.Details["vector_store"] = err.Error()
	}
	if !report.TextStoreConnected || !report.VectorStoreConnected {
		v.logger.Warn("verification skipped, store unreachable",
			"text_store", report.TextStoreConnected,
			"vector_store", report.VectorStoreConnected)
		return report, nil
	}

	docs, chunks, err := v.text.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count text store: %w", err)
	}
	report.DocumentCount = docs
	report.ChunkCount = chunks

	vecCount, err := v.vectors.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count vector store: %w", err)
	}
	report.VectorCount = vecCount

	textRefs, err := v.text.ListChunkRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	vecIDs, err := v.vectors.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}

	textKeys := make(map[types.PairKey]bool, len(textRefs))
	for _, ref := range textRefs {
		key := ref.Key()
		textKeys[key] = true
		if _, ok := vecIDs[key]; !ok {
			report.MissingInVectorStore = append(report.MissingInVectorStore, ref.ChunkID)
		}
	}

	for key, id := range vecIDs {
		if !textKeys[key] {
			report.OrphanedInVectorStore = append(report.OrphanedInVectorStore, id)
		}
	}
	sort.Slice(report.OrphanedInVectorStore, func(i, j int) bool {
		return report.OrphanedInVectorStore[i] < report.OrphanedInVectorStore[j]
	})

	report.InSync = len(report.MissingInVectorStore) == 0 && len(report.OrphanedInVectorStore) == 0

	if report.InSync {
		v.logger.Info("stores in sync", "documents", docs, "chunks", chunks, "vectors", vecCount)
	} else {
		v.logger.Warn("stores out of sync",
			"missing_vectors", len(report.MissingInVectorStore),
			"orphaned_vectors", len(report.OrphanedInVectorStore))
	}

	return report, nil
}
