package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// PlaceholderText replaces chunk text when a vector hit cannot be resolved
// in the text store.
const PlaceholderText = "[content unavailable: stores out of sync, run resync]"

// Assembler resolves vector hits back to chunk text. A hit whose chunk the
// text store no longer has comes back as a placeholder instead of failing
// the whole search.
type Assembler struct {
	text   provider.TextStore
	metric string
	logger *slog.Logger
}

// NewAssembler creates an assembler resolving against the given text store.
// The metric must match the vector store so distances convert to scores
// correctly.
func NewAssembler(text provider.TextStore, metric string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{text: text, metric: metric, logger: logger}
}

// Resolve turns vector hits into search results, preserving hit order.
func (a *Assembler) Resolve(ctx context.Context, hits []types.VectorHit) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := types.SearchResult{
			DocumentID: hit.DocumentID,
			ChunkIndex: hit.ChunkIndex,
			Distance:   hit.Distance,
			Score:      ScoreFromDistance(a.metric, hit.Distance),
		}

		chunk, err := a.text.GetChunkAt(ctx, hit.DocumentID, hit.ChunkIndex)
		switch {
		case err == nil:
			result.ChunkID = chunk.ID
			result.Text = chunk.Text
		case errors.Is(err, types.ErrNotFound):
			a.logger.Warn("vector hit has no chunk, stores out of sync",
				"document_id", hit.DocumentID,
				"chunk_index", hit.ChunkIndex)
			result.Text = PlaceholderText
			result.Unavailable = true
		default:
			return nil, err
		}

		results = append(results, result)
	}
	return results, nil
}

// ScoreFromDistance converts a raw distance into a similarity score in
// (0, 1], higher is closer. L2 uses 1/(1+d), cosine uses 1-d.
func ScoreFromDistance(metric string, distance float64) float64 {
	if metric == "cosine" {
		return 1 - distance
	}
	return 1 / (1 + distance)
}
