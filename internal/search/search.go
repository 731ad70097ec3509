// Package search runs similarity queries across the two stores.
package search

import (
	"context"
	"fmt"
	"log/slog"

	syncpkg "github.com/vsedlak/chatrag/internal/sync"
	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Options control one search call. Zero values fall back to the service
// defaults, so a caller overriding only TopK keeps the configured
// threshold.
type Options struct {
	TopK      int
	Threshold float64 // Results scoring below this are dropped
}

// Service embeds a query, searches the vector store and resolves hits back
// to chunk text.
type Service struct {
	embedder  provider.EmbeddingProvider
	vectors   provider.VectorStore
	assembler *syncpkg.Assembler
	defaults  Options
	logger    *slog.Logger
}

// New creates a search service with the given defaults.
func New(embedder provider.EmbeddingProvider, vectors provider.VectorStore, assembler *syncpkg.Assembler, defaults Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.TopK <= 0 {
		defaults.TopK = 3
	}
	return &Service{
		embedder:  embedder,
		vectors:   vectors,
		assembler: assembler,
		defaults:  defaults,
		logger:    logger,
	}
}

// Search returns the most relevant chunks for the query. Hits the text
// store cannot resolve come back as unavailable placeholders rather than
// being dropped, so callers see the drift.
func (s *Service) Search(ctx context.Context, query string, opts *Options) ([]types.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	topK := s.defaults.TopK
	threshold := s.defaults.Threshold
	if opts != nil {
		if opts.TopK > 0 {
			topK = opts.TopK
		}
		if opts.Threshold > 0 {
			threshold = opts.Threshold
		}
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query embedding, got %d", types.ErrEmbeddingFailed, len(embeddings))
	}

	hits, err := s.vectors.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results, err := s.assembler.Resolve(ctx, hits)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hits: %w", err)
	}

	if threshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= threshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	s.logger.Debug("search finished", "query_len", len(query), "hits", len(hits), "results", len(results))
	return results, nil
}
