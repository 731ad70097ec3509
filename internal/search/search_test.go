package search

import (
	"context"
	"io"
	"log/slog"
	"testing"

	syncpkg "github.com/vsedlak/chatrag/internal/sync"
	"github.com/vsedlak/chatrag/pkg/types"
)

type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Name() string { return "stub" }
func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}
func (s *stubEmbedder) Dimensions() int { return len(s.vec) }
func (s *stubEmbedder) Close() error    { return nil }

type stubVectorStore struct {
	hits []types.VectorHit
}

func (s *stubVectorStore) Name() string                           { return "stub" }
func (s *stubVectorStore) Init(path string, dimensions int) error { return nil }
func (s *stubVectorStore) Close() error                           { return nil }
func (s *stubVectorStore) Ping(ctx context.Context) error         { return nil }
func (s *stubVectorStore) Insert(ctx context.Context, records []*types.VectorRecord) error {
	return nil
}
func (s *stubVectorStore) Delete(ctx context.Context, ids []int64) error { return nil }
func (s *stubVectorStore) Search(ctx context.Context, query []float32, topK int) ([]types.VectorHit, error) {
	if len(s.hits) > topK {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}
func (s *stubVectorStore) ListIDs(ctx context.Context) (map[types.PairKey]int64, error) {
	return nil, nil
}
func (s *stubVectorStore) Count(ctx context.Context) (int, error) { return len(s.hits), nil }

type stubTextStore struct {
	chunks map[types.PairKey]*types.Chunk
}

func (s *stubTextStore) Name() string           { return "stub" }
func (s *stubTextStore) Init(path string) error { return nil }
func (s *stubTextStore) Close() error           { return nil }
func (s *stubTextStore) Ping(ctx context.Context) error {
	return nil
}
func (s *stubTextStore) CreateDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	return nil
}
func (s *stubTextStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return nil, types.ErrNotFound
}
func (s *stubTextStore) GetDocumentByHash(ctx context.Context, hash string) (*types.Document, error) {
	return nil, types.ErrNotFound
}
func (s *stubTextStore) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return nil, nil
}
func (s *stubTextStore) GetChunkByID(ctx context.Context, id string) (*types.Chunk, error) {
	return nil, types.ErrNotFound
}
func (s *stubTextStore) GetChunkAt(ctx context.Context, documentID string, chunkIndex int) (*types.Chunk, error) {
	chunk, ok := s.chunks[types.PairKey{DocumentID: documentID, ChunkIndex: chunkIndex}]
	if !ok {
		return nil, types.ErrNotFound
	}
	return chunk, nil
}
func (s *stubTextStore) ListChunkRefs(ctx context.Context) ([]types.ChunkRef, error) { return nil, nil }
func (s *stubTextStore) DeleteDocument(ctx context.Context, documentID string) error { return nil }
func (s *stubTextStore) Counts(ctx context.Context) (int, int, error)                { return 0, 0, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(hits []types.VectorHit, chunks map[types.PairKey]*types.Chunk, defaults Options) *Service {
	text := &stubTextStore{chunks: chunks}
	assembler := syncpkg.NewAssembler(text, "l2", testLogger())
	return New(&stubEmbedder{vec: []float32{1, 0}}, &stubVectorStore{hits: hits}, assembler, defaults, testLogger())
}

func TestSearchResolvesHits(t *testing.T) {
	hits := []types.VectorHit{
		{ID: 1, DocumentID: "doc-1", ChunkIndex: 0, Distance: 0.2},
		{ID: 2, DocumentID: "doc-1", ChunkIndex: 1, Distance: 0.8},
	}
	chunks := map[types.PairKey]*types.Chunk{
		{DocumentID: "doc-1", ChunkIndex: 0}: {ID: "c0", DocumentID: "doc-1", ChunkIndex: 0, Text: "first"},
		{DocumentID: "doc-1", ChunkIndex: 1}: {ID: "c1", DocumentID: "doc-1", ChunkIndex: 1, Text: "second"},
	}

	svc := newTestService(hits, chunks, Options{TopK: 3})

	results, err := svc.Search(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Text != "first" || results[1].Text != "second" {
		t.Errorf("Expected hit order preserved, got %q then %q", results[0].Text, results[1].Text)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("Expected closer hit to score higher")
	}
}

func TestSearchThresholdFiltering(t *testing.T) {
	hits := []types.VectorHit{
		{ID: 1, DocumentID: "doc-1", ChunkIndex: 0, Distance: 0.0}, // score 1.0
		{ID: 2, DocumentID: "doc-1", ChunkIndex: 1, Distance: 9.0}, // score 0.1
	}
	chunks := map[types.PairKey]*types.Chunk{
		{DocumentID: "doc-1", ChunkIndex: 0}: {ID: "c0", DocumentID: "doc-1", ChunkIndex: 0, Text: "keep"},
		{DocumentID: "doc-1", ChunkIndex: 1}: {ID: "c1", DocumentID: "doc-1", ChunkIndex: 1, Text: "drop"},
	}

	svc := newTestService(hits, chunks, Options{TopK: 3, Threshold: 0.5})

	results, err := svc.Search(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result after filtering, got %d", len(results))
	}
	if results[0].Text != "keep" {
		t.Errorf("Expected %q to survive the threshold, got %q", "keep", results[0].Text)
	}
}

func TestSearchSurfacesDrift(t *testing.T) {
	hits := []types.VectorHit{
		{ID: 1, DocumentID: "gone-doc", ChunkIndex: 0, Distance: 0.1},
	}

	svc := newTestService(hits, nil, Options{TopK: 3})

	results, err := svc.Search(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if !results[0].Unavailable {
		t.Error("Expected unresolvable hit returned as placeholder")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newTestService(nil, nil, Options{TopK: 3})

	if _, err := svc.Search(context.Background(), "", nil); err == nil {
		t.Error("Expected error for empty query")
	}
}

func TestSearchPartialOverrideKeepsThreshold(t *testing.T) {
	hits := []types.VectorHit{
		{ID: 1, DocumentID: "doc-1", ChunkIndex: 0, Distance: 0.0}, // score 1.0
		{ID: 2, DocumentID: "doc-1", ChunkIndex: 1, Distance: 9.0}, // score 0.1
	}
	chunks := map[types.PairKey]*types.Chunk{
		{DocumentID: "doc-1", ChunkIndex: 0}: {ID: "c0", DocumentID: "doc-1", ChunkIndex: 0, Text: "keep"},
		{DocumentID: "doc-1", ChunkIndex: 1}: {ID: "c1", DocumentID: "doc-1", ChunkIndex: 1, Text: "drop"},
	}

	svc := newTestService(hits, chunks, Options{TopK: 3, Threshold: 0.5})

	// Overriding only TopK must not reset the configured threshold.
	results, err := svc.Search(context.Background(), "query", &Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected configured threshold to keep filtering, got %d results", len(results))
	}
	if results[0].Text != "keep" {
		t.Errorf("Expected %q to survive the threshold, got %q", "keep", results[0].Text)
	}
}

func TestSearchPerCallOverrides(t *testing.T) {
	hits := []types.VectorHit{
		{ID: 1, DocumentID: "doc-1", ChunkIndex: 0, Distance: 0.2},
		{ID: 2, DocumentID: "doc-1", ChunkIndex: 1, Distance: 0.8},
	}
	chunks := map[types.PairKey]*types.Chunk{
		{DocumentID: "doc-1", ChunkIndex: 0}: {ID: "c0", DocumentID: "doc-1", ChunkIndex: 0, Text: "first"},
		{DocumentID: "doc-1", ChunkIndex: 1}: {ID: "c1", DocumentID: "doc-1", ChunkIndex: 1, Text: "second"},
	}

	svc := newTestService(hits, chunks, Options{TopK: 5})

	results, err := svc.Search(context.Background(), "query", &Options{TopK: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected TopK override to cap results at 1, got %d", len(results))
	}
}
