package sqlitevec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsedlak/chatrag/pkg/types"
)

const testDims = 4

func newTestStore(t *testing.T, metric string) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "chatrag-vecstore-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := New(metric)
	if err := store.Init(filepath.Join(tmpDir, "vectors.db"), testDims); err != nil {
		if strings.Contains(err.Error(), "sqlite-vec extension not available") {
			t.Skip("sqlite-vec extension not available in this build")
		}
		t.Fatalf("Failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testRecords() []*types.VectorRecord {
	return []*types.VectorRecord{
		{ID: 101, Embedding: []float32{1, 0, 0, 0}, DocumentID: "doc-1", ChunkIndex: 0},
		{ID: 102, Embedding: []float32{0, 1, 0, 0}, DocumentID: "doc-1", ChunkIndex: 1},
		{ID: 201, Embedding: []float32{0, 0, 1, 0}, DocumentID: "doc-2", ChunkIndex: 0},
	}
}

func TestInsertAndSearch(t *testing.T) {
	store := newTestStore(t, MetricL2)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	hits, err := store.Search(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != 101 {
		t.Errorf("Expected nearest hit 101, got %d", hits[0].ID)
	}
	if hits[0].DocumentID != "doc-1" || hits[0].ChunkIndex != 0 {
		t.Errorf("Expected hit to carry (doc-1, 0), got (%s, %d)", hits[0].DocumentID, hits[0].ChunkIndex)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Errorf("Expected hits ordered by distance")
	}
}

func TestInsertReplacesExisting(t *testing.T) {
	store := newTestStore(t, MetricL2)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Re-inserting id 101 with a new embedding must replace, not duplicate.
	replacement := []*types.VectorRecord{
		{ID: 101, Embedding: []float32{0, 0, 0, 1}, DocumentID: "doc-1", ChunkIndex: 0},
	}
	if err := store.Insert(ctx, replacement); err != nil {
		t.Fatalf("Replacing insert failed: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 records after replacement, got %d", count)
	}

	hits, err := store.Search(ctx, []float32{0, 0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 101 {
		t.Fatalf("Expected replaced 101 to be nearest, got %+v", hits)
	}
}

func TestDeleteIgnoresAbsent(t *testing.T) {
	store := newTestStore(t, MetricL2)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Delete(ctx, []int64{101, 999}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 records after delete, got %d", count)
	}
}

func TestListIDs(t *testing.T) {
	store := newTestStore(t, MetricL2)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	ids, err := store.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 ids, got %d", len(ids))
	}
	if got := ids[types.PairKey{DocumentID: "doc-1", ChunkIndex: 1}]; got != 102 {
		t.Errorf("Expected id 102 for (doc-1, 1), got %d", got)
	}
}

func TestDimensionMismatch(t *testing.T) {
	store := newTestStore(t, MetricL2)
	ctx := context.Background()

	bad := []*types.VectorRecord{{ID: 1, Embedding: []float32{1, 2}, DocumentID: "doc-1", ChunkIndex: 0}}
	if err := store.Insert(ctx, bad); err == nil {
		t.Error("Expected error for wrong insert dimension")
	}

	if _, err := store.Search(ctx, []float32{1, 2}, 3); err == nil {
		t.Error("Expected error for wrong query dimension")
	}
}

func TestCosineMetricSearch(t *testing.T) {
	store := newTestStore(t, MetricCosine)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecords()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Scaled copies of the first vector stay closest under cosine distance.
	hits, err := store.Search(ctx, []float32{5, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 101 {
		t.Fatalf("Expected 101 nearest under cosine, got %+v", hits)
	}
	if hits[0].Distance > 0.0001 {
		t.Errorf("Expected near-zero cosine distance, got %f", hits[0].Distance)
	}
}
