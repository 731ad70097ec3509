package idmap

import "testing"

// Fixed vectors pin the mapping across releases: the numeric ids are
// persisted in the vector store, so any change here would orphan every
// existing record.
func TestChunkKeyFixedVectors(t *testing.T) {
	tests := []struct {
		id   string
		want int64
	}{
		{"", -3162216497309240828},
		{"a", 919145239626757800},
		{"chunk-1", -8268599287694063381},
		{"A-chunk-1", 4077506625714159269},
		{"550e8400-e29b-41d4-a716-446655440000", -1709840711914736500},
		{"9b2d7249-8c7a-4c15-9a30-1a64a9a6d3a1", 1521416781715636940},
		{"hello world", 6824707963431612112},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ChunkKey(tt.id); got != tt.want {
				t.Errorf("ChunkKey(%q) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestChunkKeyDeterministic(t *testing.T) {
	const id = "f4b4c9e2-0b3f-4a3e-9a61-1f2d3c4b5a69"
	first := ChunkKey(id)
	for i := 0; i < 100; i++ {
		if got := ChunkKey(id); got != first {
			t.Fatalf("ChunkKey not deterministic: %d != %d", got, first)
		}
	}
}

func TestKeys(t *testing.T) {
	ids := []string{"chunk-1", "A-chunk-1"}
	got := Keys(ids)
	if len(got) != 2 {
		t.Fatalf("Keys returned %d values, want 2", len(got))
	}
	if got[0] != ChunkKey("chunk-1") || got[1] != ChunkKey("A-chunk-1") {
		t.Errorf("Keys mismatch: %v", got)
	}
}
