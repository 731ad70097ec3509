// Package idmap converts string chunk identifiers to the fixed-width
// numeric identifiers required by the vector store.
//
// The mapping is one-directional: vector hits are resolved back to text by
// (document_id, chunk_index), never by reversing the numeric id.
package idmap

import (
	"crypto/md5"
	"encoding/binary"
)

// ChunkKey maps a chunk id string to a signed 64-bit vector-store id.
//
// The key is the first 8 bytes of the MD5 digest of the id, read as a
// big-endian signed integer. The function is pure: same input, same output,
// across processes and restarts, which is what makes reconciliation able to
// re-derive ids for repair.
//
// Collisions are theoretically possible (64-bit space) and are not detected
// at runtime; at the corpus sizes this system targets the probability is
// negligible. See DESIGN.md for the recorded decision.
func ChunkKey(chunkID string) int64 {
	sum := md5.Sum([]byte(chunkID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Keys maps a batch of chunk ids.
func Keys(chunkIDs []string) []int64 {
	out := make([]int64, len(chunkIDs))
	for i, id := range chunkIDs {
		out[i] = ChunkKey(id)
	}
	return out
}
