// Package chunker splits document text into overlapping chunks.
package chunker

import (
	"strings"

	"github.com/vsedlak/chatrag/pkg/provider"
)

// Sentence boundaries tried when breaking a chunk, in preference order.
var breakMarkers = []string{". ", ".\n", "! ", "!\n", "? ", "?\n", "\n\n"}

// Overlap splits text into fixed-size windows with overlap, preferring to
// break at a sentence boundary once past the halfway point of the window.
// Chunks below MinChunkSize are dropped, except the first.
type Overlap struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

// New creates an overlap chunker.
func New(cfg provider.ChunkingConfig) *Overlap {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 500
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	minSize := cfg.MinChunkSize
	if minSize < 0 {
		minSize = 0
	}
	return &Overlap{
		chunkSize:    size,
		chunkOverlap: overlap,
		minChunkSize: minSize,
	}
}

// Name returns the strategy name.
func (o *Overlap) Name() string {
	return "overlap"
}

// Split splits text into an ordered sequence of chunks. The slice order is
// the chunk index order; callers rely on it being dense from zero.
func (o *Overlap) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= o.chunkSize {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + o.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])

		// Prefer a sentence boundary, but only past the halfway point so
		// a stray period early in the window cannot shrink chunks badly.
		if end < len(runes) {
			for _, marker := range breakMarkers {
				if cut := strings.LastIndex(window, marker); cut > o.chunkSize/2 {
					window = window[:cut+len(marker)]
					end = start + len([]rune(window))
					break
				}
			}
		}

		chunk := strings.TrimSpace(window)
		if len(chunk) >= o.minChunkSize || start == 0 {
			chunks = append(chunks, chunk)
		}

		next := end - o.chunkOverlap
		if next <= start {
			// Overlap would stall; force forward progress.
			next = end
		}
		if next >= len(runes) {
			break
		}
		start = next
	}

	return chunks
}

// Ensure Overlap implements the Chunker interface
var _ provider.Chunker = (*Overlap)(nil)
