package ingest

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the chunk window in runes.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the overlap between consecutive chunks.
	DefaultChunkOverlap = 50
)

// Chunker splits extracted text into overlapping windows sized for
// embedding. Windows are measured in runes, not bytes, so multi-byte
// characters are never split mid-sequence.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker with the given window size and overlap,
// falling back to the defaults for out-of-range values. Overlap is
// clamped to half the window so every iteration advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts text into chunks of at most the window size. A window that
// would end mid-word backs up to the last whitespace, unless that would
// shrink the chunk below half the window. Consecutive chunks share the
// configured overlap. Chunks are trimmed; empty ones are dropped.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(runes)/c.size+1)
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else if b := lastSpace(runes, start, end); b > start+c.size/2 {
			end = b
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// lastSpace returns the index of the last whitespace rune in
// runes[start:end], or -1 when there is none.
func lastSpace(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
