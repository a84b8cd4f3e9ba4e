// Package chunk splits document text into bounded-size segments with
// line-range metadata for indexing and retrieval.
package chunk

import (
	"strings"
)

// DefaultChunkSize is the default target chunk length in characters.
const DefaultChunkSize = 1000

// Chunk is a contiguous excerpt of a source document.
type Chunk struct {
	// Content is the sanitized chunk text.
	Content string

	// StartLine and EndLine are the 1-based inclusive line range within
	// the source document.
	StartLine int
	EndLine   int
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(text string, chunkSize int) []Chunk
}

// LineChunker splits text on line boundaries, packing whole lines into
// chunks of at most chunkSize characters. A single line longer than
// chunkSize becomes its own oversized chunk; lines are never split so
// line ranges stay exact.
type LineChunker struct{}

// NewLineChunker creates a line-boundary chunker.
func NewLineChunker() *LineChunker {
	return &LineChunker{}
}

// Chunk splits text into bounded segments. Line ranges of consecutive
// chunks are contiguous and non-overlapping, and together cover every
// line of the document. Empty or whitespace-only documents produce no
// chunks.
func (c *LineChunker) Chunk(text string, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")

	var chunks []Chunk
	var buf strings.Builder
	startLine := 1

	// Chunks are appended even when whitespace-only so that the line
	// ranges of consecutive chunks stay contiguous.
	flush := func(endLine int) {
		chunks = append(chunks, Chunk{
			Content:   Sanitize(buf.String()),
			StartLine: startLine,
			EndLine:   endLine,
		})
		buf.Reset()
	}

	for i, line := range lines {
		lineNo := i + 1

		// +1 for the newline separating the buffered content from this line
		projected := buf.Len() + len(line)
		if buf.Len() > 0 {
			projected++
		}

		if buf.Len() > 0 && projected > chunkSize {
			flush(lineNo - 1)
			startLine = lineNo
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}

	if buf.Len() > 0 {
		flush(len(lines))
	}

	return chunks
}

// Sanitize removes bytes that are unsafe to embed or persist: null bytes
// and control characters other than newline and tab.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || r == 0xfffd {
			return -1
		}
		return r
	}, s)
}

var _ Chunker = (*LineChunker)(nil)
