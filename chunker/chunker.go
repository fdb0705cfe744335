// Package chunker splits extracted document text into fixed-size overlapping
// chunks suitable for embedding and retrieval. Splitting is deterministic:
// identical text and parameters always produce identical chunk sets, which is
// what makes reprocessing idempotent.
package chunker

import (
	"github.com/poiesic/docstream/core"
)

const (
	// DefaultWindow is the default chunk size in characters.
	DefaultWindow = 1000
	// DefaultOverlap is the default number of characters shared between
	// adjacent chunks.
	DefaultOverlap = 200
)

// Chunker splits text into a dense, ordered chunk sequence using a sliding
// window measured in characters (runes), not bytes.
type Chunker struct {
	window  int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow sets the window size in characters.
func WithWindow(window int) Option {
	return func(c *Chunker) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options. An overlap that reaches the
// window size is clamped to a quarter of the window so the cursor always
// advances.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		window:  DefaultWindow,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.window {
		c.overlap = c.window / 4
	}
	return c
}

// Window returns the configured window size in characters.
func (c *Chunker) Window() int {
	return c.window
}

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split chunks text into ordered chunks with half-open [CharStart, CharEnd)
// ranges. The union of ranges covers the whole text with no gaps; adjacent
// ranges share exactly the configured overlap except for the final chunk,
// which may be shorter than the window. Empty text produces zero chunks.
func (c *Chunker) Split(text string) []core.Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	step := c.window - c.overlap

	chunks := make([]core.Chunk, 0, total/step+1)
	index := 0

	for start := 0; start < total; start += step {
		end := start + c.window
		if end > total {
			end = total
		}

		chunks = append(chunks, core.Chunk{
			ChunkIndex: index,
			CharStart:  start,
			CharEnd:    end,
			Text:       string(runes[start:end]),
		})
		index++

		if end == total {
			break
		}
	}

	return chunks
}
