package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docstream/core"
)

func TestSplit_Empty(t *testing.T) {
	c := New()
	chunks := c.Split("")
	assert.Empty(t, chunks, "empty text should produce zero chunks")
}

func TestSplit_SingleShortChunk(t *testing.T) {
	c := New(WithWindow(1000), WithOverlap(0))
	chunks := c.Split("Hello World")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 11, chunks[0].CharEnd)
	assert.Equal(t, "Hello World", chunks[0].Text)
}

func TestSplit_Coverage(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap int
		textLen int
	}{
		{"no overlap exact multiple", 10, 0, 100},
		{"no overlap remainder", 10, 0, 105},
		{"with overlap", 10, 3, 57},
		{"window larger than text", 100, 20, 30},
		{"single character", 10, 2, 1},
		{"heavy overlap", 8, 7, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithWindow(tt.window), WithOverlap(tt.overlap))
			text := strings.Repeat("x", tt.textLen)
			chunks := c.Split(text)

			require.NoError(t, core.ValidateChunks(chunks, tt.textLen))

			for i, chunk := range chunks {
				assert.NotEmpty(t, chunk.Text, "chunk %d", i)
				assert.Equal(t, chunk.CharEnd-chunk.CharStart, len([]rune(chunk.Text)))
			}
		})
	}
}

func TestSplit_OverlapAmount(t *testing.T) {
	c := New(WithWindow(10), WithOverlap(4))
	chunks := c.Split(strings.Repeat("a", 25))

	require.True(t, len(chunks) >= 2)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].CharEnd - chunks[i].CharStart
		assert.Equal(t, 4, overlap, "chunks %d/%d", i-1, i)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(WithWindow(50), WithOverlap(10))
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	first := c.Split(text)
	second := c.Split(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i], "chunk %d", i)
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	// Offsets count characters, not bytes.
	c := New(WithWindow(4), WithOverlap(0))
	chunks := c.Split("héllö wörld") // 11 runes, 15 bytes

	require.Len(t, chunks, 3)
	assert.Equal(t, "héll", chunks[0].Text)
	assert.Equal(t, "ö wö", chunks[1].Text)
	assert.Equal(t, "rld", chunks[2].Text)
	assert.Equal(t, 11, chunks[2].CharEnd)
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(WithWindow(100), WithOverlap(100))
	assert.Equal(t, 25, c.Overlap(), "overlap >= window is clamped")

	// Split must still terminate.
	chunks := c.Split(strings.Repeat("y", 500))
	require.NoError(t, core.ValidateChunks(chunks, 500))
}
