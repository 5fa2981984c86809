package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/config"
	"zerorag/internal/models"
)

func newTestChunker(size, overlap, maxChunks int) *Chunker {
	return NewChunker(config.ProcessingConfig{
		ChunkSize:            size,
		ChunkOverlap:         overlap,
		MaxChunksPerDocument: maxChunks,
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace runs",
			input:    "hello   world\tand\n  more",
			expected: "hello world and more",
		},
		{
			name:     "preserves paragraph breaks",
			input:    "first paragraph\n\n\nsecond   paragraph",
			expected: "first paragraph\n\nsecond paragraph",
		},
		{
			name:     "normalizes windows line endings",
			input:    "one\r\n\r\ntwo\r\nthree",
			expected: "one\n\ntwo three",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  \n padded \n  ",
			expected: "padded",
		},
		{
			name:     "drops empty paragraphs",
			input:    "a\n\n  \n\nb",
			expected: "a\n\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestChunker_SingleChunkFastPath(t *testing.T) {
	chunker := newTestChunker(1000, 200, 1000)

	// Text of exactly chunk_size characters stays a single chunk.
	text := strings.Repeat("a", 999) + "."
	chunks, err := chunker.ChunkDocument("doc-1", text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, models.NewChunkID("doc-1", 0, 0), chunk.ID)
	assert.Equal(t, "doc-1", chunk.DocumentID)
	assert.Equal(t, 0, chunk.ChunkIndex)
	assert.Equal(t, 0, chunk.StartChar)
	assert.Equal(t, 1000, chunk.EndChar)
	assert.Equal(t, 1000, chunk.ByteSize)
	assert.Equal(t, 1, chunk.SentenceCount)
	assert.NotEmpty(t, chunk.ContentPreview)
}

func TestChunker_SentenceAwareSplitting(t *testing.T) {
	chunker := newTestChunker(100, 20, 1000)

	sentence := "Alpha beta gamma delta."
	text := strings.Repeat(sentence+" ", 10)

	chunks, err := chunker.ChunkDocument("doc-2", text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.LessOrEqual(t, chunk.EndChar-chunk.StartChar, 100)

		// Every cut except the last lands on a sentence boundary.
		if i < len(chunks)-1 {
			assert.True(t, strings.HasSuffix(chunk.Text, "."),
				"chunk %d should end at a sentence boundary, got %q", i, chunk.Text)
		}
	}
}

func TestChunker_OverlapInvariants(t *testing.T) {
	chunker := newTestChunker(100, 20, 1000)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 12)
	chunks, err := chunker.ChunkDocument("doc-3", text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	normalized := NormalizeText(text)
	total := len([]rune(normalized))

	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, total, chunks[len(chunks)-1].EndChar)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]

		// The next chunk starts inside or right after the previous one,
		// overlapping by at most the configured overlap.
		assert.GreaterOrEqual(t, cur.StartChar, prev.StartChar)
		assert.LessOrEqual(t, cur.StartChar, prev.EndChar)
		assert.LessOrEqual(t, prev.EndChar-cur.StartChar, 20)
	}
}

func TestChunker_MaxChunksCap(t *testing.T) {
	chunker := newTestChunker(50, 10, 2)

	text := strings.Repeat("Sentence number one ends here. ", 20)
	_, err := chunker.ChunkDocument("doc-4", text, nil)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, "TOO_MANY_CHUNKS", models.ErrorCode(err))
}

func TestChunker_EmptyDocument(t *testing.T) {
	chunker := newTestChunker(1000, 200, 1000)

	_, err := chunker.ChunkDocument("doc-5", "   \n\t\n  ", nil)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, "EMPTY_DOCUMENT", models.ErrorCode(err))
}

func TestChunker_UnicodeOffsetsAreRuneBased(t *testing.T) {
	chunker := newTestChunker(1000, 200, 1000)

	text := "日本語のテキストです。これは二番目の文です。"
	chunks, err := chunker.ChunkDocument("doc-6", text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, len([]rune(text)), chunk.EndChar)
	assert.Equal(t, len(text), chunk.ByteSize)
	assert.Greater(t, chunk.ByteSize, chunk.EndChar)
}

func TestChunker_DeterministicIDs(t *testing.T) {
	chunker := newTestChunker(100, 20, 1000)

	text := strings.Repeat("Stable identifiers matter for reingestion. ", 8)
	first, err := chunker.ChunkDocument("doc-7", text, nil)
	require.NoError(t, err)
	second, err := chunker.ChunkDocument("doc-7", text, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChunker_MetadataCopiedPerChunk(t *testing.T) {
	chunker := newTestChunker(100, 20, 1000)

	base := map[string]interface{}{"filename": "notes.txt"}
	text := strings.Repeat("Metadata should never be shared between chunks. ", 8)
	chunks, err := chunker.ChunkDocument("doc-8", text, base)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["filename"] = "mutated.txt"
	assert.Equal(t, "notes.txt", chunks[1].Metadata["filename"])
}

func TestCountSentences(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"Hello world. How are you? Great!", 3},
		{"Wait... what happened?", 2},
		{"no terminator at all", 1},
		{"", 0},
		{"One.", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, countSentences(tt.text), "text: %q", tt.text)
	}
}

func TestCountSentences_Ellipsis(t *testing.T) {
	// A terminator run counts once, so an ellipsis is one boundary.
	assert.Equal(t, 1, countSentences("Thinking..."))
}
