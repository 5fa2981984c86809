package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"zerorag/config"
	"zerorag/internal/models"
)

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n+`)
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
)

// Chunker splits normalized document text into overlapping, sentence-aware
// chunks ready for embedding.
type Chunker struct {
	chunkSize int
	overlap   int
	maxChunks int
}

// NewChunker creates a chunker from processing config, falling back to safe
// defaults when values are missing or inconsistent.
func NewChunker(cfg config.ProcessingConfig) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 1000
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	maxChunks := cfg.MaxChunksPerDocument
	if maxChunks <= 0 {
		maxChunks = 1000
	}
	return &Chunker{chunkSize: size, overlap: overlap, maxChunks: maxChunks}
}

// NormalizeText collapses whitespace runs to single spaces while keeping
// paragraph breaks as exactly one blank line.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	paragraphs := paragraphBreakRe.Split(text, -1)
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(whitespaceRunRe.ReplaceAllString(p, " "))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

// ChunkDocument normalizes text and splits it into chunks. The cursor
// advances in strides of chunkSize, pulling each cut back onto the nearest
// sentence boundary within a bounded window. Consecutive chunks overlap by
// up to the configured overlap, and the next chunk never starts before the
// previous one.
func (c *Chunker) ChunkDocument(documentID, text string, baseMetadata map[string]interface{}) ([]models.Chunk, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, models.NewValidationError("pipeline.chunk", "document contains no extractable text").
			WithCode("EMPTY_DOCUMENT")
	}

	runes := []rune(normalized)
	total := len(runes)
	now := time.Now()

	build := func(index, start, end int) models.Chunk {
		chunkText := string(runes[start:end])
		return models.Chunk{
			ID:             models.NewChunkID(documentID, index, start),
			DocumentID:     documentID,
			Text:           chunkText,
			ChunkIndex:     index,
			StartChar:      start,
			EndChar:        end,
			ByteSize:       len(chunkText),
			WordCount:      countWords(chunkText),
			SentenceCount:  countSentences(chunkText),
			ContentPreview: models.Preview(chunkText, 100),
			Metadata:       copyMetadata(baseMetadata),
			CreatedAt:      now,
		}
	}

	if total <= c.chunkSize {
		return []models.Chunk{build(0, 0, total)}, nil
	}

	window := min(100, c.chunkSize/2)
	var chunks []models.Chunk
	start := 0
	for start < total {
		end := start + c.chunkSize
		if end >= total {
			end = total
		} else if cut := sentenceCut(runes, start, end, window); cut > start {
			end = cut
		}

		chunks = append(chunks, build(len(chunks), start, end))
		if len(chunks) > c.maxChunks {
			return nil, models.NewValidationError("pipeline.chunk",
				fmt.Sprintf("document produces more than %d chunks, raise chunk_size or split the file", c.maxChunks)).
				WithCode("TOO_MANY_CHUNKS")
		}
		if end >= total {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// ChunkSize returns the configured stride length.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap between consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// sentenceCut searches backward from end for sentence-ending punctuation
// within the window and returns the position just after it, or -1.
func sentenceCut(runes []rune, start, end, window int) int {
	limit := end - window
	if limit < start {
		limit = start
	}
	for i := end - 1; i >= limit; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return -1
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// countSentences counts terminator runs so "Wait..." reads as one sentence.
// Text without terminators still counts as a single sentence.
func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return count
}

func copyMetadata(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
