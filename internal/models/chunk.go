package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chunk represents a contiguous slice of a parsed document
type Chunk struct {
	ID             string                 `json:"id"`
	DocumentID     string                 `json:"document_id"`
	Text           string                 `json:"text"`
	ChunkIndex     int                    `json:"chunk_index"`
	StartChar      int                    `json:"start_char"`
	EndChar        int                    `json:"end_char"`
	ByteSize       int                    `json:"byte_size"`
	WordCount      int                    `json:"word_count"`
	SentenceCount  int                    `json:"sentence_count"`
	ContentPreview string                 `json:"content_preview"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewChunkID derives a stable chunk identifier as a deterministic UUID, so
// re-ingesting the same document yields the same IDs for unchanged chunks
// and the vector store accepts them natively.
func NewChunkID(documentID string, chunkIndex, startChar int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%d", documentID, chunkIndex, startChar))).String()
}

// Preview returns the first maxChars characters of text for display
func Preview(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

// ChunkDTO represents the API view of a chunk
type ChunkDTO struct {
	ID             string                 `json:"id"`
	DocumentID     string                 `json:"document_id"`
	Text           string                 `json:"text"`
	ChunkIndex     int                    `json:"chunk_index"`
	StartChar      int                    `json:"start_char"`
	EndChar        int                    `json:"end_char"`
	ByteSize       int                    `json:"byte_size"`
	WordCount      int                    `json:"word_count"`
	SentenceCount  int                    `json:"sentence_count"`
	ContentPreview string                 `json:"content_preview"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      string                 `json:"created_at"`
}

// ToDTO converts Chunk domain model to DTO
func (c *Chunk) ToDTO() ChunkDTO {
	return ChunkDTO{
		ID:             c.ID,
		DocumentID:     c.DocumentID,
		Text:           c.Text,
		ChunkIndex:     c.ChunkIndex,
		StartChar:      c.StartChar,
		EndChar:        c.EndChar,
		ByteSize:       c.ByteSize,
		WordCount:      c.WordCount,
		SentenceCount:  c.SentenceCount,
		ContentPreview: c.ContentPreview,
		Metadata:       c.Metadata,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

// ChunkFromDTO converts ChunkDTO to Chunk domain model
func ChunkFromDTO(dto ChunkDTO) (*Chunk, error) {
	createdAt, err := time.Parse(time.RFC3339, dto.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	return &Chunk{
		ID:             dto.ID,
		DocumentID:     dto.DocumentID,
		Text:           dto.Text,
		ChunkIndex:     dto.ChunkIndex,
		StartChar:      dto.StartChar,
		EndChar:        dto.EndChar,
		ByteSize:       dto.ByteSize,
		WordCount:      dto.WordCount,
		SentenceCount:  dto.SentenceCount,
		ContentPreview: dto.ContentPreview,
		Metadata:       dto.Metadata,
		CreatedAt:      createdAt,
	}, nil
}

// Validate checks if the chunk is valid
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "chunk ID is required"}
	}
	if c.DocumentID == "" {
		return &ValidationError{Field: "document_id", Message: "document ID is required"}
	}
	if c.Text == "" {
		return &ValidationError{Field: "text", Message: "text is required"}
	}
	if c.ChunkIndex < 0 {
		return &ValidationError{Field: "chunk_index", Message: "chunk index cannot be negative"}
	}
	if c.EndChar < c.StartChar {
		return &ValidationError{Field: "end_char", Message: "end char cannot precede start char"}
	}
	return nil
}

// VectorRecord pairs a chunk ID with its embedding and payload for storage
type VectorRecord struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// Validate checks if the record can be upserted
func (r *VectorRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "record ID is required"}
	}
	if len(r.Vector) == 0 {
		return &ValidationError{Field: "vector", Message: "embedding vector cannot be empty"}
	}
	return nil
}

// SearchResult represents a single hit from vector similarity search
type SearchResult struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float64                `json:"score"` // Normalized similarity (0-1, higher is better)
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkIndex int                    `json:"chunk_index"`
}

// SearchResultDTO represents the API view of a search result
type SearchResultDTO struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkIndex int                    `json:"chunk_index"`
	Filename   string                 `json:"filename,omitempty"`
}

// ToDTO converts SearchResult to DTO
func (sr *SearchResult) ToDTO() SearchResultDTO {
	dto := SearchResultDTO{
		ChunkID:    sr.ChunkID,
		DocumentID: sr.DocumentID,
		Text:       sr.Text,
		Score:      sr.Score,
		Metadata:   sr.Metadata,
		ChunkIndex: sr.ChunkIndex,
	}

	// Extract filename from metadata if available
	if sr.Metadata != nil {
		if filename, ok := sr.Metadata["filename"].(string); ok {
			dto.Filename = filename
		}
	}

	return dto
}

// FilenameFromMetadata returns the source filename from the chunk payload
func (sr *SearchResult) FilenameFromMetadata() string {
	if sr.Metadata != nil {
		if filename, ok := sr.Metadata["filename"].(string); ok {
			return filename
		}
	}
	return "unknown"
}

// SearchFilter narrows a vector search to a subset of the collection
type SearchFilter struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
	FileTypes   []string `json:"file_types,omitempty"`
}

// IsEmpty returns true if the filter constrains nothing
func (f *SearchFilter) IsEmpty() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && len(f.FileTypes) == 0)
}

// SearchRequest represents a search request
type SearchRequest struct {
	Query          string        `json:"query"`
	TopK           int           `json:"top_k"`
	ScoreThreshold *float64      `json:"score_threshold,omitempty"`
	Filter         *SearchFilter `json:"filter,omitempty"`
	IncludeContent bool          `json:"include_content"`
}

// Validate validates the search request
func (sr *SearchRequest) Validate() error {
	if sr.Query == "" {
		return &ValidationError{Field: "query", Message: "query is required"}
	}
	if sr.TopK <= 0 {
		sr.TopK = 10 // Default to 10 results
	}
	if sr.TopK > 100 {
		return &ValidationError{Field: "top_k", Message: "top_k cannot exceed 100"}
	}
	if sr.ScoreThreshold != nil && (*sr.ScoreThreshold < 0 || *sr.ScoreThreshold > 1) {
		return &ValidationError{Field: "score_threshold", Message: "score threshold must be between 0 and 1"}
	}
	return nil
}

// SearchResponse represents a search response
type SearchResponse struct {
	Results    []SearchResultDTO `json:"results"`
	Query      string            `json:"query"`
	TotalFound int               `json:"total_found"`
	SearchTime float64           `json:"search_time_ms"`
}
