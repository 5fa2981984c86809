package models

import (
	"fmt"
	"time"
)

// Document represents an ingested document and its extracted metadata
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	Encoding string `json:"encoding"`

	// Content statistics filled in during parsing
	WordCount      int `json:"word_count"`
	CharCount      int `json:"char_count"`
	SentenceCount  int `json:"sentence_count"`
	ParagraphCount int `json:"paragraph_count"`
	LineCount      int `json:"line_count"`

	ContentHash string      `json:"content_hash"`
	ContentType ContentType `json:"content_type"`
	HasTables   bool        `json:"has_tables"`
	HasImages   bool        `json:"has_images"`
	HasLinks    bool        `json:"has_links"`
	Language    string      `json:"language,omitempty"`

	Status           DocumentStatus `json:"status"`
	IsValid          bool           `json:"is_valid"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	ChunkCount       int            `json:"chunk_count"`
	ErrorMessage     string         `json:"error_message,omitempty"`

	CreatedAt        time.Time              `json:"created_at"`
	LastModified     time.Time              `json:"last_modified"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty"`
	ProcessingTimeMs float64                `json:"processing_time_ms"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentStatus represents the processing state of a document
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusValidating DocumentStatus = "validating"
	DocumentStatusParsing    DocumentStatus = "parsing"
	DocumentStatusChunking   DocumentStatus = "chunking"
	DocumentStatusEmbedding  DocumentStatus = "embedding"
	DocumentStatusStoring    DocumentStatus = "storing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
	DocumentStatusCancelled  DocumentStatus = "cancelled"
	DocumentStatusDeleted    DocumentStatus = "deleted"
)

// IsValid checks if the document status is valid
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusValidating, DocumentStatusParsing,
		DocumentStatusChunking, DocumentStatusEmbedding, DocumentStatusStoring,
		DocumentStatusCompleted, DocumentStatusFailed, DocumentStatusCancelled,
		DocumentStatusDeleted:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s DocumentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further processing will happen
func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case DocumentStatusCompleted, DocumentStatusFailed, DocumentStatusCancelled, DocumentStatusDeleted:
		return true
	default:
		return false
	}
}

// ProgressPercent returns the milestone percentage reached at this status.
// Failed and cancelled documents keep whatever progress they last reported,
// so they map to -1 here.
func (s DocumentStatus) ProgressPercent() int {
	switch s {
	case DocumentStatusPending:
		return 10
	case DocumentStatusValidating:
		return 20
	case DocumentStatusParsing:
		return 40
	case DocumentStatusChunking:
		return 60
	case DocumentStatusEmbedding:
		return 80
	case DocumentStatusStoring:
		return 95
	case DocumentStatusCompleted:
		return 100
	default:
		return -1
	}
}

// ContentType classifies the dominant structure of parsed content
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeStructured ContentType = "structured"
	ContentTypeMixed      ContentType = "mixed"
)

// IsValid checks if the content type is valid
func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypeText, ContentTypeStructured, ContentTypeMixed:
		return true
	default:
		return false
	}
}

// DocumentDTO represents the API view of a document
type DocumentDTO struct {
	ID               string                 `json:"id"`
	Filename         string                 `json:"filename"`
	FileSize         int64                  `json:"file_size"`
	FileType         string                 `json:"file_type"`
	Encoding         string                 `json:"encoding,omitempty"`
	WordCount        int                    `json:"word_count"`
	CharCount        int                    `json:"char_count"`
	SentenceCount    int                    `json:"sentence_count"`
	ParagraphCount   int                    `json:"paragraph_count"`
	LineCount        int                    `json:"line_count"`
	ContentHash      string                 `json:"content_hash,omitempty"`
	ContentType      string                 `json:"content_type,omitempty"`
	HasTables        bool                   `json:"has_tables"`
	HasImages        bool                   `json:"has_images"`
	HasLinks         bool                   `json:"has_links"`
	Language         string                 `json:"language,omitempty"`
	Status           string                 `json:"status"`
	IsValid          bool                   `json:"is_valid"`
	ValidationErrors []string               `json:"validation_errors,omitempty"`
	ChunkCount       int                    `json:"chunk_count"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	CreatedAt        string                 `json:"created_at"`
	LastModified     string                 `json:"last_modified,omitempty"`
	ProcessedAt      string                 `json:"processed_at,omitempty"`
	ProcessingTimeMs float64                `json:"processing_time_ms"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToDTO converts a Document domain model to its DTO
func (d *Document) ToDTO() DocumentDTO {
	dto := DocumentDTO{
		ID:               d.ID,
		Filename:         d.Filename,
		FileSize:         d.FileSize,
		FileType:         d.FileType,
		Encoding:         d.Encoding,
		WordCount:        d.WordCount,
		CharCount:        d.CharCount,
		SentenceCount:    d.SentenceCount,
		ParagraphCount:   d.ParagraphCount,
		LineCount:        d.LineCount,
		ContentHash:      d.ContentHash,
		ContentType:      string(d.ContentType),
		HasTables:        d.HasTables,
		HasImages:        d.HasImages,
		HasLinks:         d.HasLinks,
		Language:         d.Language,
		Status:           string(d.Status),
		IsValid:          d.IsValid,
		ValidationErrors: d.ValidationErrors,
		ChunkCount:       d.ChunkCount,
		ErrorMessage:     d.ErrorMessage,
		CreatedAt:        d.CreatedAt.Format(time.RFC3339),
		ProcessingTimeMs: d.ProcessingTimeMs,
		Metadata:         d.Metadata,
	}

	if !d.LastModified.IsZero() {
		dto.LastModified = d.LastModified.Format(time.RFC3339)
	}
	if d.ProcessedAt != nil {
		dto.ProcessedAt = d.ProcessedAt.Format(time.RFC3339)
	}

	return dto
}

// DocumentFromDTO converts a DocumentDTO to the domain model
func DocumentFromDTO(dto DocumentDTO) (*Document, error) {
	createdAt, err := time.Parse(time.RFC3339, dto.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	doc := &Document{
		ID:               dto.ID,
		Filename:         dto.Filename,
		FileSize:         dto.FileSize,
		FileType:         dto.FileType,
		Encoding:         dto.Encoding,
		WordCount:        dto.WordCount,
		CharCount:        dto.CharCount,
		SentenceCount:    dto.SentenceCount,
		ParagraphCount:   dto.ParagraphCount,
		LineCount:        dto.LineCount,
		ContentHash:      dto.ContentHash,
		ContentType:      ContentType(dto.ContentType),
		HasTables:        dto.HasTables,
		HasImages:        dto.HasImages,
		HasLinks:         dto.HasLinks,
		Language:         dto.Language,
		Status:           DocumentStatus(dto.Status),
		IsValid:          dto.IsValid,
		ValidationErrors: dto.ValidationErrors,
		ChunkCount:       dto.ChunkCount,
		ErrorMessage:     dto.ErrorMessage,
		CreatedAt:        createdAt,
		ProcessingTimeMs: dto.ProcessingTimeMs,
		Metadata:         dto.Metadata,
	}

	if dto.LastModified != "" {
		if lastModified, err := time.Parse(time.RFC3339, dto.LastModified); err == nil {
			doc.LastModified = lastModified
		}
	}
	if dto.ProcessedAt != "" {
		if processedAt, err := time.Parse(time.RFC3339, dto.ProcessedAt); err == nil {
			doc.ProcessedAt = &processedAt
		}
	}

	return doc, nil
}

// Validate checks if the document is valid
func (d *Document) Validate() error {
	if d.ID == "" {
		return &ValidationError{Field: "id", Message: "document ID is required"}
	}
	if d.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if d.FileSize < 0 {
		return &ValidationError{Field: "file_size", Message: "file size cannot be negative"}
	}
	if !d.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "invalid document status: " + string(d.Status)}
	}
	if d.ContentType != "" && !d.ContentType.IsValid() {
		return &ValidationError{Field: "content_type", Message: "invalid content type: " + string(d.ContentType)}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// DocumentFilter represents filtering options for document queries
type DocumentFilter struct {
	Status   DocumentStatus `json:"status,omitempty"`
	FileType string         `json:"file_type,omitempty"`
	Search   string         `json:"search,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// DocumentStats represents aggregate statistics about stored documents
type DocumentStats struct {
	TotalDocuments int                    `json:"total_documents"`
	TotalChunks    int                    `json:"total_chunks"`
	TotalBytes     int64                  `json:"total_bytes"`
	ByStatus       map[DocumentStatus]int `json:"by_status"`
	ByFileType     map[string]int         `json:"by_file_type"`
	LastIngestedAt *time.Time             `json:"last_ingested_at,omitempty"`
}

// DocumentStatsDTO represents the API view of document statistics
type DocumentStatsDTO struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	TotalBytes     int64          `json:"total_bytes"`
	ByStatus       map[string]int `json:"by_status"`
	ByFileType     map[string]int `json:"by_file_type"`
	LastIngestedAt string         `json:"last_ingested_at,omitempty"`
}

// ToDTO converts DocumentStats to its DTO
func (ds *DocumentStats) ToDTO() DocumentStatsDTO {
	statusMap := make(map[string]int)
	for status, count := range ds.ByStatus {
		statusMap[string(status)] = count
	}

	dto := DocumentStatsDTO{
		TotalDocuments: ds.TotalDocuments,
		TotalChunks:    ds.TotalChunks,
		TotalBytes:     ds.TotalBytes,
		ByStatus:       statusMap,
		ByFileType:     ds.ByFileType,
	}

	if ds.LastIngestedAt != nil {
		dto.LastIngestedAt = ds.LastIngestedAt.Format(time.RFC3339)
	}

	return dto
}
