package repositories

import (
	"context"
	"time"

	"zerorag/internal/models"
)

// DocumentRepository defines the interface for the document registry.
// This abstracts Redis operations for document metadata storage; the
// registry is the source of truth for what has been ingested, chunk
// payloads in the vector store only carry denormalized copies.
type DocumentRepository interface {
	// Document Registry Operations
	Register(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, documentID string) (*models.Document, error)
	List(ctx context.Context, filter *models.DocumentFilter) ([]*models.Document, error)
	Delete(ctx context.Context, documentID string) error
	Update(ctx context.Context, documentID string, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, errorMessage string) error
	Exists(ctx context.Context, documentID string) (bool, error)

	// Bulk Operations
	GetBatch(ctx context.Context, documentIDs []string) ([]*models.Document, error)

	// Query Operations
	ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error)
	CountTotal(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*models.DocumentStats, error)

	// Search and Lookup
	FindByFilename(ctx context.Context, filename string) (*models.Document, error)
	FindByContentHash(ctx context.Context, contentHash string) (*models.Document, error)

	// Upload Progress Tracking; records expire after ttl
	SaveProgress(ctx context.Context, progress *models.UploadProgress, ttl time.Duration) error
	GetProgress(ctx context.Context, documentID string) (*models.UploadProgress, error)
	DeleteProgress(ctx context.Context, documentID string) error
	ListProgress(ctx context.Context) ([]*models.UploadProgress, error)

	// Health and Cleanup
	Ping(ctx context.Context) error
	Close() error
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// applyDocumentUpdates copies recognized fields from an updates map onto a
// document. Numeric values arriving as float64 (JSON decoding) are accepted
// alongside their native types; unknown keys are ignored.
func applyDocumentUpdates(doc *models.Document, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "filename":
			if v, ok := value.(string); ok {
				doc.Filename = v
			}
		case "file_size":
			if v, ok := value.(int64); ok {
				doc.FileSize = v
			} else if v, ok := value.(float64); ok {
				doc.FileSize = int64(v)
			}
		case "file_type":
			if v, ok := value.(string); ok {
				doc.FileType = v
			}
		case "encoding":
			if v, ok := value.(string); ok {
				doc.Encoding = v
			}
		case "status":
			if v, ok := value.(string); ok {
				doc.Status = models.DocumentStatus(v)
			} else if v, ok := value.(models.DocumentStatus); ok {
				doc.Status = v
			}
		case "chunk_count":
			if v, ok := value.(int); ok {
				doc.ChunkCount = v
			} else if v, ok := value.(float64); ok {
				doc.ChunkCount = int(v)
			}
		case "error_message":
			if v, ok := value.(string); ok {
				doc.ErrorMessage = v
			}
		case "word_count":
			if v, ok := value.(int); ok {
				doc.WordCount = v
			}
		case "char_count":
			if v, ok := value.(int); ok {
				doc.CharCount = v
			}
		case "sentence_count":
			if v, ok := value.(int); ok {
				doc.SentenceCount = v
			}
		case "paragraph_count":
			if v, ok := value.(int); ok {
				doc.ParagraphCount = v
			}
		case "line_count":
			if v, ok := value.(int); ok {
				doc.LineCount = v
			}
		case "content_hash":
			if v, ok := value.(string); ok {
				doc.ContentHash = v
			}
		case "content_type":
			if v, ok := value.(string); ok {
				doc.ContentType = models.ContentType(v)
			} else if v, ok := value.(models.ContentType); ok {
				doc.ContentType = v
			}
		case "has_tables":
			if v, ok := value.(bool); ok {
				doc.HasTables = v
			}
		case "has_images":
			if v, ok := value.(bool); ok {
				doc.HasImages = v
			}
		case "has_links":
			if v, ok := value.(bool); ok {
				doc.HasLinks = v
			}
		case "language":
			if v, ok := value.(string); ok {
				doc.Language = v
			}
		case "is_valid":
			if v, ok := value.(bool); ok {
				doc.IsValid = v
			}
		case "validation_errors":
			if v, ok := value.([]string); ok {
				doc.ValidationErrors = v
			}
		case "processing_time_ms":
			if v, ok := value.(float64); ok {
				doc.ProcessingTimeMs = v
			}
		case "processed_at":
			if v, ok := value.(time.Time); ok {
				doc.ProcessedAt = &v
			} else if v, ok := value.(*time.Time); ok {
				doc.ProcessedAt = v
			}
		case "metadata":
			if v, ok := value.(map[string]interface{}); ok {
				doc.Metadata = v
			}
		}
	}
}
