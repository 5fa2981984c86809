package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"zerorag/internal/models"
)

const (
	// Redis key prefixes
	documentKeyPrefix    = "document:"
	documentIndexKey     = "documents:index"
	documentStatusPrefix = "document:status:"
	documentHashPrefix   = "document:hash:"
	documentNamePrefix   = "document:name:"
	progressKeyPrefix    = "progress:"
)

// RedisDocumentRepository implements DocumentRepository using Redis
type RedisDocumentRepository struct {
	client *redis.Client
}

// NewRedisDocumentRepository creates a new Redis-based document repository
func NewRedisDocumentRepository(client *redis.Client) *RedisDocumentRepository {
	return &RedisDocumentRepository{
		client: client,
	}
}

// Register stores a new document in the registry
func (r *RedisDocumentRepository) Register(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	// Check if document already exists
	exists, err := r.Exists(ctx, doc.ID)
	if err != nil {
		return err
	}
	if exists {
		return models.NewConflictError("document.register", "document already exists: "+doc.ID)
	}

	// Set timestamps
	now := time.Now()
	doc.CreatedAt = now
	doc.LastModified = now

	// Use transaction to ensure atomicity
	pipe := r.client.TxPipeline()

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return models.NewInternalError("document.register", err)
	}

	// Store document
	docKey := documentKeyPrefix + doc.ID
	pipe.Set(ctx, docKey, docJSON, 0)

	// Add to global index
	pipe.SAdd(ctx, documentIndexKey, doc.ID)

	// Add to status index
	statusKey := documentStatusPrefix + string(doc.Status)
	pipe.SAdd(ctx, statusKey, doc.ID)

	// Add to filename index
	pipe.Set(ctx, documentNamePrefix+doc.Filename, doc.ID, 0)

	// Add to content hash index when the hash is already known
	if doc.ContentHash != "" {
		pipe.Set(ctx, documentHashPrefix+doc.ContentHash, doc.ID, 0)
	}

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("document.register", err)
	}

	return nil
}

// Get retrieves a document by ID
func (r *RedisDocumentRepository) Get(ctx context.Context, documentID string) (*models.Document, error) {
	docKey := documentKeyPrefix + documentID

	docJSON, err := r.client.Get(ctx, docKey).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("document.get", "document not found: "+documentID)
	}
	if err != nil {
		return nil, models.NewTransientError("document.get", err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, models.NewInternalError("document.get", err)
	}

	return &doc, nil
}

// List retrieves documents matching the filter, newest first
func (r *RedisDocumentRepository) List(ctx context.Context, filter *models.DocumentFilter) ([]*models.Document, error) {
	var docIDs []string
	var err error

	if filter != nil && filter.Status != "" {
		docIDs, err = r.client.SMembers(ctx, documentStatusPrefix+string(filter.Status)).Result()
	} else {
		docIDs, err = r.client.SMembers(ctx, documentIndexKey).Result()
	}
	if err != nil {
		return nil, models.NewTransientError("document.list", err)
	}

	if len(docIDs) == 0 {
		return []*models.Document{}, nil
	}

	docs, err := r.GetBatch(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	if filter != nil {
		docs = applyDocumentFilter(docs, filter)
	}

	// Newest first, ties broken by ID for a stable page order
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})

	// Apply pagination
	if filter != nil && filter.Limit > 0 {
		offset := filter.Offset
		if offset >= len(docs) {
			return []*models.Document{}, nil
		}
		end := offset + filter.Limit
		if end > len(docs) {
			end = len(docs)
		}
		docs = docs[offset:end]
	}

	return docs, nil
}

// Delete removes a document and all of its index entries
func (r *RedisDocumentRepository) Delete(ctx context.Context, documentID string) error {
	// First get the document to access its metadata for index cleanup
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}

	// Use transaction to ensure atomicity
	pipe := r.client.TxPipeline()

	// Delete document
	pipe.Del(ctx, documentKeyPrefix+documentID)

	// Remove from global index
	pipe.SRem(ctx, documentIndexKey, documentID)

	// Remove from status index
	pipe.SRem(ctx, documentStatusPrefix+string(doc.Status), documentID)

	// Remove lookup indexes
	pipe.Del(ctx, documentNamePrefix+doc.Filename)
	if doc.ContentHash != "" {
		pipe.Del(ctx, documentHashPrefix+doc.ContentHash)
	}

	// Drop any progress record alongside the document
	pipe.Del(ctx, progressKeyPrefix+documentID)

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("document.delete", err)
	}

	return nil
}

// Update modifies document fields and keeps the indexes consistent
func (r *RedisDocumentRepository) Update(ctx context.Context, documentID string, updates map[string]interface{}) error {
	// Get existing document
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}

	oldStatus := doc.Status
	oldHash := doc.ContentHash
	oldFilename := doc.Filename

	applyDocumentUpdates(doc, updates)
	doc.LastModified = time.Now()

	// Validate updated document
	if err := doc.Validate(); err != nil {
		return err
	}

	// Use transaction
	pipe := r.client.TxPipeline()

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return models.NewInternalError("document.update", err)
	}

	// Update document
	pipe.Set(ctx, documentKeyPrefix+documentID, docJSON, 0)

	// Move between indexes when the indexed fields changed
	if oldStatus != doc.Status {
		pipe.SRem(ctx, documentStatusPrefix+string(oldStatus), documentID)
		pipe.SAdd(ctx, documentStatusPrefix+string(doc.Status), documentID)
	}
	if oldHash != doc.ContentHash {
		if oldHash != "" {
			pipe.Del(ctx, documentHashPrefix+oldHash)
		}
		if doc.ContentHash != "" {
			pipe.Set(ctx, documentHashPrefix+doc.ContentHash, documentID, 0)
		}
	}
	if oldFilename != doc.Filename {
		pipe.Del(ctx, documentNamePrefix+oldFilename)
		pipe.Set(ctx, documentNamePrefix+doc.Filename, documentID, 0)
	}

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("document.update", err)
	}

	return nil
}

// UpdateStatus moves a document to a new processing state
func (r *RedisDocumentRepository) UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, errorMessage string) error {
	return r.Update(ctx, documentID, map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	})
}

// Exists checks if a document exists
func (r *RedisDocumentRepository) Exists(ctx context.Context, documentID string) (bool, error) {
	exists, err := r.client.Exists(ctx, documentKeyPrefix+documentID).Result()
	if err != nil {
		return false, models.NewTransientError("document.exists", err)
	}
	return exists > 0, nil
}

// GetBatch retrieves multiple documents by IDs
func (r *RedisDocumentRepository) GetBatch(ctx context.Context, documentIDs []string) ([]*models.Document, error) {
	if len(documentIDs) == 0 {
		return []*models.Document{}, nil
	}

	// Use pipeline for batch get
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(documentIDs))
	for i, id := range documentIDs {
		cmds[i] = pipe.Get(ctx, documentKeyPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, models.NewTransientError("document.get_batch", err)
	}

	// Parse results
	docs := make([]*models.Document, 0, len(documentIDs))
	for _, cmd := range cmds {
		docJSON, err := cmd.Result()
		if err == redis.Nil {
			// Skip missing documents
			continue
		}
		if err != nil {
			return nil, models.NewTransientError("document.get_batch", err)
		}

		var doc models.Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, models.NewInternalError("document.get_batch", err)
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// ListByStatus retrieves all documents with a specific status
func (r *RedisDocumentRepository) ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error) {
	docIDs, err := r.client.SMembers(ctx, documentStatusPrefix+string(status)).Result()
	if err != nil {
		return nil, models.NewTransientError("document.list_by_status", err)
	}

	if len(docIDs) == 0 {
		return []*models.Document{}, nil
	}

	return r.GetBatch(ctx, docIDs)
}

// CountTotal counts all documents
func (r *RedisDocumentRepository) CountTotal(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, documentIndexKey).Result()
	if err != nil {
		return 0, models.NewTransientError("document.count", err)
	}
	return int(count), nil
}

// FindByFilename finds a document by filename
func (r *RedisDocumentRepository) FindByFilename(ctx context.Context, filename string) (*models.Document, error) {
	documentID, err := r.client.Get(ctx, documentNamePrefix+filename).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("document.find_by_filename", "no document named "+filename)
	}
	if err != nil {
		return nil, models.NewTransientError("document.find_by_filename", err)
	}

	return r.Get(ctx, documentID)
}

// FindByContentHash finds a document with identical content, used to
// reject duplicate uploads
func (r *RedisDocumentRepository) FindByContentHash(ctx context.Context, contentHash string) (*models.Document, error) {
	documentID, err := r.client.Get(ctx, documentHashPrefix+contentHash).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("document.find_by_hash", "no document with matching content")
	}
	if err != nil {
		return nil, models.NewTransientError("document.find_by_hash", err)
	}

	return r.Get(ctx, documentID)
}

// GetStats returns aggregate statistics over the registry
func (r *RedisDocumentRepository) GetStats(ctx context.Context) (*models.DocumentStats, error) {
	allDocs, err := r.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &models.DocumentStats{
		TotalDocuments: len(allDocs),
		ByStatus:       make(map[models.DocumentStatus]int),
		ByFileType:     make(map[string]int),
	}

	for _, doc := range allDocs {
		stats.ByStatus[doc.Status]++
		if doc.FileType != "" {
			stats.ByFileType[doc.FileType]++
		}
		stats.TotalChunks += doc.ChunkCount
		stats.TotalBytes += doc.FileSize

		if doc.Status == models.DocumentStatusCompleted {
			if stats.LastIngestedAt == nil || doc.CreatedAt.After(*stats.LastIngestedAt) {
				createdAt := doc.CreatedAt
				stats.LastIngestedAt = &createdAt
			}
		}
	}

	return stats, nil
}

// SaveProgress stores an upload progress record with an expiry
func (r *RedisDocumentRepository) SaveProgress(ctx context.Context, progress *models.UploadProgress, ttl time.Duration) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return models.NewInternalError("document.save_progress", err)
	}

	key := progressKeyPrefix + progress.DocumentID
	if err := r.client.Set(ctx, key, progressJSON, ttl).Err(); err != nil {
		return models.NewTransientError("document.save_progress", err)
	}

	return nil
}

// GetProgress retrieves the progress record for a document
func (r *RedisDocumentRepository) GetProgress(ctx context.Context, documentID string) (*models.UploadProgress, error) {
	progressJSON, err := r.client.Get(ctx, progressKeyPrefix+documentID).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("document.get_progress", "no progress for document: "+documentID)
	}
	if err != nil {
		return nil, models.NewTransientError("document.get_progress", err)
	}

	var progress models.UploadProgress
	if err := json.Unmarshal([]byte(progressJSON), &progress); err != nil {
		return nil, models.NewInternalError("document.get_progress", err)
	}

	return &progress, nil
}

// DeleteProgress drops the progress record for a document
func (r *RedisDocumentRepository) DeleteProgress(ctx context.Context, documentID string) error {
	if err := r.client.Del(ctx, progressKeyPrefix+documentID).Err(); err != nil {
		return models.NewTransientError("document.delete_progress", err)
	}
	return nil
}

// ListProgress retrieves all live progress records
func (r *RedisDocumentRepository) ListProgress(ctx context.Context) ([]*models.UploadProgress, error) {
	keys, err := r.client.Keys(ctx, progressKeyPrefix+"*").Result()
	if err != nil {
		return nil, models.NewTransientError("document.list_progress", err)
	}

	if len(keys) == 0 {
		return []*models.UploadProgress{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, models.NewTransientError("document.list_progress", err)
	}

	records := make([]*models.UploadProgress, 0, len(keys))
	for _, cmd := range cmds {
		progressJSON, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, models.NewTransientError("document.list_progress", err)
		}

		var progress models.UploadProgress
		if err := json.Unmarshal([]byte(progressJSON), &progress); err != nil {
			continue
		}
		records = append(records, &progress)
	}

	// Most recently updated first
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastUpdate.After(records[j].LastUpdate)
	})

	return records, nil
}

// Ping checks if Redis connection is alive
func (r *RedisDocumentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisDocumentRepository) Close() error {
	return r.client.Close()
}

// Cleanup removes deleted and failed documents older than the cutoff
func (r *RedisDocumentRepository) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	allDocs, err := r.List(ctx, nil)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for _, doc := range allDocs {
		purgeable := doc.Status == models.DocumentStatusDeleted || doc.Status == models.DocumentStatusFailed
		if purgeable && doc.LastModified.Before(cutoff) {
			if err := r.Delete(ctx, doc.ID); err != nil {
				continue
			}
			count++
		}
	}

	return count, nil
}

// applyDocumentFilter applies the in-memory portion of a document filter
func applyDocumentFilter(docs []*models.Document, filter *models.DocumentFilter) []*models.Document {
	filtered := make([]*models.Document, 0, len(docs))

	search := strings.ToLower(filter.Search)
	for _, doc := range docs {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.FileType != "" && !strings.EqualFold(doc.FileType, filter.FileType) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.Filename), search) {
			continue
		}
		filtered = append(filtered, doc)
	}

	return filtered
}
