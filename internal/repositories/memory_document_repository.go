package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"zerorag/internal/models"
)

// MemoryDocumentRepository implements DocumentRepository with in-process
// maps. It keeps the document registry working when Redis is absent; the
// registry does not survive a restart, matching the in-memory vector
// fallback it usually runs alongside.
type MemoryDocumentRepository struct {
	mu         sync.RWMutex
	documents  map[string]*models.Document
	byFilename map[string]string
	byHash     map[string]string
	progress   map[string]memoryProgressEntry
}

type memoryProgressEntry struct {
	record    *models.UploadProgress
	expiresAt time.Time
}

// NewMemoryDocumentRepository creates a new in-memory document repository
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		documents:  make(map[string]*models.Document),
		byFilename: make(map[string]string),
		byHash:     make(map[string]string),
		progress:   make(map[string]memoryProgressEntry),
	}
}

// Register stores a new document in the registry
func (r *MemoryDocumentRepository) Register(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[doc.ID]; ok {
		return models.NewConflictError("document.register", "document already exists: "+doc.ID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.LastModified = now

	stored := *doc
	r.documents[doc.ID] = &stored
	r.byFilename[doc.Filename] = doc.ID
	if doc.ContentHash != "" {
		r.byHash[doc.ContentHash] = doc.ID
	}

	return nil
}

// Get retrieves a document by ID
func (r *MemoryDocumentRepository) Get(ctx context.Context, documentID string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(documentID, "document.get")
}

func (r *MemoryDocumentRepository) getLocked(documentID, op string) (*models.Document, error) {
	doc, ok := r.documents[documentID]
	if !ok {
		return nil, models.NewNotFoundError(op, "document not found: "+documentID)
	}
	out := *doc
	return &out, nil
}

// List retrieves documents matching the filter, newest first
func (r *MemoryDocumentRepository) List(ctx context.Context, filter *models.DocumentFilter) ([]*models.Document, error) {
	r.mu.RLock()
	docs := make([]*models.Document, 0, len(r.documents))
	for _, doc := range r.documents {
		out := *doc
		docs = append(docs, &out)
	}
	r.mu.RUnlock()

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
func (r *MemoryDocumentRepository) Delete(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[documentID]
	if !ok {
		return models.NewNotFoundError("document.delete", "document not found: "+documentID)
	}

	delete(r.documents, documentID)
	if r.byFilename[doc.Filename] == documentID {
		delete(r.byFilename, doc.Filename)
	}
	if doc.ContentHash != "" && r.byHash[doc.ContentHash] == documentID {
		delete(r.byHash, doc.ContentHash)
	}
	delete(r.progress, documentID)

	return nil
}

// Update modifies document fields and keeps the indexes consistent
func (r *MemoryDocumentRepository) Update(ctx context.Context, documentID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.documents[documentID]
	if !ok {
		return models.NewNotFoundError("document.update", "document not found: "+documentID)
	}

	doc := *existing
	oldHash := doc.ContentHash
	oldFilename := doc.Filename

	applyDocumentUpdates(&doc, updates)
	doc.LastModified = time.Now()

	if err := doc.Validate(); err != nil {
		return err
	}

	r.documents[documentID] = &doc
	if oldFilename != doc.Filename {
		if r.byFilename[oldFilename] == documentID {
			delete(r.byFilename, oldFilename)
		}
		r.byFilename[doc.Filename] = documentID
	}
	if oldHash != doc.ContentHash {
		if oldHash != "" && r.byHash[oldHash] == documentID {
			delete(r.byHash, oldHash)
		}
		if doc.ContentHash != "" {
			r.byHash[doc.ContentHash] = documentID
		}
	}

	return nil
}

// UpdateStatus moves a document to a new processing state
func (r *MemoryDocumentRepository) UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, errorMessage string) error {
	return r.Update(ctx, documentID, map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	})
}

// Exists checks if a document exists
func (r *MemoryDocumentRepository) Exists(ctx context.Context, documentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.documents[documentID]
	return ok, nil
}

// GetBatch retrieves multiple documents by IDs, skipping missing ones
func (r *MemoryDocumentRepository) GetBatch(ctx context.Context, documentIDs []string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*models.Document, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, ok := r.documents[id]
		if !ok {
			continue
		}
		out := *doc
		docs = append(docs, &out)
	}

	return docs, nil
}

// ListByStatus retrieves all documents with a specific status
func (r *MemoryDocumentRepository) ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*models.Document, 0)
	for _, doc := range r.documents {
		if doc.Status != status {
			continue
		}
		out := *doc
		docs = append(docs, &out)
	}

	return docs, nil
}

// CountTotal counts all documents
func (r *MemoryDocumentRepository) CountTotal(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// FindByFilename finds a document by filename
func (r *MemoryDocumentRepository) FindByFilename(ctx context.Context, filename string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	documentID, ok := r.byFilename[filename]
	if !ok {
		return nil, models.NewNotFoundError("document.find_by_filename", "no document named "+filename)
	}
	return r.getLocked(documentID, "document.find_by_filename")
}

// FindByContentHash finds a document with identical content, used to
// reject duplicate uploads
func (r *MemoryDocumentRepository) FindByContentHash(ctx context.Context, contentHash string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	documentID, ok := r.byHash[contentHash]
	if !ok {
		return nil, models.NewNotFoundError("document.find_by_hash", "no document with matching content")
	}
	return r.getLocked(documentID, "document.find_by_hash")
}

// GetStats returns aggregate statistics over the registry
func (r *MemoryDocumentRepository) GetStats(ctx context.Context) (*models.DocumentStats, error) {
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
func (r *MemoryDocumentRepository) SaveProgress(ctx context.Context, progress *models.UploadProgress, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *progress
	entry := memoryProgressEntry{record: &stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	r.progress[progress.DocumentID] = entry

	return nil
}

// GetProgress retrieves the progress record for a document
func (r *MemoryDocumentRepository) GetProgress(ctx context.Context, documentID string) (*models.UploadProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.progress[documentID]
	if ok && entry.expired(time.Now()) {
		delete(r.progress, documentID)
		ok = false
	}
	if !ok {
		return nil, models.NewNotFoundError("document.get_progress", "no progress for document: "+documentID)
	}

	out := *entry.record
	return &out, nil
}

// DeleteProgress drops the progress record for a document
func (r *MemoryDocumentRepository) DeleteProgress(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, documentID)
	return nil
}

// ListProgress retrieves all live progress records
func (r *MemoryDocumentRepository) ListProgress(ctx context.Context) ([]*models.UploadProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	records := make([]*models.UploadProgress, 0, len(r.progress))
	for id, entry := range r.progress {
		if entry.expired(now) {
			delete(r.progress, id)
			continue
		}
		out := *entry.record
		records = append(records, &out)
	}

	// Most recently updated first
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastUpdate.After(records[j].LastUpdate)
	})

	return records, nil
}

// Ping always succeeds for the in-memory store
func (r *MemoryDocumentRepository) Ping(ctx context.Context) error {
	return nil
}

// Close discards all stored state
func (r *MemoryDocumentRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = make(map[string]*models.Document)
	r.byFilename = make(map[string]string)
	r.byHash = make(map[string]string)
	r.progress = make(map[string]memoryProgressEntry)
	return nil
}

// Cleanup removes deleted and failed documents older than the cutoff
func (r *MemoryDocumentRepository) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
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

func (e memoryProgressEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
