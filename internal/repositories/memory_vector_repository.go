package repositories

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"zerorag/internal/models"
)

// MemoryVectorRepository implements VectorRepository with an in-process map.
// It backs the degraded mode when Qdrant is unreachable: writes land here so
// ingestion keeps working, and search falls back to a linear cosine scan.
type MemoryVectorRepository struct {
	mu         sync.RWMutex
	records    map[string]models.VectorRecord
	collection string
	vectorSize int
}

// NewMemoryVectorRepository creates a new in-memory vector repository
func NewMemoryVectorRepository(collection string, vectorSize int) *MemoryVectorRepository {
	return &MemoryVectorRepository{
		records:    make(map[string]models.VectorRecord),
		collection: collection,
		vectorSize: vectorSize,
	}
}

// EnsureCollection is a no-op for the in-memory store
func (r *MemoryVectorRepository) EnsureCollection(ctx context.Context) error {
	return nil
}

// DropCollection discards all stored records
func (r *MemoryVectorRepository) DropCollection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]models.VectorRecord)
	return nil
}

// Stats returns statistics for the in-memory store
func (r *MemoryVectorRepository) Stats(ctx context.Context) (*StoreStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &StoreStats{
		CollectionName: r.collection,
		PointsCount:    len(r.records),
		VectorSize:     r.vectorSize,
		Status:         "in_memory",
	}, nil
}

// Upsert stores records after validating their vectors
func (r *MemoryVectorRepository) Upsert(ctx context.Context, records []models.VectorRecord) error {
	for _, record := range records {
		if len(record.Vector) != r.vectorSize {
			return models.NewValidationError("vector.upsert",
				fmt.Sprintf("vector for %q has %d dimensions, expected %d", record.ID, len(record.Vector), r.vectorSize)).
				WithCode("DIMENSION_MISMATCH")
		}
		if isZeroVector(record.Vector) {
			return models.NewValidationError("vector.upsert",
				fmt.Sprintf("vector for %q is all zeros", record.ID)).
				WithCode("ZERO_VECTOR")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		r.records[record.ID] = record
	}

	return nil
}

// Delete removes records by chunk ID
func (r *MemoryVectorRepository) Delete(ctx context.Context, chunkIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range chunkIDs {
		delete(r.records, id)
	}
	return nil
}

// DeleteByDocument removes all records belonging to a document
func (r *MemoryVectorRepository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, record := range r.records {
		if payloadString(record.Payload, "document_id") == documentID {
			delete(r.records, id)
			count++
		}
	}

	return count, nil
}

// Search scans every stored record and ranks by cosine similarity
func (r *MemoryVectorRepository) Search(ctx context.Context, vector []float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([]models.SearchResult, error) {
	if len(vector) != r.vectorSize {
		return nil, models.NewValidationError("vector.search",
			fmt.Sprintf("query vector has %d dimensions, expected %d", len(vector), r.vectorSize)).
			WithCode("DIMENSION_MISMATCH")
	}
	if isZeroVector(vector) {
		return nil, models.NewValidationError("vector.search", "query vector is all zeros").
			WithCode("ZERO_VECTOR")
	}

	r.mu.RLock()
	results := make([]models.SearchResult, 0, len(r.records))
	for _, record := range r.records {
		if !matchesFilter(record.Payload, filter) {
			continue
		}

		results = append(results, models.SearchResult{
			ChunkID:    record.ID,
			DocumentID: payloadString(record.Payload, "document_id"),
			Text:       payloadString(record.Payload, "text"),
			Score:      NormalizeCosine(cosineSimilarity(vector, record.Vector)),
			Metadata:   record.Payload,
			ChunkIndex: payloadInt(record.Payload, "chunk_index"),
		})
	}
	r.mu.RUnlock()

	orderResults(results)
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	return applyThreshold(results, scoreThreshold), nil
}

// Count returns the total number of stored records
func (r *MemoryVectorRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

// CountByDocument returns the number of records stored for a document
func (r *MemoryVectorRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, record := range r.records {
		if payloadString(record.Payload, "document_id") == documentID {
			count++
		}
	}

	return count, nil
}

// ExportAll hands every stored record to fn in stable-ordered batches
func (r *MemoryVectorRepository) ExportAll(ctx context.Context, batchSize int, fn func(records []models.VectorRecord) error) error {
	if batchSize <= 0 {
		batchSize = 256
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	all := make([]models.VectorRecord, len(ids))
	for i, id := range ids {
		all[i] = r.records[id]
	}
	r.mu.RUnlock()

	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}

	return nil
}

// Ping always succeeds for the in-memory store
func (r *MemoryVectorRepository) Ping(ctx context.Context) error {
	return nil
}

// Close discards all stored records
func (r *MemoryVectorRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	return nil
}

// matchesFilter applies the search filter against a record payload
func matchesFilter(payload map[string]interface{}, filter *models.SearchFilter) bool {
	if filter.IsEmpty() {
		return true
	}

	if len(filter.DocumentIDs) > 0 {
		docID := payloadString(payload, "document_id")
		if !containsString(filter.DocumentIDs, docID) {
			return false
		}
	}

	if len(filter.FileTypes) > 0 {
		fileType := payloadString(payload, "file_type")
		if !containsString(filter.FileTypes, fileType) {
			return false
		}
	}

	return true
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]interface{}, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Callers guarantee non-zero vectors of equal length.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func isZeroVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
