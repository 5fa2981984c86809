package repositories

import (
	"context"
	"errors"
	"fmt"

	"zerorag/internal/db"
	"zerorag/internal/models"
)

// QdrantVectorRepository implements VectorRepository using Qdrant
type QdrantVectorRepository struct {
	client     *db.QdrantClient
	collection string
	vectorSize int
}

// NewQdrantVectorRepository creates a new Qdrant-backed vector repository
func NewQdrantVectorRepository(client *db.QdrantClient, collection string, vectorSize int) *QdrantVectorRepository {
	return &QdrantVectorRepository{
		client:     client,
		collection: collection,
		vectorSize: vectorSize,
	}
}

// EnsureCollection creates the collection if missing and verifies the
// configured vector size matches an existing one
func (r *QdrantVectorRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.client.GetCollection(ctx, r.collection)
	if errors.Is(err, db.ErrCollectionNotFound) {
		if err := r.client.CreateCollection(ctx, r.collection, r.vectorSize); err != nil {
			return classifyQdrantError("vector.ensure_collection", err)
		}
		return nil
	}
	if err != nil {
		return classifyQdrantError("vector.ensure_collection", err)
	}

	if info.VectorSize != 0 && info.VectorSize != r.vectorSize {
		return models.NewPermanentError("vector.ensure_collection",
			fmt.Errorf("%w: collection has size %d, configured size %d",
				models.ErrDimensionMismatch, info.VectorSize, r.vectorSize))
	}

	return nil
}

// DropCollection removes the collection and all stored points
func (r *QdrantVectorRepository) DropCollection(ctx context.Context) error {
	if err := r.client.DeleteCollection(ctx, r.collection); err != nil {
		return classifyQdrantError("vector.drop_collection", err)
	}
	return nil
}

// Stats returns collection statistics
func (r *QdrantVectorRepository) Stats(ctx context.Context) (*StoreStats, error) {
	info, err := r.client.GetCollection(ctx, r.collection)
	if err != nil {
		return nil, classifyQdrantError("vector.stats", err)
	}

	return &StoreStats{
		CollectionName: r.collection,
		PointsCount:    info.PointsCount,
		VectorSize:     info.VectorSize,
		Status:         info.Status,
	}, nil
}

// Upsert stores records, rejecting malformed vectors before they reach the store
func (r *QdrantVectorRepository) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]db.Point, len(records))
	for i, record := range records {
		if err := r.validateVector("vector.upsert", record.ID, record.Vector); err != nil {
			return err
		}
		points[i] = db.Point{
			ID:      record.ID,
			Vector:  record.Vector,
			Payload: record.Payload,
		}
	}

	if err := r.client.UpsertPoints(ctx, r.collection, points); err != nil {
		return classifyQdrantError("vector.upsert", err)
	}

	return nil
}

// Delete removes points by chunk ID
func (r *QdrantVectorRepository) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	if err := r.client.DeletePoints(ctx, r.collection, chunkIDs); err != nil {
		return classifyQdrantError("vector.delete", err)
	}

	return nil
}

// DeleteByDocument removes all points belonging to a document and reports
// how many were removed
func (r *QdrantVectorRepository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	filter := documentFilter(documentID)

	count, err := r.client.CountPoints(ctx, r.collection, filter)
	if err != nil {
		return 0, classifyQdrantError("vector.delete_by_document", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := r.client.DeletePointsByFilter(ctx, r.collection, filter); err != nil {
		return 0, classifyQdrantError("vector.delete_by_document", err)
	}

	return count, nil
}

// Search runs a similarity query and returns hits with normalized scores
func (r *QdrantVectorRepository) Search(ctx context.Context, vector []float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([]models.SearchResult, error) {
	if err := r.validateVector("vector.search", "query", vector); err != nil {
		return nil, err
	}

	// Qdrant scores cosine similarity in [-1, 1], so the normalized
	// threshold has to be mapped back before it is pushed down
	var rawThreshold *float64
	if scoreThreshold != nil {
		raw := *scoreThreshold*2.0 - 1.0
		rawThreshold = &raw
	}

	hits, err := r.client.QueryPoints(ctx, r.collection, vector, topK, rawThreshold, buildQdrantFilter(filter))
	if err != nil {
		return nil, classifyQdrantError("vector.search", err)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, scoredPointToResult(hit))
	}

	orderResults(results)
	return results, nil
}

// Count returns the total number of stored points
func (r *QdrantVectorRepository) Count(ctx context.Context) (int, error) {
	count, err := r.client.CountPoints(ctx, r.collection, nil)
	if err != nil {
		return 0, classifyQdrantError("vector.count", err)
	}
	return count, nil
}

// CountByDocument returns the number of points stored for a document
func (r *QdrantVectorRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	count, err := r.client.CountPoints(ctx, r.collection, documentFilter(documentID))
	if err != nil {
		return 0, classifyQdrantError("vector.count_by_document", err)
	}
	return count, nil
}

// ExportAll scrolls through the collection in pages and hands each batch to fn
func (r *QdrantVectorRepository) ExportAll(ctx context.Context, batchSize int, fn func(records []models.VectorRecord) error) error {
	if batchSize <= 0 {
		batchSize = 256
	}

	var offset *string
	for {
		page, err := r.client.ScrollPoints(ctx, r.collection, nil, batchSize, offset, true)
		if err != nil {
			return classifyQdrantError("vector.export", err)
		}

		if len(page.Points) > 0 {
			records := make([]models.VectorRecord, len(page.Points))
			for i, point := range page.Points {
				records[i] = models.VectorRecord{
					ID:      point.ID,
					Vector:  point.Vector,
					Payload: point.Payload,
				}
			}
			if err := fn(records); err != nil {
				return err
			}
		}

		if page.NextOffset == nil {
			return nil
		}
		offset = page.NextOffset
	}
}

// Ping checks if Qdrant is alive
func (r *QdrantVectorRepository) Ping(ctx context.Context) error {
	if err := r.client.HealthCheck(ctx); err != nil {
		return classifyQdrantError("vector.ping", err)
	}
	return nil
}

// Close closes the Qdrant client
func (r *QdrantVectorRepository) Close() error {
	r.client.Close()
	return nil
}

func (r *QdrantVectorRepository) validateVector(op, id string, vector []float32) error {
	if len(vector) != r.vectorSize {
		return models.NewValidationError(op,
			fmt.Sprintf("vector for %q has %d dimensions, expected %d", id, len(vector), r.vectorSize)).
			WithCode("DIMENSION_MISMATCH")
	}
	if isZeroVector(vector) {
		return models.NewValidationError(op,
			fmt.Sprintf("vector for %q is all zeros", id)).
			WithCode("ZERO_VECTOR")
	}
	return nil
}

// scoredPointToResult converts a Qdrant hit into a search result,
// lifting the well-known payload keys into typed fields
func scoredPointToResult(hit db.ScoredPoint) models.SearchResult {
	result := models.SearchResult{
		ChunkID:  hit.ID,
		Score:    NormalizeCosine(hit.Score),
		Metadata: hit.Payload,
	}

	if hit.Payload != nil {
		if docID, ok := hit.Payload["document_id"].(string); ok {
			result.DocumentID = docID
		}
		if text, ok := hit.Payload["text"].(string); ok {
			result.Text = text
		}
		if idx, ok := hit.Payload["chunk_index"].(float64); ok {
			result.ChunkIndex = int(idx)
		}
	}

	return result
}

// buildQdrantFilter translates the search filter into Qdrant filter syntax
func buildQdrantFilter(filter *models.SearchFilter) map[string]interface{} {
	if filter.IsEmpty() {
		return nil
	}

	must := make([]map[string]interface{}, 0, 2)
	if len(filter.DocumentIDs) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "document_id",
			"match": map[string]interface{}{"any": filter.DocumentIDs},
		})
	}
	if len(filter.FileTypes) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "file_type",
			"match": map[string]interface{}{"any": filter.FileTypes},
		})
	}

	return map[string]interface{}{"must": must}
}

func documentFilter(documentID string) map[string]interface{} {
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{
				"key":   "document_id",
				"match": map[string]interface{}{"value": documentID},
			},
		},
	}
}

// classifyQdrantError maps client failures onto the retry taxonomy.
// Server errors and network failures are transient, client errors are not.
func classifyQdrantError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return models.NewCancelledError(op, err)
	}
	if errors.Is(err, db.ErrCollectionNotFound) {
		return models.NewNotFoundError(op, err.Error())
	}

	var apiErr *db.QdrantAPIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return models.NewTransientError(op, err)
		}
		return models.NewPermanentError(op, err)
	}

	// Connection refused, DNS failures, timeouts
	return models.NewTransientError(op, err)
}
