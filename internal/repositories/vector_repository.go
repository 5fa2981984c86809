package repositories

import (
	"context"
	"sort"

	"zerorag/internal/models"
)

// VectorRepository defines the interface for vector database operations.
// This abstracts the Qdrant backend and allows the in-memory fallback to
// stand in when the primary store is unreachable.
type VectorRepository interface {
	// Collection Management
	EnsureCollection(ctx context.Context) error
	DropCollection(ctx context.Context) error
	Stats(ctx context.Context) (*StoreStats, error)

	// Point Operations
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Delete(ctx context.Context, chunkIDs []string) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Search(ctx context.Context, vector []float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)

	// ExportAll streams every stored record in batches, used for fallback
	// replay and backup export
	ExportAll(ctx context.Context, batchSize int, fn func(records []models.VectorRecord) error) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// StoreStats represents collection-level statistics
type StoreStats struct {
	CollectionName string `json:"collection_name"`
	PointsCount    int    `json:"points_count"`
	VectorSize     int    `json:"vector_size"`
	Status         string `json:"status"`
}

// NormalizeCosine maps a raw cosine similarity from [-1, 1] onto [0, 1]
// so scores are comparable across backends and thresholds stay intuitive.
func NormalizeCosine(cosine float64) float64 {
	score := (cosine + 1.0) / 2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// orderResults sorts hits by descending score, breaking ties by ascending
// chunk ID so equal-score results come back in a stable order.
func orderResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

// applyThreshold drops hits scoring below the normalized threshold.
// The cut happens after ranking, so a tight threshold can return fewer
// than topK results rather than backfilling with weaker matches.
func applyThreshold(results []models.SearchResult, threshold *float64) []models.SearchResult {
	if threshold == nil {
		return results
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= *threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
