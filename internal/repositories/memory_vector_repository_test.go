package repositories

import (
	"context"
	"math"
	"testing"

	"zerorag/internal/models"
)

func memRecord(id, documentID, fileType string, vector []float32) models.VectorRecord {
	return models.VectorRecord{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			"document_id": documentID,
			"file_type":   fileType,
			"text":        "text for " + id,
			"chunk_index": 0,
		},
	}
}

// TestMemoryVectorRepository_UpsertAndCount tests basic storage
func TestMemoryVectorRepository_UpsertAndCount(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	records := []models.VectorRecord{
		memRecord("a", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("b", "doc-1", "txt", []float32{0, 1, 0}),
		memRecord("c", "doc-2", "csv", []float32{0, 0, 1}),
	}

	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 records, got %d", count)
	}

	docCount, err := repo.CountByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("CountByDocument failed: %v", err)
	}
	if docCount != 2 {
		t.Errorf("Expected 2 records for doc-1, got %d", docCount)
	}
}

// TestMemoryVectorRepository_RejectsBadVectors tests vector validation
func TestMemoryVectorRepository_RejectsBadVectors(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	err := repo.Upsert(ctx, []models.VectorRecord{memRecord("a", "doc-1", "txt", []float32{1, 0})})
	if !models.IsValidation(err) {
		t.Errorf("Expected validation error for wrong dimension, got %v", err)
	}

	err = repo.Upsert(ctx, []models.VectorRecord{memRecord("a", "doc-1", "txt", []float32{0, 0, 0})})
	if !models.IsValidation(err) {
		t.Errorf("Expected validation error for zero vector, got %v", err)
	}

	_, err = repo.Search(ctx, []float32{0, 0, 0}, 5, nil, nil)
	if !models.IsValidation(err) {
		t.Errorf("Expected validation error for zero query vector, got %v", err)
	}
}

// TestMemoryVectorRepository_SearchRanking tests cosine scoring and ordering
func TestMemoryVectorRepository_SearchRanking(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	records := []models.VectorRecord{
		memRecord("exact", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("orthogonal", "doc-1", "txt", []float32{0, 1, 0}),
		memRecord("opposite", "doc-1", "txt", []float32{-1, 0, 0}),
		memRecord("diagonal", "doc-1", "txt", []float32{1, 1, 0}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := repo.Search(ctx, []float32{1, 0, 0}, 10, nil, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}

	// Cosine 1.0 maps to 1.0, 0.0 to 0.5, -1.0 to 0.0
	if results[0].ChunkID != "exact" || math.Abs(results[0].Score-1.0) > 1e-9 {
		t.Errorf("Expected exact match first with score 1.0, got %s score %f", results[0].ChunkID, results[0].Score)
	}
	if results[1].ChunkID != "diagonal" {
		t.Errorf("Expected diagonal second, got %s", results[1].ChunkID)
	}
	expectedDiagonal := (1.0/math.Sqrt2 + 1.0) / 2.0
	if math.Abs(results[1].Score-expectedDiagonal) > 1e-6 {
		t.Errorf("Expected diagonal score %f, got %f", expectedDiagonal, results[1].Score)
	}
	if results[2].ChunkID != "orthogonal" || math.Abs(results[2].Score-0.5) > 1e-9 {
		t.Errorf("Expected orthogonal third with score 0.5, got %s score %f", results[2].ChunkID, results[2].Score)
	}
	if results[3].ChunkID != "opposite" || math.Abs(results[3].Score-0.0) > 1e-9 {
		t.Errorf("Expected opposite last with score 0.0, got %s score %f", results[3].ChunkID, results[3].Score)
	}
}

// TestMemoryVectorRepository_SearchTieOrder tests stable ordering of equal scores
func TestMemoryVectorRepository_SearchTieOrder(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	// Identical vectors produce identical scores
	records := []models.VectorRecord{
		memRecord("charlie", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("alpha", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("bravo", "doc-1", "txt", []float32{1, 0, 0}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := repo.Search(ctx, []float32{1, 0, 0}, 10, nil, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []string{"alpha", "bravo", "charlie"}
	for i, id := range want {
		if results[i].ChunkID != id {
			t.Errorf("Expected %s at position %d, got %s", id, i, results[i].ChunkID)
		}
	}
}

// TestMemoryVectorRepository_ThresholdAfterTopK tests that the score cut
// never backfills with weaker matches
func TestMemoryVectorRepository_ThresholdAfterTopK(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	// Scores: strong 1.0, medium ~0.85, weak 0.5, weakest 0.0
	records := []models.VectorRecord{
		memRecord("strong", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("medium", "doc-1", "txt", []float32{1, 1, 0}),
		memRecord("weak", "doc-1", "txt", []float32{0, 1, 0}),
		memRecord("weakest", "doc-1", "txt", []float32{-1, 0, 0}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	threshold := 0.9
	results, err := repo.Search(ctx, []float32{1, 0, 0}, 2, &threshold, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	// Top 2 are strong and medium; medium falls below 0.9 and weak must
	// not take its slot
	if len(results) != 1 {
		t.Fatalf("Expected 1 result after threshold, got %d", len(results))
	}
	if results[0].ChunkID != "strong" {
		t.Errorf("Expected strong, got %s", results[0].ChunkID)
	}
}

// TestMemoryVectorRepository_SearchFilter tests payload filtering
func TestMemoryVectorRepository_SearchFilter(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	records := []models.VectorRecord{
		memRecord("a", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("b", "doc-2", "csv", []float32{1, 0, 0}),
		memRecord("c", "doc-3", "md", []float32{1, 0, 0}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := repo.Search(ctx, []float32{1, 0, 0}, 10, nil, &models.SearchFilter{
		DocumentIDs: []string{"doc-1", "doc-2"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 results with document filter, got %d", len(results))
	}

	results, err = repo.Search(ctx, []float32{1, 0, 0}, 10, nil, &models.SearchFilter{
		FileTypes: []string{"csv"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "b" {
		t.Errorf("Expected only b with csv filter, got %v", results)
	}
}

// TestMemoryVectorRepository_DeleteByDocument tests document-scoped deletion
func TestMemoryVectorRepository_DeleteByDocument(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	records := []models.VectorRecord{
		memRecord("a", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("b", "doc-1", "txt", []float32{0, 1, 0}),
		memRecord("c", "doc-2", "txt", []float32{0, 0, 1}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	removed, err := repo.DeleteByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDocument failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("Expected 1 remaining record, got %d", count)
	}
}

// TestMemoryVectorRepository_ExportAll tests batched export ordering
func TestMemoryVectorRepository_ExportAll(t *testing.T) {
	repo := NewMemoryVectorRepository("test", 3)
	ctx := context.Background()

	records := []models.VectorRecord{
		memRecord("c", "doc-1", "txt", []float32{1, 0, 0}),
		memRecord("a", "doc-1", "txt", []float32{0, 1, 0}),
		memRecord("b", "doc-1", "txt", []float32{0, 0, 1}),
	}
	if err := repo.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	var exported []string
	batches := 0
	err := repo.ExportAll(ctx, 2, func(batch []models.VectorRecord) error {
		batches++
		for _, record := range batch {
			exported = append(exported, record.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}

	if batches != 2 {
		t.Errorf("Expected 2 batches, got %d", batches)
	}
	want := []string{"a", "b", "c"}
	if len(exported) != len(want) {
		t.Fatalf("Expected %d exported, got %d", len(want), len(exported))
	}
	for i, id := range want {
		if exported[i] != id {
			t.Errorf("Expected %s at position %d, got %s", id, i, exported[i])
		}
	}
}

// TestNormalizeCosine tests the score mapping bounds
func TestNormalizeCosine(t *testing.T) {
	cases := []struct {
		cosine float64
		want   float64
	}{
		{1.0, 1.0},
		{0.0, 0.5},
		{-1.0, 0.0},
		{0.5, 0.75},
		{1.1, 1.0},  // clamp numeric drift
		{-1.1, 0.0}, // clamp numeric drift
	}

	for _, tc := range cases {
		got := NormalizeCosine(tc.cosine)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("NormalizeCosine(%f) = %f, want %f", tc.cosine, got, tc.want)
		}
	}
}
