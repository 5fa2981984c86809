package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/internal/models"
)

func TestMemoryDocumentRepository_RegisterAndGet(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	doc := newTestDocument("doc-1", "report.txt")
	require.NoError(t, repo.Register(ctx, doc))
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", got.Filename)

	// Mutating the returned document must not write through to the registry
	got.Filename = "changed.txt"
	again, err := repo.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", again.Filename)
}

func TestMemoryDocumentRepository_RegisterDuplicate(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, newTestDocument("doc-1", "a.txt")))
	err := repo.Register(ctx, newTestDocument("doc-1", "b.txt"))
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", models.ErrorCode(err))
}

func TestMemoryDocumentRepository_GetNotFound(t *testing.T) {
	repo := NewMemoryDocumentRepository()

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", models.ErrorCode(err))
}

func TestMemoryDocumentRepository_ListFilterAndPaginate(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		require.NoError(t, repo.Register(ctx, newTestDocument(id, id+".txt")))
	}
	require.NoError(t, repo.UpdateStatus(ctx, "doc-2", models.DocumentStatusCompleted, ""))

	completed, err := repo.List(ctx, &models.DocumentFilter{Status: models.DocumentStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "doc-2", completed[0].ID)

	page, err := repo.List(ctx, &models.DocumentFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryDocumentRepository_UpdateMovesIndexes(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	doc := newTestDocument("doc-1", "old.txt")
	doc.ContentHash = "hash-old"
	require.NoError(t, repo.Register(ctx, doc))

	require.NoError(t, repo.Update(ctx, "doc-1", map[string]interface{}{
		"filename":     "new.txt",
		"content_hash": "hash-new",
		"chunk_count":  7,
	}))

	got, err := repo.FindByFilename(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ChunkCount)

	_, err = repo.FindByFilename(ctx, "old.txt")
	assert.Error(t, err)

	byHash, err := repo.FindByContentHash(ctx, "hash-new")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", byHash.ID)

	_, err = repo.FindByContentHash(ctx, "hash-old")
	assert.Error(t, err)
}

func TestMemoryDocumentRepository_DeleteDropsProgress(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, newTestDocument("doc-1", "a.txt")))
	require.NoError(t, repo.SaveProgress(ctx, &models.UploadProgress{
		DocumentID: "doc-1",
		Progress:   40,
	}, 0))

	require.NoError(t, repo.Delete(ctx, "doc-1"))

	_, err := repo.Get(ctx, "doc-1")
	assert.Error(t, err)
	_, err = repo.GetProgress(ctx, "doc-1")
	assert.Error(t, err)
}

func TestMemoryDocumentRepository_GetBatchSkipsMissing(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, newTestDocument("doc-1", "a.txt")))

	docs, err := repo.GetBatch(ctx, []string{"doc-1", "missing"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
}

func TestMemoryDocumentRepository_GetStats(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2"} {
		require.NoError(t, repo.Register(ctx, newTestDocument(id, id+".txt")))
	}
	require.NoError(t, repo.Update(ctx, "doc-1", map[string]interface{}{
		"status":      models.DocumentStatusCompleted,
		"chunk_count": 12,
	}))

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 12, stats.TotalChunks)
	assert.Equal(t, 1, stats.ByStatus[models.DocumentStatusCompleted])
	assert.Equal(t, 2, stats.ByFileType["txt"])
	require.NotNil(t, stats.LastIngestedAt)
}

func TestMemoryDocumentRepository_ProgressExpiry(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveProgress(ctx, &models.UploadProgress{
		DocumentID: "doc-ttl",
		Progress:   10,
		LastUpdate: time.Now(),
	}, 10*time.Millisecond))

	got, err := repo.GetProgress(ctx, "doc-ttl")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Progress)

	time.Sleep(25 * time.Millisecond)

	_, err = repo.GetProgress(ctx, "doc-ttl")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", models.ErrorCode(err))

	records, err := repo.ListProgress(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryDocumentRepository_Cleanup(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, newTestDocument("doc-failed", "f.txt")))
	require.NoError(t, repo.UpdateStatus(ctx, "doc-failed", models.DocumentStatusFailed, "parse error"))
	require.NoError(t, repo.Register(ctx, newTestDocument("doc-ok", "ok.txt")))
	require.NoError(t, repo.UpdateStatus(ctx, "doc-ok", models.DocumentStatusCompleted, ""))

	// Backdate the failed document past the retention cutoff
	repo.mu.Lock()
	repo.documents["doc-failed"].LastModified = time.Now().Add(-48 * time.Hour)
	repo.mu.Unlock()

	removed, err := repo.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "doc-failed")
	assert.Error(t, err)
	_, err = repo.Get(ctx, "doc-ok")
	assert.NoError(t, err)
}
