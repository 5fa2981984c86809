package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/internal/models"
)

func setupTestRedis(t *testing.T) *redis.Client {
	if testing.Short() {
		t.Skip("Skipping Redis-backed test in short mode")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use separate DB for testing
	})

	// Ping to ensure connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at localhost:6379: %v", err)
	}

	// Flush test database
	err := client.FlushDB(context.Background()).Err()
	require.NoError(t, err)

	return client
}

func newTestDocument(id, filename string) *models.Document {
	return &models.Document{
		ID:       id,
		Filename: filename,
		FileSize: 2048,
		FileType: "txt",
		Encoding: "utf-8",
		Status:   models.DocumentStatusPending,
	}
}

func TestNewRedisDocumentRepository(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	repo := NewRedisDocumentRepository(client)
	assert.NotNil(t, repo)
	assert.Equal(t, client, repo.client)
}

func TestRedisDocumentRepository_Register(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	t.Run("successful registration", func(t *testing.T) {
		doc := newTestDocument("doc-1", "notes.txt")
		doc.ContentHash = "hash-1"

		err := repo.Register(ctx, doc)
		require.NoError(t, err)

		// Verify document was stored
		retrieved, err := repo.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, retrieved.ID)
		assert.Equal(t, doc.Filename, retrieved.Filename)
		assert.Equal(t, models.DocumentStatusPending, retrieved.Status)
		assert.NotZero(t, retrieved.CreatedAt)
		assert.NotZero(t, retrieved.LastModified)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		doc := newTestDocument("doc-dup", "dup.txt")

		err := repo.Register(ctx, doc)
		require.NoError(t, err)

		err = repo.Register(ctx, doc)
		assert.Error(t, err)
		assert.True(t, models.IsConflict(err))
	})

	t.Run("invalid document fails validation", func(t *testing.T) {
		doc := newTestDocument("", "orphan.txt")

		err := repo.Register(ctx, doc)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})
}

func TestRedisDocumentRepository_Get(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	t.Run("get existing document", func(t *testing.T) {
		doc := newTestDocument("doc-get-1", "report.md")
		doc.FileType = "md"
		require.NoError(t, repo.Register(ctx, doc))

		retrieved, err := repo.Get(ctx, "doc-get-1")
		require.NoError(t, err)
		assert.Equal(t, "report.md", retrieved.Filename)
		assert.Equal(t, "md", retrieved.FileType)
	})

	t.Run("get non-existent document", func(t *testing.T) {
		_, err := repo.Get(ctx, "no-such-doc")
		assert.Error(t, err)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisDocumentRepository_List(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	// Seed documents with distinct creation times
	seed := []*models.Document{
		newTestDocument("doc-a", "alpha.txt"),
		newTestDocument("doc-b", "bravo.csv"),
		newTestDocument("doc-c", "charlie.md"),
	}
	seed[1].FileType = "csv"
	seed[2].FileType = "md"
	for _, doc := range seed {
		require.NoError(t, repo.Register(ctx, doc))
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, repo.UpdateStatus(ctx, "doc-b", models.DocumentStatusCompleted, ""))

	t.Run("list all newest first", func(t *testing.T) {
		docs, err := repo.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "doc-c", docs[0].ID)
		assert.Equal(t, "doc-a", docs[2].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		docs, err := repo.List(ctx, &models.DocumentFilter{Status: models.DocumentStatusCompleted})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc-b", docs[0].ID)
	})

	t.Run("filter by file type", func(t *testing.T) {
		docs, err := repo.List(ctx, &models.DocumentFilter{FileType: "md"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc-c", docs[0].ID)
	})

	t.Run("search by filename substring", func(t *testing.T) {
		docs, err := repo.List(ctx, &models.DocumentFilter{Search: "ALPHA"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc-a", docs[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		docs, err := repo.List(ctx, &models.DocumentFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "doc-b", docs[0].ID)
		assert.Equal(t, "doc-a", docs[1].ID)
	})
}

func TestRedisDocumentRepository_Update(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	t.Run("update fields", func(t *testing.T) {
		doc := newTestDocument("doc-upd-1", "stats.txt")
		require.NoError(t, repo.Register(ctx, doc))

		err := repo.Update(ctx, "doc-upd-1", map[string]interface{}{
			"word_count":  120,
			"char_count":  740,
			"chunk_count": 3,
			"language":    "en",
		})
		require.NoError(t, err)

		updated, err := repo.Get(ctx, "doc-upd-1")
		require.NoError(t, err)
		assert.Equal(t, 120, updated.WordCount)
		assert.Equal(t, 740, updated.CharCount)
		assert.Equal(t, 3, updated.ChunkCount)
		assert.Equal(t, "en", updated.Language)
	})

	t.Run("status change moves index", func(t *testing.T) {
		doc := newTestDocument("doc-upd-2", "moving.txt")
		require.NoError(t, repo.Register(ctx, doc))

		err := repo.Update(ctx, "doc-upd-2", map[string]interface{}{
			"status": models.DocumentStatusCompleted,
		})
		require.NoError(t, err)

		completed, err := repo.ListByStatus(ctx, models.DocumentStatusCompleted)
		require.NoError(t, err)
		found := false
		for _, d := range completed {
			if d.ID == "doc-upd-2" {
				found = true
			}
		}
		assert.True(t, found, "document should appear in completed status index")

		pending, err := repo.ListByStatus(ctx, models.DocumentStatusPending)
		require.NoError(t, err)
		for _, d := range pending {
			assert.NotEqual(t, "doc-upd-2", d.ID, "document should leave pending status index")
		}
	})

	t.Run("content hash becomes findable", func(t *testing.T) {
		doc := newTestDocument("doc-upd-3", "hashed.txt")
		require.NoError(t, repo.Register(ctx, doc))

		err := repo.Update(ctx, "doc-upd-3", map[string]interface{}{
			"content_hash": "sha256-abc",
		})
		require.NoError(t, err)

		byHash, err := repo.FindByContentHash(ctx, "sha256-abc")
		require.NoError(t, err)
		assert.Equal(t, "doc-upd-3", byHash.ID)
	})

	t.Run("update non-existent document", func(t *testing.T) {
		err := repo.Update(ctx, "ghost", map[string]interface{}{"word_count": 1})
		assert.Error(t, err)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisDocumentRepository_UpdateStatus(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	doc := newTestDocument("doc-status-1", "failing.txt")
	require.NoError(t, repo.Register(ctx, doc))

	err := repo.UpdateStatus(ctx, "doc-status-1", models.DocumentStatusFailed, "parser gave up")
	require.NoError(t, err)

	updated, err := repo.Get(ctx, "doc-status-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusFailed, updated.Status)
	assert.Equal(t, "parser gave up", updated.ErrorMessage)
}

func TestRedisDocumentRepository_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	t.Run("delete removes document and indexes", func(t *testing.T) {
		doc := newTestDocument("doc-del-1", "gone.txt")
		doc.ContentHash = "hash-del"
		require.NoError(t, repo.Register(ctx, doc))

		err := repo.Delete(ctx, "doc-del-1")
		require.NoError(t, err)

		_, err = repo.Get(ctx, "doc-del-1")
		assert.True(t, models.IsNotFound(err))

		_, err = repo.FindByFilename(ctx, "gone.txt")
		assert.True(t, models.IsNotFound(err))

		_, err = repo.FindByContentHash(ctx, "hash-del")
		assert.True(t, models.IsNotFound(err))

		count, err := repo.CountTotal(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("delete non-existent document", func(t *testing.T) {
		err := repo.Delete(ctx, "never-was")
		assert.Error(t, err)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisDocumentRepository_Exists(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	doc := newTestDocument("doc-exists-1", "here.txt")
	require.NoError(t, repo.Register(ctx, doc))

	exists, err := repo.Exists(ctx, "doc-exists-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "doc-missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisDocumentRepository_GetBatch(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, newTestDocument("doc-batch-1", "one.txt")))
	require.NoError(t, repo.Register(ctx, newTestDocument("doc-batch-2", "two.txt")))

	// Missing IDs are skipped, not errors
	docs, err := repo.GetBatch(ctx, []string{"doc-batch-1", "doc-batch-missing", "doc-batch-2"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestRedisDocumentRepository_FindByFilename(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	doc := newTestDocument("doc-name-1", "unique-name.csv")
	doc.FileType = "csv"
	require.NoError(t, repo.Register(ctx, doc))

	found, err := repo.FindByFilename(ctx, "unique-name.csv")
	require.NoError(t, err)
	assert.Equal(t, "doc-name-1", found.ID)

	_, err = repo.FindByFilename(ctx, "nobody.csv")
	assert.True(t, models.IsNotFound(err))
}

func TestRedisDocumentRepository_GetStats(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	docA := newTestDocument("doc-stats-a", "a.txt")
	docA.ChunkCount = 4
	docB := newTestDocument("doc-stats-b", "b.md")
	docB.FileType = "md"
	docB.ChunkCount = 2
	require.NoError(t, repo.Register(ctx, docA))
	require.NoError(t, repo.Register(ctx, docB))
	require.NoError(t, repo.UpdateStatus(ctx, "doc-stats-a", models.DocumentStatusCompleted, ""))

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 6, stats.TotalChunks)
	assert.Equal(t, int64(4096), stats.TotalBytes)
	assert.Equal(t, 1, stats.ByStatus[models.DocumentStatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[models.DocumentStatusPending])
	assert.Equal(t, 1, stats.ByFileType["md"])
	assert.NotNil(t, stats.LastIngestedAt)
}

func TestRedisDocumentRepository_Progress(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	t.Run("save and get progress", func(t *testing.T) {
		progress := &models.UploadProgress{
			DocumentID:  "doc-prog-1",
			Filename:    "big.csv",
			FileSize:    1 << 20,
			Status:      models.DocumentStatusChunking,
			Progress:    60,
			CurrentStep: "Splitting into chunks",
			StartedAt:   time.Now().Add(-5 * time.Second),
			LastUpdate:  time.Now(),
		}

		err := repo.SaveProgress(ctx, progress, time.Minute)
		require.NoError(t, err)

		retrieved, err := repo.GetProgress(ctx, "doc-prog-1")
		require.NoError(t, err)
		assert.Equal(t, 60, retrieved.Progress)
		assert.Equal(t, models.DocumentStatusChunking, retrieved.Status)
		assert.Equal(t, "Splitting into chunks", retrieved.CurrentStep)

		// TTL should be set
		ttl, err := client.TTL(ctx, "progress:doc-prog-1").Result()
		require.NoError(t, err)
		assert.True(t, ttl > 0 && ttl <= time.Minute)
	})

	t.Run("get missing progress", func(t *testing.T) {
		_, err := repo.GetProgress(ctx, "doc-prog-missing")
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("list progress newest update first", func(t *testing.T) {
		older := &models.UploadProgress{
			DocumentID: "doc-prog-old",
			Filename:   "old.txt",
			Status:     models.DocumentStatusParsing,
			Progress:   40,
			LastUpdate: time.Now().Add(-time.Minute),
		}
		newer := &models.UploadProgress{
			DocumentID: "doc-prog-new",
			Filename:   "new.txt",
			Status:     models.DocumentStatusEmbedding,
			Progress:   80,
			LastUpdate: time.Now(),
		}
		require.NoError(t, repo.SaveProgress(ctx, older, time.Minute))
		require.NoError(t, repo.SaveProgress(ctx, newer, time.Minute))

		all, err := repo.ListProgress(ctx)
		require.NoError(t, err)
		require.True(t, len(all) >= 2)
		assert.Equal(t, "doc-prog-new", all[0].DocumentID)
	})

	t.Run("delete progress", func(t *testing.T) {
		progress := &models.UploadProgress{
			DocumentID: "doc-prog-del",
			Filename:   "del.txt",
			Status:     models.DocumentStatusPending,
			Progress:   10,
			LastUpdate: time.Now(),
		}
		require.NoError(t, repo.SaveProgress(ctx, progress, time.Minute))
		require.NoError(t, repo.DeleteProgress(ctx, "doc-prog-del"))

		_, err := repo.GetProgress(ctx, "doc-prog-del")
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisDocumentRepository_Cleanup(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	stale := newTestDocument("doc-clean-1", "stale.txt")
	require.NoError(t, repo.Register(ctx, stale))
	require.NoError(t, repo.UpdateStatus(ctx, "doc-clean-1", models.DocumentStatusDeleted, ""))

	fresh := newTestDocument("doc-clean-2", "fresh.txt")
	require.NoError(t, repo.Register(ctx, fresh))
	require.NoError(t, repo.UpdateStatus(ctx, "doc-clean-2", models.DocumentStatusFailed, "boom"))

	active := newTestDocument("doc-clean-3", "active.txt")
	require.NoError(t, repo.Register(ctx, active))

	// With an hour-long retention the terminal docs were modified too
	// recently to qualify; with a nanosecond retention both go.
	count, err := repo.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	time.Sleep(10 * time.Millisecond)
	count, err = repo.Cleanup(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	remaining, err := repo.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "doc-clean-3", remaining[0].ID)
}
