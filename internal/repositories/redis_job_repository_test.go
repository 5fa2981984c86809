package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/internal/models"
)

func newTestJob(id string, jobType models.JobType) *models.Job {
	return &models.Job{
		ID:         id,
		Type:       jobType,
		Status:     models.JobStatusPending,
		Priority:   1,
		MaxRetries: 3,
	}
}

func TestNewRedisJobRepository(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	repo := NewRedisJobRepository(client, 100)
	assert.NotNil(t, repo)
	assert.Equal(t, client, repo.client)
	assert.Equal(t, int64(100), repo.maxQueueSize)
}

func TestRedisJobRepository_CreateJob(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	t.Run("successful job creation", func(t *testing.T) {
		job := newTestJob("job-1", models.JobTypeDocumentIngest)
		job.Payload = map[string]interface{}{"document_id": "doc-1"}

		err := repo.CreateJob(ctx, job)
		require.NoError(t, err)

		// Verify job was stored
		retrieved, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, job.ID, retrieved.ID)
		assert.Equal(t, job.Type, retrieved.Type)
		assert.Equal(t, models.JobStatusPending, retrieved.Status)
		assert.NotZero(t, retrieved.CreatedAt)
		assert.NotZero(t, retrieved.UpdatedAt)
	})

	t.Run("duplicate job creation fails", func(t *testing.T) {
		job := newTestJob("job-dup", models.JobTypeDocumentIngest)

		err := repo.CreateJob(ctx, job)
		require.NoError(t, err)

		err = repo.CreateJob(ctx, job)
		assert.Error(t, err)
		assert.True(t, models.IsConflict(err))
	})

	t.Run("invalid job fails validation", func(t *testing.T) {
		job := newTestJob("", models.JobTypeDocumentIngest)

		err := repo.CreateJob(ctx, job)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})
}

func TestRedisJobRepository_GetJob(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	t.Run("get existing job", func(t *testing.T) {
		job := newTestJob("job-get-1", models.JobTypeDocumentDelete)
		job.Progress = 50
		job.Message = "Halfway"
		require.NoError(t, repo.CreateJob(ctx, job))

		retrieved, err := repo.GetJob(ctx, "job-get-1")
		require.NoError(t, err)
		assert.Equal(t, models.JobTypeDocumentDelete, retrieved.Type)
		assert.Equal(t, 50, retrieved.Progress)
	})

	t.Run("get non-existent job", func(t *testing.T) {
		_, err := repo.GetJob(ctx, "no-such-job")
		assert.Error(t, err)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisJobRepository_UpdateJobStatus(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	t.Run("processing sets started timestamp", func(t *testing.T) {
		job := newTestJob("job-update-1", models.JobTypeDocumentIngest)
		require.NoError(t, repo.CreateJob(ctx, job))

		err := repo.UpdateJobStatus(ctx, "job-update-1", models.JobStatusProcessing, 25, "Processing started")
		require.NoError(t, err)

		updated, err := repo.GetJob(ctx, "job-update-1")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusProcessing, updated.Status)
		assert.Equal(t, 25, updated.Progress)
		assert.Equal(t, "Processing started", updated.Message)
		assert.NotNil(t, updated.StartedAt)
	})

	t.Run("completed sets completed timestamp", func(t *testing.T) {
		job := newTestJob("job-update-2", models.JobTypeDocumentIngest)
		job.Status = models.JobStatusProcessing
		require.NoError(t, repo.CreateJob(ctx, job))

		err := repo.UpdateJobStatus(ctx, "job-update-2", models.JobStatusCompleted, 100, "Done")
		require.NoError(t, err)

		updated, err := repo.GetJob(ctx, "job-update-2")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, updated.Status)
		assert.NotNil(t, updated.CompletedAt)
	})

	t.Run("status change moves index", func(t *testing.T) {
		job := newTestJob("job-update-3", models.JobTypeDocumentIngest)
		require.NoError(t, repo.CreateJob(ctx, job))

		err := repo.UpdateJobStatus(ctx, "job-update-3", models.JobStatusFailed, 0, "broke")
		require.NoError(t, err)

		failed, err := repo.ListJobsByStatus(ctx, models.JobStatusFailed)
		require.NoError(t, err)
		found := false
		for _, j := range failed {
			if j.ID == "job-update-3" {
				found = true
			}
		}
		assert.True(t, found, "job should appear in failed status index")
	})
}

func TestRedisJobRepository_UpdateJobResult(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	job := newTestJob("job-result-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, job))

	result := (&models.IngestJobResult{
		DocumentID:    "doc-123",
		ChunkCount:    10,
		EmbeddedCount: 10,
		Success:       true,
	}).ToMap()

	err := repo.UpdateJobResult(ctx, "job-result-1", result)
	require.NoError(t, err)

	updated, err := repo.GetJob(ctx, "job-result-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-123", updated.Result["document_id"])
	assert.Equal(t, float64(10), updated.Result["chunk_count"])
	assert.True(t, updated.Result["success"].(bool))
}

func TestRedisJobRepository_DeleteJob(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	t.Run("delete existing job", func(t *testing.T) {
		job := newTestJob("job-delete-1", models.JobTypeDocumentIngest)
		require.NoError(t, repo.CreateJob(ctx, job))

		err := repo.DeleteJob(ctx, "job-delete-1")
		require.NoError(t, err)

		_, err = repo.GetJob(ctx, "job-delete-1")
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("deleting queued job drains it from the queue", func(t *testing.T) {
		job := newTestJob("job-delete-2", models.JobTypeMaintenance)
		require.NoError(t, repo.CreateJob(ctx, job))
		require.NoError(t, repo.EnqueueJob(ctx, job))

		length, err := repo.GetQueueLength(ctx, models.JobTypeMaintenance)
		require.NoError(t, err)
		assert.Equal(t, int64(1), length)

		require.NoError(t, repo.DeleteJob(ctx, "job-delete-2"))

		length, err = repo.GetQueueLength(ctx, models.JobTypeMaintenance)
		require.NoError(t, err)
		assert.Equal(t, int64(0), length)
	})

	t.Run("delete non-existent job", func(t *testing.T) {
		err := repo.DeleteJob(ctx, "non-existent-job")
		assert.Error(t, err)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestRedisJobRepository_ListJobs(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	ingest := newTestJob("job-list-1", models.JobTypeDocumentIngest)
	ingest.Tags = []string{"bulk"}
	removal := newTestJob("job-list-2", models.JobTypeDocumentDelete)
	maintenance := newTestJob("job-list-3", models.JobTypeMaintenance)
	for _, job := range []*models.Job{ingest, removal, maintenance} {
		require.NoError(t, repo.CreateJob(ctx, job))
	}
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-list-2", models.JobStatusCompleted, 100, "Done"))

	t.Run("no filter returns all", func(t *testing.T) {
		jobs, err := repo.ListJobs(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("filter by type", func(t *testing.T) {
		jobs, err := repo.ListJobs(ctx, &JobFilter{Types: []models.JobType{models.JobTypeDocumentIngest}})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-list-1", jobs[0].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		jobs, err := repo.ListJobs(ctx, &JobFilter{Statuses: []models.JobStatus{models.JobStatusCompleted}})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-list-2", jobs[0].ID)
	})

	t.Run("filter by tag", func(t *testing.T) {
		jobs, err := repo.ListJobs(ctx, &JobFilter{Tags: []string{"bulk"}})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-list-1", jobs[0].ID)
	})

	t.Run("filter by creation window", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		jobs, err := repo.ListJobs(ctx, &JobFilter{CreatedAfter: &future})
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestRedisJobRepository_GetActiveJobs(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	queued := newTestJob("job-active-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, queued))
	require.NoError(t, repo.EnqueueJob(ctx, queued))

	done := newTestJob("job-active-2", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, done))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-active-2", models.JobStatusCompleted, 100, "Done"))

	active, err := repo.GetActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "job-active-1", active[0].ID)
}

func TestRedisJobRepository_EnqueueDequeue(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	t.Run("dequeue empty queue returns nil", func(t *testing.T) {
		job, err := repo.DequeueJob(ctx, models.JobTypeDocumentIngest)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("higher priority dequeues first", func(t *testing.T) {
		low := newTestJob("job-q-low", models.JobTypeDocumentIngest)
		low.Priority = 1
		high := newTestJob("job-q-high", models.JobTypeDocumentIngest)
		high.Priority = 5

		require.NoError(t, repo.CreateJob(ctx, low))
		require.NoError(t, repo.CreateJob(ctx, high))
		require.NoError(t, repo.EnqueueJob(ctx, low))
		require.NoError(t, repo.EnqueueJob(ctx, high))

		first, err := repo.DequeueJob(ctx, models.JobTypeDocumentIngest)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "job-q-high", first.ID)
		assert.Equal(t, models.JobStatusProcessing, first.Status)

		second, err := repo.DequeueJob(ctx, models.JobTypeDocumentIngest)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.Equal(t, "job-q-low", second.ID)
	})

	t.Run("same priority dequeues oldest first", func(t *testing.T) {
		for _, id := range []string{"job-fifo-a", "job-fifo-b", "job-fifo-c"} {
			job := newTestJob(id, models.JobTypeDocumentDelete)
			job.Priority = 2
			require.NoError(t, repo.CreateJob(ctx, job))
			require.NoError(t, repo.EnqueueJob(ctx, job))
			time.Sleep(5 * time.Millisecond)
		}

		for _, want := range []string{"job-fifo-a", "job-fifo-b", "job-fifo-c"} {
			job, err := repo.DequeueJob(ctx, models.JobTypeDocumentDelete)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, want, job.ID)
		}
	})
}

func TestRedisJobRepository_QueueCapacity(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 2)
	ctx := context.Background()

	jobs := make([]*models.Job, 0, 3)
	for _, id := range []string{"job-cap-1", "job-cap-2", "job-cap-3"} {
		job := newTestJob(id, models.JobTypeDocumentIngest)
		require.NoError(t, repo.CreateJob(ctx, job))
		jobs = append(jobs, job)
	}

	require.NoError(t, repo.EnqueueJob(ctx, jobs[0]))
	require.NoError(t, repo.EnqueueJob(ctx, jobs[1]))

	err := repo.EnqueueJob(ctx, jobs[2])
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrQueueFull))
	assert.True(t, models.IsTransient(err))
	assert.Equal(t, "QUEUE_FULL", models.ErrorCode(err))

	// Queue unchanged
	length, err := repo.GetQueueLength(ctx, models.JobTypeDocumentIngest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestRedisJobRepository_RequeueFailedJobs(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	retryable := newTestJob("job-retry-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, retryable))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-retry-1", models.JobStatusFailed, 0, "transient failure"))

	exhausted := newTestJob("job-retry-2", models.JobTypeDocumentIngest)
	exhausted.RetryCount = 3
	require.NoError(t, repo.CreateJob(ctx, exhausted))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-retry-2", models.JobStatusFailed, 0, "permanent failure"))

	count, err := repo.RequeueFailedJobs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	requeued, err := repo.GetJob(ctx, "job-retry-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)

	still, err := repo.GetJob(ctx, "job-retry-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, still.Status)
}

func TestRedisJobRepository_RequeueStuckJobs(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	stuck := newTestJob("job-stuck-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, stuck))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-stuck-1", models.JobStatusProcessing, 40, "working"))

	doomed := newTestJob("job-stuck-2", models.JobTypeDocumentIngest)
	doomed.RetryCount = 3
	require.NoError(t, repo.CreateJob(ctx, doomed))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-stuck-2", models.JobStatusProcessing, 10, "working"))

	healthy := newTestJob("job-stuck-3", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, healthy))

	// Both processing jobs go quiet
	time.Sleep(20 * time.Millisecond)

	count, err := repo.RequeueStuckJobs(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	requeued, err := repo.GetJob(ctx, "job-stuck-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Nil(t, requeued.StartedAt)

	failed, err := repo.GetJob(ctx, "job-stuck-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)

	untouched, err := repo.GetJob(ctx, "job-stuck-3")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, untouched.Status)
}

func TestRedisJobRepository_SetProgress(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	job := newTestJob("job-progress-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, job))

	t.Run("valid progress", func(t *testing.T) {
		err := repo.SetProgress(ctx, "job-progress-1", 75, "Embedding chunks")
		require.NoError(t, err)

		updated, err := repo.GetJob(ctx, "job-progress-1")
		require.NoError(t, err)
		assert.Equal(t, 75, updated.Progress)
		assert.Equal(t, "Embedding chunks", updated.Message)
	})

	t.Run("out of range progress", func(t *testing.T) {
		err := repo.SetProgress(ctx, "job-progress-1", 150, "overflow")
		assert.Error(t, err)
		assert.True(t, models.IsValidation(err))
	})
}

func TestRedisJobRepository_CleanupCompletedJobs(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	job := newTestJob("job-cleanup-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, job))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-cleanup-1", models.JobStatusCompleted, 100, "Done"))

	// Too fresh with an hour-long retention
	count, err := repo.CleanupCompletedJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	time.Sleep(10 * time.Millisecond)
	count, err = repo.CleanupCompletedJobs(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.GetJob(ctx, "job-cleanup-1")
	assert.True(t, models.IsNotFound(err))
}

func TestRedisJobRepository_GetStats(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisJobRepository(client, 0)
	ctx := context.Background()

	done := newTestJob("job-stats-1", models.JobTypeDocumentIngest)
	require.NoError(t, repo.CreateJob(ctx, done))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-stats-1", models.JobStatusProcessing, 50, "working"))
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-stats-1", models.JobStatusCompleted, 100, "Done"))

	pending := newTestJob("job-stats-2", models.JobTypeMaintenance)
	require.NoError(t, repo.CreateJob(ctx, pending))

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.JobsByStatus[models.JobStatusCompleted])
	assert.Equal(t, 1, stats.JobsByStatus[models.JobStatusPending])
	assert.Equal(t, 1, stats.JobsByType[models.JobTypeDocumentIngest])
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.True(t, stats.AverageTime > 0)
}
