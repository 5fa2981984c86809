package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zerorag/internal/models"
)

const (
	// Redis key prefixes for jobs
	jobKeyPrefix       = "job:"
	jobIndexKey        = "jobs:index"
	jobQueuePrefix     = "job:queue:"
	jobTypeIndexPrefix = "job:type:"
	jobStatusPrefix    = "job:status:"
)

// RedisJobRepository implements JobRepository using Redis
type RedisJobRepository struct {
	client       *redis.Client
	maxQueueSize int64
}

// NewRedisJobRepository creates a new Redis-based job repository.
// maxQueueSize caps each per-type queue; zero disables the cap.
func NewRedisJobRepository(client *redis.Client, maxQueueSize int64) *RedisJobRepository {
	return &RedisJobRepository{
		client:       client,
		maxQueueSize: maxQueueSize,
	}
}

// CreateJob creates a new job in the repository
func (r *RedisJobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	// Default status if not set
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	if err := job.Validate(); err != nil {
		return err
	}

	// Check if job already exists
	exists, err := r.jobExists(ctx, job.ID)
	if err != nil {
		return err
	}
	if exists {
		return models.NewConflictError("job.create", "job already exists: "+job.ID)
	}

	// Set timestamps
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	// Use transaction for atomicity
	pipe := r.client.TxPipeline()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return models.NewInternalError("job.create", err)
	}

	// Store job
	pipe.Set(ctx, jobKeyPrefix+job.ID, jobJSON, 0)

	// Add to global index
	pipe.SAdd(ctx, jobIndexKey, job.ID)

	// Add to type index
	pipe.SAdd(ctx, jobTypeIndexPrefix+string(job.Type), job.ID)

	// Add to status index
	pipe.SAdd(ctx, jobStatusPrefix+string(job.Status), job.ID)

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("job.create", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *RedisJobRepository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	jobJSON, err := r.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("job.get", "job not found: "+jobID)
	}
	if err != nil {
		return nil, models.NewTransientError("job.get", err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
		return nil, models.NewInternalError("job.get", err)
	}

	return &job, nil
}

// UpdateJob updates an entire job in the repository
func (r *RedisJobRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	// The old status index entry has to move when the status changed
	existing, err := r.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}

	job.UpdatedAt = time.Now()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return models.NewInternalError("job.update", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, jobJSON, 0)

	if existing.Status != job.Status {
		pipe.SRem(ctx, jobStatusPrefix+string(existing.Status), job.ID)
		pipe.SAdd(ctx, jobStatusPrefix+string(job.Status), job.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("job.update", err)
	}

	return nil
}

// UpdateJobStatus updates the status, progress, and message of a job
func (r *RedisJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, message string) error {
	// Get existing job
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	oldStatus := job.Status

	// Update fields
	job.Status = status
	job.Progress = progress
	job.Message = message
	job.UpdatedAt = time.Now()

	// Update timestamps based on status
	now := time.Now()
	switch status {
	case models.JobStatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
	}

	// Validate
	if err := job.Validate(); err != nil {
		return err
	}

	// Use transaction
	pipe := r.client.TxPipeline()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return models.NewInternalError("job.update_status", err)
	}

	// Update job
	pipe.Set(ctx, jobKeyPrefix+jobID, jobJSON, 0)

	// Update status index if changed
	if oldStatus != status {
		pipe.SRem(ctx, jobStatusPrefix+string(oldStatus), jobID)
		pipe.SAdd(ctx, jobStatusPrefix+string(status), jobID)
	}

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("job.update_status", err)
	}

	return nil
}

// UpdateJobResult updates the result field of a job
func (r *RedisJobRepository) UpdateJobResult(ctx context.Context, jobID string, result map[string]interface{}) error {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Result = result
	job.UpdatedAt = time.Now()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return models.NewInternalError("job.update_result", err)
	}

	if err := r.client.Set(ctx, jobKeyPrefix+jobID, jobJSON, 0).Err(); err != nil {
		return models.NewTransientError("job.update_result", err)
	}

	return nil
}

// DeleteJob removes a job from the repository
func (r *RedisJobRepository) DeleteJob(ctx context.Context, jobID string) error {
	// Get job to access metadata for index cleanup
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Use transaction
	pipe := r.client.TxPipeline()

	// Delete job
	pipe.Del(ctx, jobKeyPrefix+jobID)

	// Remove from indexes
	pipe.SRem(ctx, jobIndexKey, jobID)
	pipe.SRem(ctx, jobTypeIndexPrefix+string(job.Type), jobID)
	pipe.SRem(ctx, jobStatusPrefix+string(job.Status), jobID)

	// Remove from queue if queued
	if job.Status == models.JobStatusQueued {
		pipe.ZRem(ctx, jobQueuePrefix+string(job.Type), jobID)
	}

	// Execute transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewTransientError("job.delete", err)
	}

	return nil
}

// ListJobs retrieves jobs based on filter criteria
func (r *RedisJobRepository) ListJobs(ctx context.Context, filter *JobFilter) ([]*models.Job, error) {
	var jobIDs []string
	var err error

	if filter != nil && len(filter.Statuses) > 0 {
		// Narrow by status indexes first
		for _, status := range filter.Statuses {
			ids, err := r.client.SMembers(ctx, jobStatusPrefix+string(status)).Result()
			if err != nil {
				return nil, models.NewTransientError("job.list", err)
			}
			jobIDs = append(jobIDs, ids...)
		}
	} else if filter != nil && len(filter.Types) > 0 {
		// Narrow by type indexes
		for _, jobType := range filter.Types {
			ids, err := r.client.SMembers(ctx, jobTypeIndexPrefix+string(jobType)).Result()
			if err != nil {
				return nil, models.NewTransientError("job.list", err)
			}
			jobIDs = append(jobIDs, ids...)
		}
	} else {
		jobIDs, err = r.client.SMembers(ctx, jobIndexKey).Result()
		if err != nil {
			return nil, models.NewTransientError("job.list", err)
		}
	}

	if len(jobIDs) == 0 {
		return []*models.Job{}, nil
	}

	jobs, err := r.getBatch(ctx, jobIDs)
	if err != nil {
		return nil, err
	}

	// Apply the remaining filters in memory
	if filter != nil {
		jobs = applyJobFilters(jobs, filter)
	}

	// Apply pagination
	if filter != nil && filter.Limit > 0 {
		offset := filter.Offset
		if offset >= len(jobs) {
			return []*models.Job{}, nil
		}
		end := offset + filter.Limit
		if end > len(jobs) {
			end = len(jobs)
		}
		jobs = jobs[offset:end]
	}

	return jobs, nil
}

// ListJobsByStatus retrieves all jobs with a specific status
func (r *RedisJobRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	jobIDs, err := r.client.SMembers(ctx, jobStatusPrefix+string(status)).Result()
	if err != nil {
		return nil, models.NewTransientError("job.list_by_status", err)
	}

	if len(jobIDs) == 0 {
		return []*models.Job{}, nil
	}

	return r.getBatch(ctx, jobIDs)
}

// ListJobsByType retrieves all jobs with a specific type
func (r *RedisJobRepository) ListJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	jobIDs, err := r.client.SMembers(ctx, jobTypeIndexPrefix+string(jobType)).Result()
	if err != nil {
		return nil, models.NewTransientError("job.list_by_type", err)
	}

	if len(jobIDs) == 0 {
		return []*models.Job{}, nil
	}

	return r.getBatch(ctx, jobIDs)
}

// GetActiveJobs retrieves all jobs that are currently active
func (r *RedisJobRepository) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	activeStatuses := []models.JobStatus{models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusRetrying}
	var allJobIDs []string

	for _, status := range activeStatuses {
		jobIDs, err := r.client.SMembers(ctx, jobStatusPrefix+string(status)).Result()
		if err != nil {
			return nil, models.NewTransientError("job.get_active", err)
		}
		allJobIDs = append(allJobIDs, jobIDs...)
	}

	if len(allJobIDs) == 0 {
		return []*models.Job{}, nil
	}

	return r.getBatch(ctx, allJobIDs)
}

// EnqueueJob adds a job to the processing queue
func (r *RedisJobRepository) EnqueueJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	queueKey := jobQueuePrefix + string(job.Type)

	// Refuse when the queue is at capacity
	if r.maxQueueSize > 0 {
		length, err := r.client.ZCard(ctx, queueKey).Result()
		if err != nil {
			return models.NewTransientError("job.enqueue", err)
		}
		if length >= r.maxQueueSize {
			return models.NewTransientError("job.enqueue",
				fmt.Errorf("%w: %s holds %d jobs", models.ErrQueueFull, queueKey, length)).
				WithCode("QUEUE_FULL")
		}
	}

	// Update job status to queued
	if err := r.UpdateJobStatus(ctx, job.ID, models.JobStatusQueued, 0, "Job queued for processing"); err != nil {
		return err
	}

	// Priority-major score; within a priority band earlier jobs pop first.
	// Both terms stay well below 2^53 so the float64 score is exact.
	score := float64(job.Priority)*1e13 + float64(1e13-time.Now().UnixMilli())

	err := r.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  score,
		Member: job.ID,
	}).Err()
	if err != nil {
		return models.NewTransientError("job.enqueue", err)
	}

	return nil
}

// DequeueJob retrieves and removes the next job from the queue
func (r *RedisJobRepository) DequeueJob(ctx context.Context, jobType models.JobType) (*models.Job, error) {
	queueKey := jobQueuePrefix + string(jobType)

	// Get highest priority job (ZPOPMAX gets highest score)
	result, err := r.client.ZPopMax(ctx, queueKey, 1).Result()
	if err != nil {
		return nil, models.NewTransientError("job.dequeue", err)
	}

	if len(result) == 0 {
		return nil, nil // No jobs in queue
	}

	jobID, ok := result[0].Member.(string)
	if !ok {
		return nil, models.NewInternalError("job.dequeue", fmt.Errorf("invalid job ID in queue: %v", result[0].Member))
	}

	// Mark it processing before handing it to the worker
	if err := r.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing, 0, "Processing started"); err != nil {
		return nil, err
	}

	return r.GetJob(ctx, jobID)
}

// RequeueFailedJobs re-queues failed jobs that haven't exceeded max retries
func (r *RedisJobRepository) RequeueFailedJobs(ctx context.Context, maxRetries int) (int, error) {
	failedJobs, err := r.ListJobsByStatus(ctx, models.JobStatusFailed)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range failedJobs {
		if job.RetryCount >= maxRetries {
			continue
		}

		job.RetryCount++
		if err := r.UpdateJob(ctx, job); err != nil {
			continue
		}
		if err := r.UpdateJobStatus(ctx, job.ID, models.JobStatusRetrying, 0,
			fmt.Sprintf("Retry attempt %d/%d", job.RetryCount, maxRetries)); err != nil {
			continue
		}
		if err := r.EnqueueJob(ctx, job); err != nil {
			continue
		}

		count++
	}

	return count, nil
}

// RequeueStuckJobs recovers jobs whose worker died mid-processing. A job
// counts as stuck once its last update is older than stuckAfter.
func (r *RedisJobRepository) RequeueStuckJobs(ctx context.Context, stuckAfter time.Duration) (int, error) {
	processingJobs, err := r.ListJobsByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-stuckAfter)
	count := 0

	for _, job := range processingJobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		if job.RetryCount >= job.MaxRetries {
			_ = r.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, job.Progress,
				"Abandoned after worker went silent")
			continue
		}

		job.RetryCount++
		job.WorkerID = ""
		job.StartedAt = nil
		if err := r.UpdateJob(ctx, job); err != nil {
			continue
		}
		if err := r.EnqueueJob(ctx, job); err != nil {
			continue
		}

		count++
	}

	return count, nil
}

// GetQueueLength returns the number of jobs in a specific queue
func (r *RedisJobRepository) GetQueueLength(ctx context.Context, jobType models.JobType) (int64, error) {
	length, err := r.client.ZCard(ctx, jobQueuePrefix+string(jobType)).Result()
	if err != nil {
		return 0, models.NewTransientError("job.queue_length", err)
	}
	return length, nil
}

// SetProgress updates the progress of a job
func (r *RedisJobRepository) SetProgress(ctx context.Context, jobID string, progress int, message string) error {
	if progress < 0 || progress > 100 {
		return models.NewValidationError("job.set_progress", "progress must be between 0 and 100")
	}

	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.Message = message
	job.UpdatedAt = time.Now()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return models.NewInternalError("job.set_progress", err)
	}

	if err := r.client.Set(ctx, jobKeyPrefix+jobID, jobJSON, 0).Err(); err != nil {
		return models.NewTransientError("job.set_progress", err)
	}

	return nil
}

// CleanupCompletedJobs removes completed jobs older than the specified duration
func (r *RedisJobRepository) CleanupCompletedJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	completedJobs, err := r.ListJobsByStatus(ctx, models.JobStatusCompleted)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for _, job := range completedJobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			if err := r.DeleteJob(ctx, job.ID); err != nil {
				continue
			}
			count++
		}
	}

	return count, nil
}

// CleanupFailedJobs removes failed jobs older than the specified duration
func (r *RedisJobRepository) CleanupFailedJobs(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	failedJobs, err := r.ListJobsByStatus(ctx, models.JobStatusFailed)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for _, job := range failedJobs {
		// Only cleanup if exceeded max retries and old enough
		if job.RetryCount >= maxRetries && job.UpdatedAt.Before(cutoff) {
			if err := r.DeleteJob(ctx, job.ID); err != nil {
				continue
			}
			count++
		}
	}

	return count, nil
}

// GetStats returns statistics about jobs
func (r *RedisJobRepository) GetStats(ctx context.Context) (*models.JobStats, error) {
	allJobs, err := r.ListJobs(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &models.JobStats{
		TotalJobs:    len(allJobs),
		JobsByStatus: make(map[models.JobStatus]int),
		JobsByType:   make(map[models.JobType]int),
	}

	var totalDuration time.Duration
	successCount := 0
	activeWorkers := make(map[string]bool)

	for _, job := range allJobs {
		stats.JobsByStatus[job.Status]++
		stats.JobsByType[job.Type]++

		if job.Status == models.JobStatusCompleted {
			successCount++
			totalDuration += job.Duration()
		}

		if job.Status == models.JobStatusProcessing && job.WorkerID != "" {
			activeWorkers[job.WorkerID] = true
		}
	}

	if successCount > 0 {
		stats.AverageTime = totalDuration / time.Duration(successCount)
	}
	if len(allJobs) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(allJobs))
	}
	stats.ActiveWorkers = len(activeWorkers)

	return stats, nil
}

// Ping checks if Redis connection is alive
func (r *RedisJobRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisJobRepository) Close() error {
	return r.client.Close()
}

// Helper methods

// jobExists checks if a job exists
func (r *RedisJobRepository) jobExists(ctx context.Context, jobID string) (bool, error) {
	exists, err := r.client.Exists(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		return false, models.NewTransientError("job.exists", err)
	}
	return exists > 0, nil
}

// getBatch retrieves multiple jobs by IDs
func (r *RedisJobRepository) getBatch(ctx context.Context, jobIDs []string) ([]*models.Job, error) {
	if len(jobIDs) == 0 {
		return []*models.Job{}, nil
	}

	// Use pipeline for batch get
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(jobIDs))
	for i, id := range jobIDs {
		cmds[i] = pipe.Get(ctx, jobKeyPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, models.NewTransientError("job.get_batch", err)
	}

	// Parse results
	jobs := make([]*models.Job, 0, len(jobIDs))
	for _, cmd := range cmds {
		jobJSON, err := cmd.Result()
		if err == redis.Nil {
			// Skip missing jobs
			continue
		}
		if err != nil {
			return nil, models.NewTransientError("job.get_batch", err)
		}

		var job models.Job
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			return nil, models.NewInternalError("job.get_batch", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}

// applyJobFilters applies the in-memory portion of a job filter
func applyJobFilters(jobs []*models.Job, filter *JobFilter) []*models.Job {
	filtered := make([]*models.Job, 0, len(jobs))

	for _, job := range jobs {
		// Check types
		if len(filter.Types) > 0 && !containsJobType(filter.Types, job.Type) {
			continue
		}

		// Check statuses
		if len(filter.Statuses) > 0 && !containsJobStatus(filter.Statuses, job.Status) {
			continue
		}

		// Check tags
		if len(filter.Tags) > 0 {
			matched := false
			for _, filterTag := range filter.Tags {
				for _, jobTag := range job.Tags {
					if filterTag == jobTag {
						matched = true
						break
					}
				}
				if matched {
					break
				}
			}
			if !matched {
				continue
			}
		}

		// Check creation window
		if filter.CreatedAfter != nil && job.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if filter.CreatedBefore != nil && job.CreatedAt.After(*filter.CreatedBefore) {
			continue
		}

		filtered = append(filtered, job)
	}

	return filtered
}

func containsJobType(types []models.JobType, target models.JobType) bool {
	for _, t := range types {
		if t == target {
			return true
		}
	}
	return false
}

func containsJobStatus(statuses []models.JobStatus, target models.JobStatus) bool {
	for _, s := range statuses {
		if s == target {
			return true
		}
	}
	return false
}
