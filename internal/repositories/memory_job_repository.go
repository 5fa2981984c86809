package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zerorag/internal/models"
)

// MemoryJobRepository implements JobRepository with in-process maps. It
// keeps async ingestion working when Redis is absent; queued jobs are lost
// on restart, so it suits single-node development setups.
type MemoryJobRepository struct {
	mu           sync.Mutex
	jobs         map[string]*models.Job
	queues       map[models.JobType][]queuedJob
	maxQueueSize int64
}

type queuedJob struct {
	id    string
	score float64
}

// NewMemoryJobRepository creates a new in-memory job repository.
// maxQueueSize caps each per-type queue; zero disables the cap.
func NewMemoryJobRepository(maxQueueSize int64) *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:         make(map[string]*models.Job),
		queues:       make(map[models.JobType][]queuedJob),
		maxQueueSize: maxQueueSize,
	}
}

// CreateJob creates a new job in the repository
func (r *MemoryJobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if err := job.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return models.NewConflictError("job.create", "job already exists: "+job.ID)
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	r.jobs[job.ID] = &stored

	return nil
}

// GetJob retrieves a job by ID
func (r *MemoryJobRepository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(jobID, "job.get")
}

func (r *MemoryJobRepository) getLocked(jobID, op string) (*models.Job, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, models.NewNotFoundError(op, "job not found: "+jobID)
	}
	out := *job
	return &out, nil
}

// UpdateJob updates an entire job in the repository
func (r *MemoryJobRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return models.NewNotFoundError("job.update", "job not found: "+job.ID)
	}

	job.UpdatedAt = time.Now()
	stored := *job
	r.jobs[job.ID] = &stored

	return nil
}

// UpdateJobStatus updates the status, progress, and message of a job
func (r *MemoryJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateStatusLocked(jobID, status, progress, message)
}

func (r *MemoryJobRepository) updateStatusLocked(jobID string, status models.JobStatus, progress int, message string) error {
	existing, ok := r.jobs[jobID]
	if !ok {
		return models.NewNotFoundError("job.update_status", "job not found: "+jobID)
	}

	job := *existing
	job.Status = status
	job.Progress = progress
	job.Message = message
	job.UpdatedAt = time.Now()

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

	if err := job.Validate(); err != nil {
		return err
	}

	r.jobs[jobID] = &job
	return nil
}

// UpdateJobResult updates the result field of a job
func (r *MemoryJobRepository) UpdateJobResult(ctx context.Context, jobID string, result map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.jobs[jobID]
	if !ok {
		return models.NewNotFoundError("job.update_result", "job not found: "+jobID)
	}

	job := *existing
	job.Result = result
	job.UpdatedAt = time.Now()
	r.jobs[jobID] = &job

	return nil
}

// DeleteJob removes a job from the repository
func (r *MemoryJobRepository) DeleteJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return models.NewNotFoundError("job.delete", "job not found: "+jobID)
	}

	delete(r.jobs, jobID)
	if job.Status == models.JobStatusQueued {
		r.removeFromQueueLocked(job.Type, jobID)
	}

	return nil
}

// ListJobs retrieves jobs based on filter criteria
func (r *MemoryJobRepository) ListJobs(ctx context.Context, filter *JobFilter) ([]*models.Job, error) {
	r.mu.Lock()
	jobs := make([]*models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out := *job
		jobs = append(jobs, &out)
	}
	r.mu.Unlock()

	if filter != nil {
		jobs = applyJobFilters(jobs, filter)
	}

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
func (r *MemoryJobRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return r.listWhere(func(job *models.Job) bool {
		return job.Status == status
	})
}

// ListJobsByType retrieves all jobs with a specific type
func (r *MemoryJobRepository) ListJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	return r.listWhere(func(job *models.Job) bool {
		return job.Type == jobType
	})
}

// GetActiveJobs retrieves all jobs that are currently active
func (r *MemoryJobRepository) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	return r.listWhere(func(job *models.Job) bool {
		return job.Status == models.JobStatusQueued ||
			job.Status == models.JobStatusProcessing ||
			job.Status == models.JobStatusRetrying
	})
}

func (r *MemoryJobRepository) listWhere(keep func(*models.Job) bool) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*models.Job, 0)
	for _, job := range r.jobs {
		if !keep(job) {
			continue
		}
		out := *job
		jobs = append(jobs, &out)
	}

	return jobs, nil
}

// EnqueueJob adds a job to the processing queue
func (r *MemoryJobRepository) EnqueueJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queues[job.Type]
	if r.maxQueueSize > 0 && int64(len(queue)) >= r.maxQueueSize {
		return models.NewTransientError("job.enqueue",
			fmt.Errorf("%w: %s holds %d jobs", models.ErrQueueFull, job.Type, len(queue))).
			WithCode("QUEUE_FULL")
	}

	if err := r.updateStatusLocked(job.ID, models.JobStatusQueued, 0, "Job queued for processing"); err != nil {
		return err
	}

	// Priority-major score; within a priority band earlier jobs pop first.
	score := float64(job.Priority)*1e13 + float64(1e13-time.Now().UnixMilli())
	r.queues[job.Type] = append(queue, queuedJob{id: job.ID, score: score})

	return nil
}

// DequeueJob retrieves and removes the highest-priority job from the queue
func (r *MemoryJobRepository) DequeueJob(ctx context.Context, jobType models.JobType) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queues[jobType]
	if len(queue) == 0 {
		return nil, nil // No jobs in queue
	}

	best := 0
	for i, entry := range queue {
		if entry.score > queue[best].score {
			best = i
		}
	}
	jobID := queue[best].id
	r.queues[jobType] = append(queue[:best], queue[best+1:]...)

	if err := r.updateStatusLocked(jobID, models.JobStatusProcessing, 0, "Processing started"); err != nil {
		return nil, err
	}

	return r.getLocked(jobID, "job.dequeue")
}

// RequeueFailedJobs re-queues failed jobs that haven't exceeded max retries
func (r *MemoryJobRepository) RequeueFailedJobs(ctx context.Context, maxRetries int) (int, error) {
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
func (r *MemoryJobRepository) RequeueStuckJobs(ctx context.Context, stuckAfter time.Duration) (int, error) {
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
func (r *MemoryJobRepository) GetQueueLength(ctx context.Context, jobType models.JobType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.queues[jobType])), nil
}

// SetProgress updates the progress of a job
func (r *MemoryJobRepository) SetProgress(ctx context.Context, jobID string, progress int, message string) error {
	if progress < 0 || progress > 100 {
		return models.NewValidationError("job.set_progress", "progress must be between 0 and 100")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.jobs[jobID]
	if !ok {
		return models.NewNotFoundError("job.set_progress", "job not found: "+jobID)
	}

	job := *existing
	job.Progress = progress
	job.Message = message
	job.UpdatedAt = time.Now()
	r.jobs[jobID] = &job

	return nil
}

// CleanupCompletedJobs removes completed jobs older than the specified duration
func (r *MemoryJobRepository) CleanupCompletedJobs(ctx context.Context, olderThan time.Duration) (int, error) {
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
func (r *MemoryJobRepository) CleanupFailedJobs(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	failedJobs, err := r.ListJobsByStatus(ctx, models.JobStatusFailed)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for _, job := range failedJobs {
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
func (r *MemoryJobRepository) GetStats(ctx context.Context) (*models.JobStats, error) {
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

// Ping always succeeds for the in-memory store
func (r *MemoryJobRepository) Ping(ctx context.Context) error {
	return nil
}

// Close discards all stored state
func (r *MemoryJobRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*models.Job)
	r.queues = make(map[models.JobType][]queuedJob)
	return nil
}

func (r *MemoryJobRepository) removeFromQueueLocked(jobType models.JobType, jobID string) {
	queue := r.queues[jobType]
	for i, entry := range queue {
		if entry.id == jobID {
			r.queues[jobType] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}
