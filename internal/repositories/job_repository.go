package repositories

import (
	"context"
	"time"

	"zerorag/internal/models"
)

// JobRepository defines the interface for job queue operations.
// This manages background job processing for long-running tasks like
// document ingestion.
type JobRepository interface {
	// Job Management
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, message string) error
	UpdateJobResult(ctx context.Context, jobID string, result map[string]interface{}) error
	DeleteJob(ctx context.Context, jobID string) error

	// Job Queries
	ListJobs(ctx context.Context, filter *JobFilter) ([]*models.Job, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	ListJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
	GetActiveJobs(ctx context.Context) ([]*models.Job, error)

	// Job Queue Operations
	EnqueueJob(ctx context.Context, job *models.Job) error
	DequeueJob(ctx context.Context, jobType models.JobType) (*models.Job, error)
	RequeueFailedJobs(ctx context.Context, maxRetries int) (int, error)
	RequeueStuckJobs(ctx context.Context, stuckAfter time.Duration) (int, error)
	GetQueueLength(ctx context.Context, jobType models.JobType) (int64, error)

	// Job Progress
	SetProgress(ctx context.Context, jobID string, progress int, message string) error

	// Cleanup and Stats
	CleanupCompletedJobs(ctx context.Context, olderThan time.Duration) (int, error)
	CleanupFailedJobs(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error)
	GetStats(ctx context.Context) (*models.JobStats, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// JobFilter represents filtering criteria for job queries
type JobFilter struct {
	Types         []models.JobType   `json:"types,omitempty"`
	Statuses      []models.JobStatus `json:"statuses,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
	Limit         int                `json:"limit,omitempty"`
	Offset        int                `json:"offset,omitempty"`
}
