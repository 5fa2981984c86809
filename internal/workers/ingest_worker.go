package workers

import (
	"context"
	"fmt"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/repositories"
)

// DocumentProcessor executes a dequeued ingest job end to end, including job
// status bookkeeping. *services.DocumentService satisfies it.
type DocumentProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) error
}

// IngestWorker drains the document-ingest queue and hands each job to the
// document processor. Transient failures are re-enqueued with a delay up to
// the job's retry budget; validation failures, conflicts and user-initiated
// cancellations are final.
type IngestWorker struct {
	*BaseWorker
	jobs      repositories.JobRepository
	processor DocumentProcessor
	logger    Logger
}

// IngestWorkerConfig holds configuration and dependencies for an ingest worker
type IngestWorkerConfig struct {
	WorkerConfig WorkerConfig
	JobRepo      repositories.JobRepository
	Processor    DocumentProcessor
	Logger       Logger
}

// NewIngestWorker creates a new ingest worker
func NewIngestWorker(config IngestWorkerConfig) *IngestWorker {
	logger := config.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &IngestWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		jobs:       config.JobRepo,
		processor:  config.Processor,
		logger:     logger,
	}
}

// Start begins processing ingest jobs
func (w *IngestWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.setRunning(true)
	w.logger.Info("Starting ingest worker: %s (concurrency: %d)", w.Name(), w.config.Concurrency)

	for i := 0; i < w.config.Concurrency; i++ {
		id := i
		w.spawn(func() { w.processLoop(ctx, id) })
	}
	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight jobs
func (w *IngestWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}

	w.logger.Info("Stopping ingest worker: %s", w.Name())
	err := w.stopAndWait()
	w.logger.Info("Ingest worker stopped: %s", w.Name())
	return err
}

// processLoop continuously polls the queue for ingest jobs
func (w *IngestWorker) processLoop(ctx context.Context, workerID int) {
	name := fmt.Sprintf("%s-goroutine-%d", w.Name(), workerID)
	w.logger.Info("Worker goroutine started: %s", name)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping: %s", name)
			return

		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			job, err := w.jobs.DequeueJob(ctx, models.JobTypeDocumentIngest)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Error("Failed to dequeue job: %v", err)
				}
				continue
			}
			if job == nil {
				continue
			}

			w.processJob(ctx, job)
		}
	}
}

// processJob runs a single dequeued job through the processor
func (w *IngestWorker) processJob(ctx context.Context, job *models.Job) {
	startTime := w.recordJobStart()
	w.logger.Info("Processing job: %s (type: %s, attempt: %d/%d)", job.ID, job.Type, job.RetryCount+1, job.MaxRetries+1)

	job.WorkerID = w.Name()
	if err := w.jobs.UpdateJob(ctx, job); err != nil {
		w.logger.Warn("Failed to stamp worker id on job %s: %v", job.ID, err)
	}

	var err error
	if w.config.EnableRecovery {
		err = w.processWithRecovery(ctx, job)
	} else {
		err = w.processor.ProcessJob(ctx, job)
	}

	if err != nil {
		w.handleFailure(ctx, job, err, startTime)
		return
	}

	w.recordJobSuccess(startTime)
	w.logger.Info("Job completed: %s (duration: %v)", job.ID, time.Since(startTime))
}

// processWithRecovery wraps job processing with panic recovery
func (w *IngestWorker) processWithRecovery(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerPanicError{Panic: r}
			w.logger.Error("Panic while processing job %s: %v", job.ID, r)
		}
	}()
	return w.processor.ProcessJob(ctx, job)
}

// handleFailure decides what happens to a failed job. The processor has
// already stamped the failed status; only transient failures and jobs
// interrupted by worker shutdown go back on the queue.
func (w *IngestWorker) handleFailure(ctx context.Context, job *models.Job, jobErr error, startTime time.Time) {
	w.recordJobFailure(startTime)

	interrupted := models.IsCancelled(jobErr) && ctx.Err() != nil
	if !models.IsTransient(jobErr) && !interrupted {
		w.logger.Error("Job failed permanently: %s - %v", job.ID, jobErr)
		return
	}

	// Bookkeeping has to survive a cancelled worker context during shutdown.
	opCtx := ctx
	cancel := func() {}
	if ctx.Err() != nil {
		opCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	}
	defer cancel()

	fresh, err := w.jobs.GetJob(opCtx, job.ID)
	if err != nil {
		w.logger.Error("Failed to load job %s for retry check: %v", job.ID, err)
		return
	}

	fresh.Error = jobErr.Error()
	if !interrupted {
		fresh.RetryCount++
	}
	if err := w.jobs.UpdateJob(opCtx, fresh); err != nil {
		w.logger.Error("Failed to persist retry count for job %s: %v", fresh.ID, err)
		return
	}

	if fresh.RetryCount > fresh.MaxRetries {
		w.logger.Error("Job failed permanently after %d retries: %s - %v", fresh.MaxRetries, fresh.ID, jobErr)
		_ = w.jobs.UpdateJobStatus(opCtx, fresh.ID, models.JobStatusFailed, fresh.Progress,
			fmt.Sprintf("Failed permanently after %d retries: %v", fresh.MaxRetries, jobErr))
		return
	}

	if interrupted {
		w.logger.Warn("Job interrupted by shutdown, re-enqueueing: %s", fresh.ID)
	} else {
		w.logger.Warn("Job failed, will retry (%d/%d): %s - %v", fresh.RetryCount, fresh.MaxRetries, fresh.ID, jobErr)
		_ = w.jobs.UpdateJobStatus(opCtx, fresh.ID, models.JobStatusRetrying, fresh.Progress,
			fmt.Sprintf("Retry %d/%d after failure: %v", fresh.RetryCount, fresh.MaxRetries, jobErr))
		if w.config.RetryDelay > 0 {
			select {
			case <-time.After(w.config.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	if err := w.jobs.EnqueueJob(opCtx, fresh); err != nil {
		w.logger.Error("Failed to re-enqueue job %s: %v", fresh.ID, err)
	}
}
