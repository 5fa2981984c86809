package workers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/repositories"
)

// QueueMonitor receives queue depth measurements so saturation alerts fire
// from one place. *services.PerformanceMonitor satisfies it.
type QueueMonitor interface {
	RecordQueueDepth(depth int)
}

// MaintenanceWorker runs periodic housekeeping: requeues jobs abandoned by
// dead workers, prunes terminal jobs and documents past retention, sweeps
// orphaned upload files and reports queue depth.
type MaintenanceWorker struct {
	*BaseWorker
	jobs      repositories.JobRepository
	documents repositories.DocumentRepository
	monitor   QueueMonitor
	logger    Logger

	uploadDir  string
	interval   time.Duration
	retention  time.Duration
	stuckAfter time.Duration
}

// MaintenanceWorkerConfig holds configuration and dependencies for the
// maintenance worker
type MaintenanceWorkerConfig struct {
	WorkerConfig WorkerConfig
	JobRepo      repositories.JobRepository
	DocumentRepo repositories.DocumentRepository
	Monitor      QueueMonitor
	Logger       Logger

	UploadDir  string
	Interval   time.Duration
	Retention  time.Duration
	StuckAfter time.Duration
}

// NewMaintenanceWorker creates a new maintenance worker
func NewMaintenanceWorker(config MaintenanceWorkerConfig) *MaintenanceWorker {
	logger := config.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	interval := config.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MaintenanceWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		jobs:       config.JobRepo,
		documents:  config.DocumentRepo,
		monitor:    config.Monitor,
		logger:     logger,
		uploadDir:  config.UploadDir,
		interval:   interval,
		retention:  config.Retention,
		stuckAfter: config.StuckAfter,
	}
}

// Start begins the maintenance loop
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.setRunning(true)
	w.logger.Info("Starting maintenance worker: %s (interval: %v)", w.Name(), w.interval)
	w.spawn(func() { w.loop(ctx) })
	return nil
}

// Stop gracefully shuts down the worker
func (w *MaintenanceWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}

	w.logger.Info("Stopping maintenance worker: %s", w.Name())
	err := w.stopAndWait()
	w.logger.Info("Maintenance worker stopped: %s", w.Name())
	return err
}

func (w *MaintenanceWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.IsRunning() {
				return
			}
			w.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full maintenance pass. It is exported so the
// maintenance endpoint can trigger housekeeping on demand.
func (w *MaintenanceWorker) RunCycle(ctx context.Context) {
	start := w.recordJobStart()

	requeued, err := w.jobs.RequeueStuckJobs(ctx, w.stuckAfter)
	if err != nil {
		w.logger.Error("Stuck job requeue failed: %v", err)
	} else if requeued > 0 {
		w.logger.Warn("Requeued %d stuck jobs", requeued)
	}

	completedCleaned, err := w.jobs.CleanupCompletedJobs(ctx, w.retention)
	if err != nil {
		w.logger.Error("Completed job cleanup failed: %v", err)
	}
	failedCleaned, err := w.jobs.CleanupFailedJobs(ctx, w.retention, w.config.MaxRetries)
	if err != nil {
		w.logger.Error("Failed job cleanup failed: %v", err)
	}

	docsCleaned, err := w.documents.Cleanup(ctx, w.retention)
	if err != nil {
		w.logger.Error("Document registry cleanup failed: %v", err)
	}

	filesSwept := w.sweepOrphanedUploads(ctx)

	if depth, err := w.jobs.GetQueueLength(ctx, models.JobTypeDocumentIngest); err == nil {
		if w.monitor != nil {
			w.monitor.RecordQueueDepth(int(depth))
		}
	} else if ctx.Err() == nil {
		w.logger.Error("Queue depth check failed: %v", err)
	}

	w.recordJobSuccess(start)
	w.logger.Info("Maintenance cycle finished in %v: %d stuck requeued, %d+%d jobs cleaned, %d documents cleaned, %d files swept",
		time.Since(start), requeued, completedCleaned, failedCleaned, docsCleaned, filesSwept)
}

// sweepOrphanedUploads removes stored upload files whose document is gone or
// terminal and whose file age exceeds the retention window. Files are kept on
// any lookup uncertainty so a retryable job never loses its input.
func (w *MaintenanceWorker) sweepOrphanedUploads(ctx context.Context) int {
	if w.uploadDir == "" {
		return 0
	}
	entries, err := os.ReadDir(w.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("Upload dir sweep failed: %v", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-w.retention)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		// Stored uploads are named "<document_id>_<filename>".
		documentID, _, found := strings.Cut(entry.Name(), "_")
		if !found {
			continue
		}

		doc, err := w.documents.Get(ctx, documentID)
		switch {
		case err != nil && models.IsNotFound(err):
			// No document record left, the file is an orphan.
		case err != nil:
			continue
		case !doc.Status.IsTerminal():
			continue
		}

		path := filepath.Join(w.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Could not remove orphaned upload %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info("Swept %d orphaned upload files", removed)
	}
	return removed
}
