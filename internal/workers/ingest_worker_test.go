package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zerorag/internal/models"
	"zerorag/internal/repositories"
)

// Mock implementations

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockJobRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, message string) error {
	args := m.Called(ctx, jobID, status, progress, message)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateJobResult(ctx context.Context, jobID string, result map[string]interface{}) error {
	args := m.Called(ctx, jobID, result)
	return args.Error(0)
}

func (m *MockJobRepository) DeleteJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) ListJobs(ctx context.Context, filter *repositories.JobFilter) ([]*models.Job, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockJobRepository) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockJobRepository) ListJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	args := m.Called(ctx, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockJobRepository) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockJobRepository) EnqueueJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) DequeueJob(ctx context.Context, jobType models.JobType) (*models.Job, error) {
	args := m.Called(ctx, jobType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockJobRepository) RequeueFailedJobs(ctx context.Context, maxRetries int) (int, error) {
	args := m.Called(ctx, maxRetries)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) RequeueStuckJobs(ctx context.Context, stuckAfter time.Duration) (int, error) {
	args := m.Called(ctx, stuckAfter)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) GetQueueLength(ctx context.Context, jobType models.JobType) (int64, error) {
	args := m.Called(ctx, jobType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) SetProgress(ctx context.Context, jobID string, progress int, message string) error {
	args := m.Called(ctx, jobID, progress, message)
	return args.Error(0)
}

func (m *MockJobRepository) CleanupCompletedJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) CleanupFailedJobs(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	args := m.Called(ctx, olderThan, maxRetries)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) GetStats(ctx context.Context) (*models.JobStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobStats), args.Error(1)
}

func (m *MockJobRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockJobRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// stubProcessor records the jobs it receives and fails or panics on demand.
type stubProcessor struct {
	mu        sync.Mutex
	err       error
	panicWith interface{}
	jobs      []*models.Job
}

func (p *stubProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	return p.err
}

func (p *stubProcessor) processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

type MockLogger struct {
	mu   sync.Mutex
	Logs []string
}

func (l *MockLogger) append(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Logs = append(l.Logs, fmt.Sprintf(level+" "+msg, args...))
}

func (l *MockLogger) Info(msg string, args ...interface{}) {
	l.append("[INFO]", msg, args)
}

func (l *MockLogger) Error(msg string, args ...interface{}) {
	l.append("[ERROR]", msg, args)
}

func (l *MockLogger) Warn(msg string, args ...interface{}) {
	l.append("[WARN]", msg, args)
}

func (l *MockLogger) Debug(msg string, args ...interface{}) {
	l.append("[DEBUG]", msg, args)
}

// Test functions

func newTestIngestWorker(jobRepo repositories.JobRepository, processor DocumentProcessor) *IngestWorker {
	config := IngestWorkerConfig{
		WorkerConfig: WorkerConfig{
			WorkerName:      "test-ingest",
			Concurrency:     1,
			PollInterval:    50 * time.Millisecond,
			ShutdownTimeout: 2 * time.Second,
			MaxRetries:      3,
			RetryDelay:      10 * time.Millisecond,
			EnableRecovery:  true,
		},
		JobRepo:   jobRepo,
		Processor: processor,
		Logger:    &MockLogger{},
	}
	return NewIngestWorker(config)
}

func TestNewIngestWorker(t *testing.T) {
	worker := newTestIngestWorker(&MockJobRepository{}, &stubProcessor{})

	assert.NotNil(t, worker)
	assert.Equal(t, "test-ingest", worker.Name())
	assert.False(t, worker.IsRunning())
}

func TestIngestWorker_StartStop(t *testing.T) {
	jobRepo := &MockJobRepository{}
	worker := newTestIngestWorker(jobRepo, &stubProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No jobs in the queue
	jobRepo.On("DequeueJob", mock.Anything, models.JobTypeDocumentIngest).Return(nil, nil)

	err := worker.Start(ctx)
	require.NoError(t, err)
	assert.True(t, worker.IsRunning())

	// Second start is rejected
	err = worker.Start(ctx)
	assert.Error(t, err)

	// Let it poll at least once
	time.Sleep(150 * time.Millisecond)

	cancel()
	err = worker.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, worker.IsRunning())

	jobRepo.AssertCalled(t, "DequeueJob", mock.Anything, models.JobTypeDocumentIngest)
}

func TestIngestWorker_PollsAndProcessesJob(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-queued",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		MaxRetries: 3,
	}

	// First poll returns the job, later polls find the queue empty.
	jobRepo.On("DequeueJob", mock.Anything, models.JobTypeDocumentIngest).Return(job, nil).Once()
	jobRepo.On("DequeueJob", mock.Anything, models.JobTypeDocumentIngest).Return(nil, nil)
	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for processor.processed() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	require.NoError(t, worker.Stop(ctx))

	assert.Equal(t, 1, processor.processed())
	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.JobsSucceeded)
}

func TestIngestWorker_ProcessJob_Success(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-123",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		MaxRetries: 3,
		Payload:    map[string]interface{}{"document_id": "doc-1"},
	}

	// Worker stamps its id on the job before processing
	jobRepo.On("UpdateJob", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
		return j.ID == "job-123" && j.WorkerID == "test-ingest"
	})).Return(nil)

	worker.processJob(context.Background(), job)

	assert.Equal(t, 1, processor.processed())
	jobRepo.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsSucceeded)
	assert.Equal(t, int64(0), stats.JobsFailed)
}

func TestIngestWorker_ProcessJob_TransientFailureRetries(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{
		err: models.NewTransientError("ingest.embed", errors.New("connection refused")),
	}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-retry",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		Progress:   40,
		RetryCount: 0,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("GetJob", mock.Anything, "job-retry").Return(&models.Job{
		ID:         "job-retry",
		Type:       models.JobTypeDocumentIngest,
		Progress:   40,
		RetryCount: 0,
		MaxRetries: 3,
	}, nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, "job-retry", models.JobStatusRetrying, 40, mock.Anything).Return(nil)
	jobRepo.On("EnqueueJob", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
		return j.ID == "job-retry" && j.RetryCount == 1 && j.Error != ""
	})).Return(nil)

	worker.processJob(context.Background(), job)

	jobRepo.AssertCalled(t, "UpdateJobStatus", mock.Anything, "job-retry", models.JobStatusRetrying, 40, mock.Anything)
	jobRepo.AssertCalled(t, "EnqueueJob", mock.Anything, mock.Anything)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.JobsFailed)
	assert.Equal(t, int64(0), stats.JobsSucceeded)
}

func TestIngestWorker_ProcessJob_ValidationFailureIsFinal(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{
		err: models.NewValidationError("ingest.parse", "unsupported file type"),
	}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-invalid",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)

	worker.processJob(context.Background(), job)

	// The processor already stamped the failed status; nothing to requeue.
	jobRepo.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.JobsFailed)
}

func TestIngestWorker_ProcessJob_MaxRetriesExceeded(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{
		err: models.NewTransientError("ingest.embed", errors.New("still down")),
	}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-max",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		RetryCount: 3,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("GetJob", mock.Anything, "job-max").Return(&models.Job{
		ID:         "job-max",
		Type:       models.JobTypeDocumentIngest,
		RetryCount: 3,
		MaxRetries: 3,
	}, nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, "job-max", models.JobStatusFailed, 0, mock.Anything).Return(nil)

	worker.processJob(context.Background(), job)

	jobRepo.AssertCalled(t, "UpdateJobStatus", mock.Anything, "job-max", models.JobStatusFailed, 0, mock.Anything)
	jobRepo.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
}

func TestIngestWorker_ProcessJob_PanicRecovery(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{panicWith: "chunker exploded"}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-panic",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)

	// Must not crash the worker goroutine
	worker.processJob(context.Background(), job)

	// Panics are not transient, the job is not retried.
	jobRepo.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.JobsFailed)
}

func TestIngestWorker_ProcessJob_ShutdownInterruptRequeuesWithoutRetry(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{
		err: models.NewCancelledError("ingest", context.Canceled),
	}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-interrupted",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		RetryCount: 1,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("GetJob", mock.Anything, "job-interrupted").Return(&models.Job{
		ID:         "job-interrupted",
		Type:       models.JobTypeDocumentIngest,
		RetryCount: 1,
		MaxRetries: 3,
	}, nil)
	// The retry budget is not consumed by a shutdown interrupt.
	jobRepo.On("EnqueueJob", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
		return j.ID == "job-interrupted" && j.RetryCount == 1
	})).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker.processJob(ctx, job)

	jobRepo.AssertCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestWorker_ProcessJob_UserCancelIsFinal(t *testing.T) {
	jobRepo := &MockJobRepository{}
	processor := &stubProcessor{
		err: models.NewCancelledError("ingest", context.Canceled),
	}
	worker := newTestIngestWorker(jobRepo, processor)

	job := &models.Job{
		ID:         "job-cancelled",
		Type:       models.JobTypeDocumentIngest,
		Status:     models.JobStatusProcessing,
		MaxRetries: 3,
	}

	jobRepo.On("UpdateJob", mock.Anything, mock.Anything).Return(nil)

	// Worker context is still live, so the cancellation came from the user.
	worker.processJob(context.Background(), job)

	jobRepo.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
}

func TestDefaultLogger(t *testing.T) {
	logger := &DefaultLogger{}

	// Should not panic
	logger.Info("test info")
	logger.Error("test error")
	logger.Warn("test warn")
	logger.Debug("test debug")
}
