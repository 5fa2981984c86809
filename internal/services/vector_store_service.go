package services

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"zerorag/config"
	"zerorag/internal/models"
	"zerorag/internal/repositories"
)

// Queue priorities for deferred store operations. Lower values run first.
const (
	QueuePriorityHigh   = 1
	QueuePriorityNormal = 2
	QueuePriorityLow    = 3
)

const (
	storeMaxAttempts  = 3
	storeMaxBackoff   = 2 * time.Second
	storeOpTimeout    = 60 * time.Second
	degradeAfterFails = 3

	memCooldownBase = 60 * time.Second
	memCooldownMax  = 300 * time.Second
	leakWindow      = 10
	leakRiseMB      = 200.0

	batchSearchConcurrency = 4
)

const (
	opKindUpsert  = "upsert"
	opKindDelete  = "delete"
	opKindCleanup = "cleanup"
)

// StoreHealth summarizes vector store condition for the health endpoint.
type StoreHealth struct {
	Score      int      `json:"score"`
	Degraded   bool     `json:"degraded"`
	BackendUp  bool     `json:"backend_up"`
	QueueDepth int      `json:"queue_depth"`
	MemoryMB   float64  `json:"memory_mb"`
	Issues     []string `json:"issues,omitempty"`
}

// VectorStoreService fronts the vector backend with batching, retries, a
// priority write queue, and an in-memory fallback that takes over after
// repeated transient failures. Degraded mode keeps reads and writes working
// until an explicit Reload replays the buffered data into the backend.
type VectorStoreService struct {
	primary  repositories.VectorRepository
	fallback *repositories.MemoryVectorRepository
	monitor  *PerformanceMonitor
	logger   *log.Logger
	memCfg   config.MemoryConfig

	batchSize    int
	retryBackoff time.Duration

	stateMu         sync.RWMutex
	degraded        bool
	consecTransient int

	queueMu    sync.Mutex
	queueCond  *sync.Cond
	queue      opHeap
	nextSeq    uint64
	maxQueue   int
	queueAlert int
	closed     bool

	memMu          sync.Mutex
	lastMem        models.MemoryStats
	heapSamples    *circularBuffer[float64]
	lastCleanup    time.Time
	cooldown       time.Duration
	consecCritical int
	leakAlerted    bool
	readMem        func() models.MemoryStats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewVectorStoreService wires the primary backend with its in-memory fallback.
func NewVectorStoreService(
	primary repositories.VectorRepository,
	fallback *repositories.MemoryVectorRepository,
	memCfg config.MemoryConfig,
	workerCfg config.WorkerConfig,
	monitor *PerformanceMonitor,
	logger *log.Logger,
) *VectorStoreService {
	if logger == nil {
		logger = log.Default()
	}
	maxQueue := workerCfg.MaxQueueSize
	if maxQueue <= 0 {
		maxQueue = 1000
	}
	queueAlert := workerCfg.QueueAlertThreshold
	if queueAlert <= 0 {
		queueAlert = maxQueue / 2
	}
	batchSize := workerCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	s := &VectorStoreService{
		primary:      primary,
		fallback:     fallback,
		monitor:      monitor,
		logger:       logger,
		memCfg:       memCfg,
		batchSize:    batchSize,
		retryBackoff: 100 * time.Millisecond,
		maxQueue:     maxQueue,
		queueAlert:   queueAlert,
		heapSamples:  newCircularBuffer[float64](leakWindow + 2),
		cooldown:     memCooldownBase,
		readMem:      ReadMemoryStats,
		stopCh:       make(chan struct{}),
	}
	s.queueCond = sync.NewCond(&s.queueMu)
	return s
}

// Start ensures the collection exists and launches the queue worker and
// memory monitor. A failing backend degrades the service instead of
// blocking startup.
func (s *VectorStoreService) Start(ctx context.Context) error {
	if err := s.primary.EnsureCollection(ctx); err != nil {
		s.logger.Printf("❌ Vector backend unavailable at startup: %v", err)
		s.enterDegraded("backend unavailable at startup")
	} else {
		s.logger.Printf("✅ Vector collection ready")
	}
	if err := s.fallback.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to initialize fallback store: %w", err)
	}

	s.wg.Add(1)
	go s.queueWorker()

	if s.memCfg.MonitorInterval > 0 {
		s.wg.Add(1)
		go s.memoryLoop()
	}
	return nil
}

// Stop drains the operation queue, waits for the workers, and closes both
// backends. Draining stops early when ctx expires.
func (s *VectorStoreService) Stop(ctx context.Context) error {
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()
	for s.QueueDepth() > 0 {
		select {
		case <-ctx.Done():
			s.logger.Printf("⚠️ Shutting down with %d queued store operations pending", s.QueueDepth())
			goto shutdown
		case <-deadline.C:
			s.logger.Printf("⚠️ Queue drain timed out with %d operations pending", s.QueueDepth())
			goto shutdown
		case <-time.After(50 * time.Millisecond):
		}
	}

shutdown:
	close(s.stopCh)
	s.queueMu.Lock()
	s.closed = true
	s.queueCond.Broadcast()
	s.queueMu.Unlock()
	s.wg.Wait()

	if err := s.primary.Close(); err != nil {
		s.logger.Printf("⚠️ Error closing vector backend: %v", err)
	}
	return s.fallback.Close()
}

// IsDegraded reports whether operations are served by the in-memory fallback.
func (s *VectorStoreService) IsDegraded() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.degraded
}

// QueueDepth returns the number of pending queued operations.
func (s *VectorStoreService) QueueDepth() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.queue.Len()
}

// EnsureCollection creates the collection on the active backend if missing.
func (s *VectorStoreService) EnsureCollection(ctx context.Context) error {
	return s.execute(ctx, func(repo repositories.VectorRepository) error {
		return repo.EnsureCollection(ctx)
	})
}

// Reset drops and recreates the collection, discarding every stored vector.
func (s *VectorStoreService) Reset(ctx context.Context) error {
	return s.execute(ctx, func(repo repositories.VectorRepository) error {
		if err := repo.DropCollection(ctx); err != nil {
			return err
		}
		return repo.EnsureCollection(ctx)
	})
}

// Upsert writes records synchronously in batches, checking memory pressure
// between batches.
func (s *VectorStoreService) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	for from := 0; from < len(records); from += s.batchSize {
		to := min(from+s.batchSize, len(records))
		batch := records[from:to]
		if err = s.execute(ctx, func(repo repositories.VectorRepository) error {
			return repo.Upsert(ctx, batch)
		}); err != nil {
			break
		}
	}
	s.monitor.RecordOperation("store.upsert", time.Since(start), err)
	return err
}

// Delete removes records by chunk ID.
func (s *VectorStoreService) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	start := time.Now()
	err := s.execute(ctx, func(repo repositories.VectorRepository) error {
		return repo.Delete(ctx, chunkIDs)
	})
	s.monitor.RecordOperation("store.delete", time.Since(start), err)
	return err
}

// DeleteByDocument removes every chunk belonging to a document and returns
// how many were removed.
func (s *VectorStoreService) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	start := time.Now()
	var removed int
	err := s.execute(ctx, func(repo repositories.VectorRepository) error {
		var innerErr error
		removed, innerErr = repo.DeleteByDocument(ctx, documentID)
		return innerErr
	})
	s.monitor.RecordOperation("store.delete_document", time.Since(start), err)
	return removed, err
}

// Search runs a similarity query against the active backend.
func (s *VectorStoreService) Search(ctx context.Context, vector []float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([]models.SearchResult, error) {
	start := time.Now()
	var results []models.SearchResult
	err := s.execute(ctx, func(repo repositories.VectorRepository) error {
		var innerErr error
		results, innerErr = repo.Search(ctx, vector, topK, scoreThreshold, filter)
		return innerErr
	})
	s.monitor.RecordOperation("store.search", time.Since(start), err)
	return results, err
}

// BatchSearch fans searches out concurrently, preserving input order.
func (s *VectorStoreService) BatchSearch(ctx context.Context, vectors [][]float32, topK int, scoreThreshold *float64, filter *models.SearchFilter) ([][]models.SearchResult, error) {
	results := make([][]models.SearchResult, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchSearchConcurrency)
	for i, vector := range vectors {
		i, vector := i, vector
		g.Go(func() error {
			hits, err := s.Search(gctx, vector, topK, scoreThreshold, filter)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (s *VectorStoreService) Count(ctx context.Context) (int, error) {
	var count int
	err := s.execute(ctx, func(repo repositories.VectorRepository) error {
		var innerErr error
		count, innerErr = repo.Count(ctx)
		return innerErr
	})
	return count, err
}

// Stats returns collection statistics from the active backend.
func (s *VectorStoreService) Stats(ctx context.Context) (*repositories.StoreStats, error) {
	var stats *repositories.StoreStats
	err := s.execute(ctx, func(repo repositories.VectorRepository) error {
		var innerErr error
		stats, innerErr = repo.Stats(ctx)
		return innerErr
	})
	return stats, err
}

// QueueUpsert enqueues a deferred write. The callback, when set, runs on the
// queue worker goroutine after the write completes.
func (s *VectorStoreService) QueueUpsert(records []models.VectorRecord, priority int, callback func(error)) error {
	return s.enqueue(&storeOp{
		kind:     opKindUpsert,
		priority: normalizePriority(priority),
		records:  records,
		callback: callback,
	})
}

// QueueDelete enqueues a deferred delete.
func (s *VectorStoreService) QueueDelete(chunkIDs []string, priority int, callback func(error)) error {
	return s.enqueue(&storeOp{
		kind:     opKindDelete,
		priority: normalizePriority(priority),
		chunkIDs: chunkIDs,
		callback: callback,
	})
}

// Reload replays the in-memory fallback into the primary backend and
// switches back to it. Only meaningful while degraded.
func (s *VectorStoreService) Reload(ctx context.Context) error {
	if !s.IsDegraded() {
		return nil
	}
	s.logger.Printf("🔄 Reloading vector backend from in-memory fallback...")

	if err := s.primary.Ping(ctx); err != nil {
		return models.NewTransientError("store.reload", fmt.Errorf("backend still unreachable: %w", err))
	}
	if err := s.primary.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}

	replayed := 0
	err := s.fallback.ExportAll(ctx, s.batchSize, func(records []models.VectorRecord) error {
		if err := s.withRetry(ctx, func() error {
			return s.primary.Upsert(ctx, records)
		}); err != nil {
			return err
		}
		replayed += len(records)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay failed after %d records: %w", replayed, err)
	}

	s.stateMu.Lock()
	s.degraded = false
	s.consecTransient = 0
	s.stateMu.Unlock()

	// Drop the replayed copies so memory is released.
	if err := s.fallback.DropCollection(ctx); err == nil {
		_ = s.fallback.EnsureCollection(ctx)
	}

	s.logger.Printf("✅ Vector backend restored, %d records replayed", replayed)
	s.monitor.RaiseAlert(models.PerformanceAlert{
		Type:     "store_recovered",
		Severity: models.AlertSeverityInfo,
		Message:  fmt.Sprintf("vector backend restored after replaying %d records", replayed),
		Value:    float64(replayed),
	})
	return nil
}

// Health scores the store 0-100. Degraded mode caps the score at 70.
func (s *VectorStoreService) Health(ctx context.Context) StoreHealth {
	health := StoreHealth{Score: 100}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	health.BackendUp = s.primary.Ping(pingCtx) == nil
	if !health.BackendUp {
		health.Score -= 30
		health.Issues = append(health.Issues, "primary vector backend unreachable")
	}

	health.Degraded = s.IsDegraded()
	if health.Degraded {
		health.Issues = append(health.Issues, "serving from in-memory fallback")
	}

	health.QueueDepth = s.QueueDepth()
	if health.QueueDepth >= s.queueAlert {
		health.Score -= 10
		health.Issues = append(health.Issues, fmt.Sprintf("operation queue at %d entries", health.QueueDepth))
	}

	s.memMu.Lock()
	health.MemoryMB = s.lastMem.HeapAllocMB
	s.memMu.Unlock()
	if s.memCfg.CriticalMB > 0 && health.MemoryMB > s.memCfg.CriticalMB {
		health.Score -= 25
		health.Issues = append(health.Issues, "memory usage critical")
	} else if s.memCfg.ThresholdMB > 0 && health.MemoryMB > s.memCfg.ThresholdMB {
		health.Score -= 10
		health.Issues = append(health.Issues, "memory usage above threshold")
	}

	if health.Degraded && health.Score > 70 {
		health.Score = 70
	}
	if health.Score < 0 {
		health.Score = 0
	}
	return health
}

// MemoryStats returns the latest memory sample taken by the monitor.
func (s *VectorStoreService) MemoryStats() models.MemoryStats {
	s.memMu.Lock()
	defer s.memMu.Unlock()
	if s.lastMem.Timestamp.IsZero() {
		return s.readMem()
	}
	return s.lastMem
}

// ============================================================================
// Execution and degradation
// ============================================================================

// active returns the repository operations should run against.
func (s *VectorStoreService) active() (repositories.VectorRepository, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.degraded {
		return s.fallback, true
	}
	return s.primary, false
}

// execute runs fn against the active repository with retries. Repeated
// transient failures flip the service into degraded mode and replay the
// failed operation on the fallback so data keeps flowing.
func (s *VectorStoreService) execute(ctx context.Context, fn func(repo repositories.VectorRepository) error) error {
	repo, degraded := s.active()
	err := s.withRetry(ctx, func() error { return fn(repo) })
	if degraded {
		return err
	}
	if err == nil {
		s.stateMu.Lock()
		s.consecTransient = 0
		s.stateMu.Unlock()
		return nil
	}
	if models.IsTransient(err) && s.recordTransientFailure() {
		return fn(s.fallback)
	}
	return err
}

// recordTransientFailure counts consecutive transient errors and degrades
// once the threshold is hit. Returns true when the switch just happened.
func (s *VectorStoreService) recordTransientFailure() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.degraded {
		return false
	}
	s.consecTransient++
	if s.consecTransient < degradeAfterFails {
		return false
	}
	s.degraded = true
	s.logger.Printf("🚨 Vector backend failed %d times in a row, switching to in-memory fallback", s.consecTransient)
	if s.monitor != nil {
		s.monitor.RaiseAlert(models.PerformanceAlert{
			Type:      "store_degraded",
			Severity:  models.AlertSeverityCritical,
			Message:   "vector backend unreachable, serving from in-memory fallback",
			Value:     float64(s.consecTransient),
			Threshold: degradeAfterFails,
		})
	}
	return true
}

// enterDegraded switches to the fallback without failure accounting.
func (s *VectorStoreService) enterDegraded(reason string) {
	s.stateMu.Lock()
	already := s.degraded
	s.degraded = true
	s.consecTransient = degradeAfterFails
	s.stateMu.Unlock()
	if already {
		return
	}
	s.logger.Printf("🚨 Vector store degraded: %s", reason)
	if s.monitor != nil {
		s.monitor.RaiseAlert(models.PerformanceAlert{
			Type:      "store_degraded",
			Severity:  models.AlertSeverityCritical,
			Message:   "vector store degraded: " + reason,
			Threshold: degradeAfterFails,
		})
	}
}

// withRetry retries transient failures with capped exponential backoff.
func (s *VectorStoreService) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < storeMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := s.retryBackoff * time.Duration(1<<(attempt-1))
			if backoff > storeMaxBackoff {
				backoff = storeMaxBackoff
			}
			select {
			case <-ctx.Done():
				return models.NewCancelledError("store.retry", ctx.Err())
			case <-time.After(backoff):
			}
		}
		lastErr = fn()
		if lastErr == nil || !models.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// ============================================================================
// Priority queue
// ============================================================================

type storeOp struct {
	kind     string
	priority int
	seq      uint64
	records  []models.VectorRecord
	chunkIDs []string
	callback func(error)
	enqueued time.Time
}

// opHeap orders by priority (ascending), then enqueue sequence for FIFO
// within the same priority.
type opHeap []*storeOp

func (h opHeap) Len() int { return len(h) }
func (h opHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) { *h = append(*h, x.(*storeOp)) }
func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return op
}

func normalizePriority(priority int) int {
	if priority < QueuePriorityHigh || priority > QueuePriorityLow {
		return QueuePriorityNormal
	}
	return priority
}

func (s *VectorStoreService) enqueue(op *storeOp) error {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return models.NewPermanentError("store.queue", fmt.Errorf("vector store is shutting down"))
	}
	if s.queue.Len() >= s.maxQueue {
		depth := s.queue.Len()
		s.queueMu.Unlock()
		if s.monitor != nil {
			s.monitor.RecordQueueDepth(depth)
		}
		return models.NewTransientError("store.queue",
			fmt.Errorf("%w: %d operations pending", models.ErrQueueFull, depth)).
			WithCode("QUEUE_FULL")
	}
	op.seq = s.nextSeq
	s.nextSeq++
	op.enqueued = time.Now()
	heap.Push(&s.queue, op)
	depth := s.queue.Len()
	s.queueCond.Signal()
	s.queueMu.Unlock()

	if s.monitor != nil {
		s.monitor.RecordQueueDepth(depth)
	}
	return nil
}

// queueWorker drains the priority queue one operation at a time, so writes
// never race each other. It keeps processing until the queue is empty after
// shutdown is requested.
func (s *VectorStoreService) queueWorker() {
	defer s.wg.Done()
	for {
		s.queueMu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.queueCond.Wait()
		}
		if s.queue.Len() == 0 {
			s.queueMu.Unlock()
			return
		}
		op := heap.Pop(&s.queue).(*storeOp)
		s.queueMu.Unlock()

		s.runOp(op)
	}
}

// runOp executes a queued operation. Callbacks run here, on the worker
// goroutine, and panics from either the operation or the callback are
// contained.
func (s *VectorStoreService) runOp(op *storeOp) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("❌ Queued %s operation panicked: %v", op.kind, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opKindUpsert:
		err = s.Upsert(ctx, op.records)
	case opKindDelete:
		err = s.Delete(ctx, op.chunkIDs)
	case opKindCleanup:
		runtime.GC()
	}
	if err != nil {
		s.logger.Printf("❌ Queued %s operation failed after %.2fms in queue: %v",
			op.kind, time.Since(op.enqueued).Seconds()*1000, err)
	}
	if op.callback != nil {
		op.callback(err)
	}
}

// ============================================================================
// Memory monitor
// ============================================================================

func (s *VectorStoreService) memoryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.memCfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkMemory()
		}
	}
}

// checkMemory samples heap usage and reacts to threshold crossings.
// Light cleanup is a GC pass, standard cleanup is queued at high priority
// so it serializes with writes, and critical pressure additionally returns
// freed pages to the OS.
func (s *VectorStoreService) checkMemory() {
	stats := s.readMem()

	s.memMu.Lock()
	defer s.memMu.Unlock()
	s.lastMem = stats
	s.heapSamples.Add(stats.HeapAllocMB)

	s.checkLeakLocked()

	heapMB := stats.HeapAllocMB
	threshold := s.memCfg.ThresholdMB
	critical := s.memCfg.CriticalMB
	if threshold <= 0 {
		return
	}
	now := time.Now()

	switch {
	case critical > 0 && heapMB > critical:
		s.consecCritical++
		if s.consecCritical > 3 {
			grown := time.Duration(float64(s.cooldown) * 1.5)
			if grown > memCooldownMax {
				grown = memCooldownMax
			}
			s.cooldown = grown
		}
		if s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= s.cooldown {
			s.lastCleanup = now
			s.logger.Printf("🚨 Memory critical at %.1fMB (limit %.1fMB), running aggressive cleanup", heapMB, critical)
			runtime.GC()
			debug.FreeOSMemory()
			if s.monitor != nil {
				s.monitor.RaiseAlert(models.PerformanceAlert{
					Type:      "memory_critical",
					Severity:  models.AlertSeverityCritical,
					Message:   fmt.Sprintf("heap at %.1fMB exceeds critical limit %.1fMB", heapMB, critical),
					Value:     heapMB,
					Threshold: critical,
				})
			}
		}

	case heapMB > threshold:
		s.consecCritical = 0
		s.cooldown = memCooldownBase
		if s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= s.cooldown {
			s.lastCleanup = now
			s.logger.Printf("⚠️ Memory at %.1fMB (threshold %.1fMB), queueing cleanup", heapMB, threshold)
			if err := s.enqueue(&storeOp{kind: opKindCleanup, priority: QueuePriorityHigh}); err != nil {
				runtime.GC()
			}
			if s.monitor != nil {
				s.monitor.RaiseAlert(models.PerformanceAlert{
					Type:      "memory_pressure",
					Severity:  models.AlertSeverityWarning,
					Message:   fmt.Sprintf("heap at %.1fMB exceeds threshold %.1fMB", heapMB, threshold),
					Value:     heapMB,
					Threshold: threshold,
				})
			}
		}

	case heapMB > 0.8*threshold:
		s.consecCritical = 0
		s.cooldown = memCooldownBase
		if s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= 2*s.cooldown {
			s.lastCleanup = now
			runtime.GC()
		}

	default:
		s.consecCritical = 0
		s.cooldown = memCooldownBase
	}
}

// checkLeakLocked flags sustained monotonic heap growth. Callers hold memMu.
func (s *VectorStoreService) checkLeakLocked() {
	samples := s.heapSamples.Items()
	if len(samples) < leakWindow {
		return
	}
	window := samples[len(samples)-leakWindow:]
	for i := 1; i < len(window); i++ {
		if window[i] <= window[i-1] {
			s.leakAlerted = false
			return
		}
	}
	rise := window[len(window)-1] - window[0]
	if rise <= leakRiseMB || s.leakAlerted {
		return
	}
	s.leakAlerted = true
	s.logger.Printf("⚠️ Possible memory leak: heap grew %.1fMB over the last %d samples", rise, leakWindow)
	if s.monitor != nil {
		s.monitor.RaiseAlert(models.PerformanceAlert{
			Type:      "memory_leak",
			Severity:  models.AlertSeverityWarning,
			Message:   fmt.Sprintf("heap grew monotonically by %.1fMB over %d samples", rise, leakWindow),
			Value:     rise,
			Threshold: leakRiseMB,
		})
	}
}
