package workers

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/services"
)

// AlertSink receives threshold alerts. *services.PerformanceMonitor
// satisfies it.
type AlertSink interface {
	RaiseAlert(alert models.PerformanceAlert)
}

// AlertPruner trims retained alert history. *services.PerformanceMonitor
// satisfies it.
type AlertPruner interface {
	PruneAlerts(maxAge time.Duration) int
}

// Alert history is kept for at most a day; the ring buffer caps the count.
const alertRetention = 24 * time.Hour

// MemoryWorker samples process heap usage on an interval and escalates
// through warning and critical thresholds. Alerts fire on level transitions
// only, so a sustained high-water mark does not flood the history.
type MemoryWorker struct {
	*BaseWorker
	logger Logger
	alerts AlertSink

	thresholdMB float64
	criticalMB  float64
	interval    time.Duration
	onCritical  func(models.MemoryStats)

	lastLevel string
}

// MemoryWorkerConfig holds configuration and dependencies for the memory
// worker
type MemoryWorkerConfig struct {
	WorkerConfig WorkerConfig
	Logger       Logger
	Alerts       AlertSink

	ThresholdMB float64
	CriticalMB  float64
	Interval    time.Duration

	// OnCritical runs after a critical sample, for emergency cleanup such as
	// dropping caches. Optional.
	OnCritical func(models.MemoryStats)
}

// NewMemoryWorker creates a new memory worker
func NewMemoryWorker(config MemoryWorkerConfig) *MemoryWorker {
	logger := config.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	interval := config.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MemoryWorker{
		BaseWorker:  NewBaseWorker(config.WorkerConfig),
		logger:      logger,
		alerts:      config.Alerts,
		thresholdMB: config.ThresholdMB,
		criticalMB:  config.CriticalMB,
		interval:    interval,
		onCritical:  config.OnCritical,
		lastLevel:   "normal",
	}
}

// Start begins memory sampling
func (w *MemoryWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.setRunning(true)
	w.logger.Info("Starting memory worker: %s (warn: %.0fMB, critical: %.0fMB, every %v)",
		w.Name(), w.thresholdMB, w.criticalMB, w.interval)
	w.spawn(func() { w.loop(ctx) })
	return nil
}

// Stop gracefully shuts down the worker
func (w *MemoryWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}
	w.logger.Info("Stopping memory worker: %s", w.Name())
	return w.stopAndWait()
}

func (w *MemoryWorker) loop(ctx context.Context) {
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
			w.sample()
		}
	}
}

// sample takes one memory reading and reacts to threshold crossings.
func (w *MemoryWorker) sample() {
	start := w.recordJobStart()
	stats := services.ReadMemoryStats()

	level := "normal"
	switch {
	case w.criticalMB > 0 && stats.HeapAllocMB >= w.criticalMB:
		level = "critical"
	case w.thresholdMB > 0 && stats.HeapAllocMB >= w.thresholdMB:
		level = "warning"
	}

	switch level {
	case "critical":
		if w.lastLevel != "critical" {
			w.logger.Error("Memory critical: heap %.1fMB >= %.0fMB, forcing release", stats.HeapAllocMB, w.criticalMB)
			w.raise(models.AlertSeverityCritical, stats.HeapAllocMB, w.criticalMB)
		}
		debug.FreeOSMemory()
		if w.onCritical != nil {
			w.onCritical(stats)
		}
	case "warning":
		if w.lastLevel == "normal" {
			w.logger.Warn("Memory high: heap %.1fMB >= %.0fMB", stats.HeapAllocMB, w.thresholdMB)
			w.raise(models.AlertSeverityWarning, stats.HeapAllocMB, w.thresholdMB)
		}
		runtime.GC()
	default:
		if w.lastLevel != "normal" {
			w.logger.Info("Memory back to normal: heap %.1fMB", stats.HeapAllocMB)
		}
	}
	w.lastLevel = level
	w.recordJobSuccess(start)
}

func (w *MemoryWorker) raise(severity models.AlertSeverity, value, threshold float64) {
	if w.alerts == nil {
		return
	}
	w.alerts.RaiseAlert(models.PerformanceAlert{
		Type:      "memory_pressure",
		Severity:  severity,
		Message:   "process heap above configured threshold",
		Value:     value,
		Threshold: threshold,
	})
}

// GCWorker periodically compacts process memory and prunes aged alert
// history so long-running deployments do not accumulate either.
type GCWorker struct {
	*BaseWorker
	logger   Logger
	pruner   AlertPruner
	interval time.Duration
}

// GCWorkerConfig holds configuration and dependencies for the GC worker
type GCWorkerConfig struct {
	WorkerConfig WorkerConfig
	Logger       Logger
	Pruner       AlertPruner
	Interval     time.Duration
}

// NewGCWorker creates a new GC worker
func NewGCWorker(config GCWorkerConfig) *GCWorker {
	logger := config.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	interval := config.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &GCWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		logger:     logger,
		pruner:     config.Pruner,
		interval:   interval,
	}
}

// Start begins the GC loop
func (w *GCWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.setRunning(true)
	w.logger.Info("Starting GC worker: %s (every %v)", w.Name(), w.interval)
	w.spawn(func() { w.loop(ctx) })
	return nil
}

// Stop gracefully shuts down the worker
func (w *GCWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}
	w.logger.Info("Stopping GC worker: %s", w.Name())
	return w.stopAndWait()
}

func (w *GCWorker) loop(ctx context.Context) {
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
			w.tick()
		}
	}
}

func (w *GCWorker) tick() {
	start := w.recordJobStart()
	runtime.GC()
	debug.FreeOSMemory()

	pruned := 0
	if w.pruner != nil {
		pruned = w.pruner.PruneAlerts(alertRetention)
	}
	w.logger.Debug("GC tick finished in %v (%d stale alerts pruned)", time.Since(start), pruned)
	w.recordJobSuccess(start)
}
