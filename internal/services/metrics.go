package services

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"zerorag/config"
	"zerorag/internal/models"
)

const (
	// alertHistorySize bounds the retained alert history.
	alertHistorySize = 100

	// opSampleWindow is how many recent samples each operation keeps.
	opSampleWindow = 200

	// errorRateThreshold triggers an alert when the windowed error rate
	// of an operation climbs above it.
	errorRateThreshold = 0.05

	// errorRateMinSamples is the minimum window size before the error
	// rate is considered meaningful.
	errorRateMinSamples = 10
)

// OperationStats summarizes one named operation for the metrics endpoint.
// Count and Errors are lifetime totals; the timing figures cover the
// recent sample window only.
type OperationStats struct {
	Name      string    `json:"name"`
	Count     int64     `json:"count"`
	Errors    int64     `json:"errors"`
	ErrorRate float64   `json:"error_rate"`
	AvgTimeMs float64   `json:"avg_time_ms"`
	MaxTimeMs float64   `json:"max_time_ms"`
	LastAt    time.Time `json:"last_at,omitempty"`
}

// PerformanceMonitor tracks operation timings and raises threshold alerts.
// All methods are safe for concurrent use.
type PerformanceMonitor struct {
	logger *log.Logger

	slowOpThreshold time.Duration
	queueThreshold  int

	mu      sync.RWMutex
	ops     map[string]*opTrack
	alerts  *circularBuffer[models.PerformanceAlert]
	onAlert func(models.PerformanceAlert)
}

type opTrack struct {
	count       int64
	errors      int64
	samples     *circularBuffer[opSample]
	rateAlerted bool
}

type opSample struct {
	duration time.Duration
	failed   bool
	at       time.Time
}

// NewPerformanceMonitor creates a monitor with thresholds from worker config.
func NewPerformanceMonitor(cfg config.WorkerConfig, logger *log.Logger) *PerformanceMonitor {
	if logger == nil {
		logger = log.Default()
	}
	return &PerformanceMonitor{
		logger:          logger,
		slowOpThreshold: cfg.OperationTimeoutAlert,
		queueThreshold:  cfg.QueueAlertThreshold,
		ops:             make(map[string]*opTrack),
		alerts:          newCircularBuffer[models.PerformanceAlert](alertHistorySize),
	}
}

// SetAlertCallback registers a callback invoked for every raised alert.
// The callback runs on the goroutine that recorded the measurement.
func (m *PerformanceMonitor) SetAlertCallback(fn func(models.PerformanceAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = fn
}

// RecordOperation records one timed operation outcome and checks thresholds.
func (m *PerformanceMonitor) RecordOperation(name string, duration time.Duration, err error) {
	m.mu.Lock()
	track, ok := m.ops[name]
	if !ok {
		track = &opTrack{samples: newCircularBuffer[opSample](opSampleWindow)}
		m.ops[name] = track
	}
	track.count++
	if err != nil {
		track.errors++
	}
	track.samples.Add(opSample{duration: duration, failed: err != nil, at: time.Now()})

	var raised []models.PerformanceAlert

	if m.slowOpThreshold > 0 && duration > m.slowOpThreshold {
		raised = append(raised, m.raiseLocked(models.PerformanceAlert{
			Type:     "slow_operation",
			Severity: models.AlertSeverityWarning,
			Message: fmt.Sprintf("operation %s took %.2fms (threshold %.0fms)",
				name, durationMs(duration), durationMs(m.slowOpThreshold)),
			Value:     durationMs(duration),
			Threshold: durationMs(m.slowOpThreshold),
			Timestamp: time.Now(),
		}))
	}

	if rate, n := windowedErrorRate(track.samples); n >= errorRateMinSamples {
		if rate > errorRateThreshold && !track.rateAlerted {
			track.rateAlerted = true
			raised = append(raised, m.raiseLocked(models.PerformanceAlert{
				Type:     "high_error_rate",
				Severity: models.AlertSeverityCritical,
				Message: fmt.Sprintf("operation %s error rate %.1f%% over last %d calls",
					name, rate*100, n),
				Value:     rate,
				Threshold: errorRateThreshold,
				Timestamp: time.Now(),
			}))
		} else if rate <= errorRateThreshold {
			track.rateAlerted = false
		}
	}
	cb := m.onAlert
	m.mu.Unlock()

	if cb != nil {
		for _, alert := range raised {
			cb(alert)
		}
	}
}

// RecordQueueDepth checks the pending queue length against the alert threshold.
func (m *PerformanceMonitor) RecordQueueDepth(depth int) {
	if m.queueThreshold <= 0 || depth < m.queueThreshold {
		return
	}
	m.mu.Lock()
	alert := m.raiseLocked(models.PerformanceAlert{
		Type:     "queue_depth",
		Severity: models.AlertSeverityWarning,
		Message: fmt.Sprintf("operation queue holds %d entries (threshold %d)",
			depth, m.queueThreshold),
		Value:     float64(depth),
		Threshold: float64(m.queueThreshold),
		Timestamp: time.Now(),
	})
	cb := m.onAlert
	m.mu.Unlock()

	if cb != nil {
		cb(alert)
	}
}

// RaiseAlert records an externally detected condition in the alert history.
func (m *PerformanceMonitor) RaiseAlert(alert models.PerformanceAlert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.raiseLocked(alert)
	cb := m.onAlert
	m.mu.Unlock()

	if cb != nil {
		cb(alert)
	}
}

// Alerts returns the retained alert history, oldest first.
func (m *PerformanceMonitor) Alerts() []models.PerformanceAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alerts.Items()
}

// PruneAlerts drops retained alerts older than maxAge and returns how many
// were removed. The periodic GC worker calls this to cap alert history age.
func (m *PerformanceMonitor) PruneAlerts(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()

	retained := m.alerts.Items()
	fresh := newCircularBuffer[models.PerformanceAlert](alertHistorySize)
	removed := 0
	for _, alert := range retained {
		if alert.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		fresh.Add(alert)
	}
	m.alerts = fresh
	return removed
}

// Stats reports per-operation aggregates keyed by operation name.
func (m *PerformanceMonitor) Stats() map[string]OperationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]OperationStats, len(m.ops))
	for name, track := range m.ops {
		stats := OperationStats{
			Name:   name,
			Count:  track.count,
			Errors: track.errors,
		}
		if track.count > 0 {
			stats.ErrorRate = float64(track.errors) / float64(track.count)
		}
		samples := track.samples.Items()
		if len(samples) > 0 {
			var total time.Duration
			var max time.Duration
			for _, s := range samples {
				total += s.duration
				if s.duration > max {
					max = s.duration
				}
			}
			stats.AvgTimeMs = durationMs(total) / float64(len(samples))
			stats.MaxTimeMs = durationMs(max)
			stats.LastAt = samples[len(samples)-1].at
		}
		out[name] = stats
	}
	return out
}

// raiseLocked appends an alert and logs it. Callers hold m.mu.
func (m *PerformanceMonitor) raiseLocked(alert models.PerformanceAlert) models.PerformanceAlert {
	m.alerts.Add(alert)
	switch alert.Severity {
	case models.AlertSeverityCritical:
		m.logger.Printf("🚨 Performance alert [%s]: %s", alert.Type, alert.Message)
	default:
		m.logger.Printf("⚠️ Performance alert [%s]: %s", alert.Type, alert.Message)
	}
	return alert
}

// windowedErrorRate computes the failure fraction over the retained samples.
func windowedErrorRate(buf *circularBuffer[opSample]) (float64, int) {
	samples := buf.Items()
	if len(samples) == 0 {
		return 0, 0
	}
	failed := 0
	for _, s := range samples {
		if s.failed {
			failed++
		}
	}
	return float64(failed) / float64(len(samples)), len(samples)
}

func durationMs(d time.Duration) float64 {
	return d.Seconds() * 1000
}

// ReadMemoryStats captures a point-in-time snapshot of process memory usage.
func ReadMemoryStats() models.MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return models.MemoryStats{
		HeapAllocMB:   float64(ms.HeapAlloc) / (1024 * 1024),
		HeapSysMB:     float64(ms.HeapSys) / (1024 * 1024),
		HeapObjects:   ms.HeapObjects,
		StackInUseMB:  float64(ms.StackInuse) / (1024 * 1024),
		NumGC:         ms.NumGC,
		NumGoroutines: runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}
}

// ============================================================================
// Circular buffer
// ============================================================================

// circularBuffer is a fixed-capacity ring buffer that evicts the oldest
// entry once full.
type circularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

func newCircularBuffer[T any](capacity int) *circularBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when at capacity.
func (b *circularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.items[(b.head+b.size)%b.capacity] = item
		b.size++
		return
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
}

// Items returns a copy of the buffered items, oldest first.
func (b *circularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}

// Len returns the number of buffered items.
func (b *circularBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
