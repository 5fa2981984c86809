package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/internal/models"
)

type stubAlertSink struct {
	mu     sync.Mutex
	alerts []models.PerformanceAlert
}

func (s *stubAlertSink) RaiseAlert(alert models.PerformanceAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
}

func (s *stubAlertSink) raised() []models.PerformanceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PerformanceAlert(nil), s.alerts...)
}

type stubAlertPruner struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (p *stubAlertPruner) PruneAlerts(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, maxAge)
	return 3
}

func (p *stubAlertPruner) pruned() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.calls...)
}

// A test process always holds more heap than this, so tiny thresholds force
// the pressure paths and huge ones keep the worker in normal.
const (
	tinyMB = 0.0001
	hugeMB = 1 << 30
)

func newTestMemoryWorker(sink AlertSink, thresholdMB, criticalMB float64, onCritical func(models.MemoryStats)) *MemoryWorker {
	return NewMemoryWorker(MemoryWorkerConfig{
		WorkerConfig: WorkerConfig{
			WorkerName:      "test-memory",
			ShutdownTimeout: 2 * time.Second,
		},
		Logger:      &MockLogger{},
		Alerts:      sink,
		ThresholdMB: thresholdMB,
		CriticalMB:  criticalMB,
		Interval:    20 * time.Millisecond,
		OnCritical:  onCritical,
	})
}

func TestMemoryWorker_SampleNormal(t *testing.T) {
	sink := &stubAlertSink{}
	worker := newTestMemoryWorker(sink, hugeMB, hugeMB, nil)

	worker.sample()

	assert.Empty(t, sink.raised())
	assert.Equal(t, "normal", worker.lastLevel)
	assert.Equal(t, int64(1), worker.Stats().JobsSucceeded)
}

func TestMemoryWorker_CriticalAlertsOnceUntilRecovery(t *testing.T) {
	sink := &stubAlertSink{}
	criticalSamples := 0
	worker := newTestMemoryWorker(sink, tinyMB, 2*tinyMB, func(models.MemoryStats) {
		criticalSamples++
	})

	worker.sample()
	worker.sample()

	// One alert for the transition, cleanup hook on every critical sample.
	alerts := sink.raised()
	require.Len(t, alerts, 1)
	assert.Equal(t, "memory_pressure", alerts[0].Type)
	assert.Equal(t, models.AlertSeverityCritical, alerts[0].Severity)
	assert.Greater(t, alerts[0].Value, 0.0)
	assert.Equal(t, 2*tinyMB, alerts[0].Threshold)
	assert.Equal(t, "critical", worker.lastLevel)
	assert.Equal(t, 2, criticalSamples)
}

func TestMemoryWorker_WarningAlertsOnTransitionFromNormal(t *testing.T) {
	sink := &stubAlertSink{}
	worker := newTestMemoryWorker(sink, tinyMB, hugeMB, nil)

	worker.sample()
	worker.sample()

	alerts := sink.raised()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSeverityWarning, alerts[0].Severity)
	assert.Equal(t, "warning", worker.lastLevel)
}

func TestMemoryWorker_RecoversToNormal(t *testing.T) {
	sink := &stubAlertSink{}
	worker := newTestMemoryWorker(sink, tinyMB, 2*tinyMB, nil)

	worker.sample()
	require.Equal(t, "critical", worker.lastLevel)

	// Raise the thresholds out of reach and sample again.
	worker.thresholdMB = hugeMB
	worker.criticalMB = hugeMB
	worker.sample()

	assert.Equal(t, "normal", worker.lastLevel)
	assert.Len(t, sink.raised(), 1)
}

func TestMemoryWorker_NilSinkDoesNotPanic(t *testing.T) {
	worker := newTestMemoryWorker(nil, tinyMB, 2*tinyMB, nil)

	worker.sample()
	assert.Equal(t, "critical", worker.lastLevel)
}

func TestMemoryWorker_StartStop(t *testing.T) {
	sink := &stubAlertSink{}
	worker := newTestMemoryWorker(sink, hugeMB, hugeMB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))
	assert.True(t, worker.IsRunning())

	time.Sleep(60 * time.Millisecond)

	cancel()
	require.NoError(t, worker.Stop(ctx))
	assert.False(t, worker.IsRunning())

	assert.GreaterOrEqual(t, worker.Stats().JobsSucceeded, int64(1))
}

func TestNewGCWorker_DefaultInterval(t *testing.T) {
	worker := NewGCWorker(GCWorkerConfig{
		WorkerConfig: DefaultWorkerConfig("gc"),
	})

	assert.Equal(t, "gc", worker.Name())
	assert.Equal(t, 5*time.Minute, worker.interval)
}

func TestGCWorker_TickPrunesAgedAlerts(t *testing.T) {
	pruner := &stubAlertPruner{}
	worker := NewGCWorker(GCWorkerConfig{
		WorkerConfig: WorkerConfig{
			WorkerName:      "test-gc",
			ShutdownTimeout: 2 * time.Second,
		},
		Logger: &MockLogger{},
		Pruner: pruner,
	})

	worker.tick()

	assert.Equal(t, []time.Duration{24 * time.Hour}, pruner.pruned())
	assert.Equal(t, int64(1), worker.Stats().JobsSucceeded)
}

func TestGCWorker_TickWithoutPruner(t *testing.T) {
	worker := NewGCWorker(GCWorkerConfig{
		WorkerConfig: DefaultWorkerConfig("test-gc"),
		Logger:       &MockLogger{},
	})

	worker.tick()
	assert.Equal(t, int64(1), worker.Stats().JobsSucceeded)
}

func TestGCWorker_StartStop(t *testing.T) {
	pruner := &stubAlertPruner{}
	worker := NewGCWorker(GCWorkerConfig{
		WorkerConfig: WorkerConfig{
			WorkerName:      "test-gc",
			ShutdownTimeout: 2 * time.Second,
		},
		Logger:   &MockLogger{},
		Pruner:   pruner,
		Interval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))
	time.Sleep(60 * time.Millisecond)

	cancel()
	require.NoError(t, worker.Stop(ctx))

	assert.NotEmpty(t, pruner.pruned())
}
