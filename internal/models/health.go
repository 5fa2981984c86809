package models

import (
	"time"
)

// HealthState summarizes the condition of a component or the whole system
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// Worst returns the more severe of two states
func (s HealthState) Worst(other HealthState) HealthState {
	rank := func(v HealthState) int {
		switch v {
		case HealthStateUnhealthy:
			return 2
		case HealthStateDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(other) > rank(s) {
		return other
	}
	return s
}

// ComponentHealth describes one dependency's health
type ComponentHealth struct {
	Name                string      `json:"name"`
	State               HealthState `json:"state"`
	ResponseTimeMs      float64     `json:"response_time_ms"`
	ErrorMessage        string      `json:"error_message,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastCheck           time.Time   `json:"last_check"`
}

// HealthReport aggregates component health for the health endpoint
type HealthReport struct {
	State      HealthState                `json:"state"`
	Score      int                        `json:"score"` // 0-100
	Components map[string]ComponentHealth `json:"components"`
	Version    string                     `json:"version,omitempty"`
	UptimeSecs float64                    `json:"uptime_seconds"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// AlertSeverity ranks performance alerts
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// PerformanceAlert records a threshold crossing worth surfacing
type PerformanceAlert struct {
	Type      string        `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}

// MemoryStats is a point-in-time snapshot of process memory usage
type MemoryStats struct {
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
	HeapSysMB     float64   `json:"heap_sys_mb"`
	HeapObjects   uint64    `json:"heap_objects"`
	StackInUseMB  float64   `json:"stack_in_use_mb"`
	NumGC         uint32    `json:"num_gc"`
	NumGoroutines int       `json:"num_goroutines"`
	Timestamp     time.Time `json:"timestamp"`
}
