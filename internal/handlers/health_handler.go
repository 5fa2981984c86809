package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"zerorag/internal/models"
	"zerorag/internal/services"

	"github.com/gorilla/mux"
)

// ErrDegraded marks a probe result as degraded rather than down. Probes
// wrap it when the component still serves requests in a reduced mode.
var ErrDegraded = errors.New("degraded")

// HealthProbe checks one dependency. nil means healthy, an error wrapping
// ErrDegraded means degraded, any other error means unhealthy.
type HealthProbe func(ctx context.Context) error

const probeTimeout = 5 * time.Second

type namedProbe struct {
	name  string
	probe HealthProbe
}

// HealthHandler serves service metadata, health checks, and metrics
type HealthHandler struct {
	version   string
	startedAt time.Time
	requests  *RequestMetrics

	mu       sync.Mutex
	probes   []namedProbe
	failures map[string]int
	sources  map[string]func() interface{}

	responder
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, requests *RequestMetrics, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startedAt: time.Now(),
		requests:  requests,
		failures:  make(map[string]int),
		sources:   make(map[string]func() interface{}),
		responder: responder{logger: logger},
	}
}

// AddProbe registers a component health check under the given name
func (h *HealthHandler) AddProbe(name string, probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, namedProbe{name: name, probe: probe})
}

// AddMetricsSource registers a named stats producer for the metrics endpoint
func (h *HealthHandler) AddMetricsSource(name string, source func() interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[name] = source
}

// ServiceInfo is the metadata returned by the root endpoint
type ServiceInfo struct {
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Docs          string            `json:"docs"`
	Endpoints     map[string]string `json:"endpoints"`
}

// Home returns service metadata
// @Summary Service metadata
// @Description Get the service name, version, and endpoint map
// @Tags health
// @Produce json
// @Success 200 {object} ServiceInfo
// @Router / [get]
func (h *HealthHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, ServiceInfo{
		Service:       "zerorag",
		Version:       h.version,
		Description:   "Document ingestion and retrieval-augmented query answering",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Docs:          "/swagger/",
		Endpoints: map[string]string{
			"health":    "/health",
			"metrics":   "/metrics",
			"documents": "/documents",
			"query":     "/query",
			"stream":    "/query/stream",
		},
	})
}

// Ping is a minimal liveness check
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health/ping [get]
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports aggregated component health
// @Summary Aggregated health
// @Description Check every dependency and report the overall state
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthReport
// @Failure 503 {object} models.HealthReport
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.runChecks(r.Context())

	status := http.StatusOK
	if report.State == models.HealthStateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.sendJSON(w, status, report)
}

// ServiceHealth reports health for a single component
// @Summary Single component health
// @Tags health
// @Produce json
// @Param name path string true "Component name"
// @Success 200 {object} models.ComponentHealth
// @Failure 404 {object} ErrorResponse
// @Router /health/services/{name} [get]
func (h *HealthHandler) ServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	h.mu.Lock()
	var found *namedProbe
	for i := range h.probes {
		if h.probes[i].name == name {
			found = &h.probes[i]
			break
		}
	}
	h.mu.Unlock()

	if found == nil {
		h.sendErrorMessage(w, http.StatusNotFound, "NOT_FOUND", "unknown service: "+name)
		return
	}

	component := h.check(r.Context(), *found)
	status := http.StatusOK
	if component.State == models.HealthStateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.sendJSON(w, status, component)
}

// MetricsResponse aggregates request counters and per-service statistics
type MetricsResponse struct {
	TotalRequests  int64                  `json:"total_requests"`
	FailedRequests int64                  `json:"failed_requests"`
	SuccessRate    float64                `json:"success_rate"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	Memory         models.MemoryStats     `json:"memory"`
	Services       map[string]interface{} `json:"services"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Metrics reports request counters and per-service statistics
// @Summary Service metrics
// @Description Get request counters plus stats from every registered source
// @Tags health
// @Produce json
// @Success 200 {object} MetricsResponse
// @Router /metrics [get]
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	total, failed, successRate := h.requests.Snapshot()

	h.mu.Lock()
	stats := make(map[string]interface{}, len(h.sources))
	for name, source := range h.sources {
		stats[name] = source()
	}
	h.mu.Unlock()

	h.sendJSON(w, http.StatusOK, MetricsResponse{
		TotalRequests:  total,
		FailedRequests: failed,
		SuccessRate:    successRate,
		UptimeSeconds:  time.Since(h.startedAt).Seconds(),
		Memory:         services.ReadMemoryStats(),
		Services:       stats,
		Timestamp:      time.Now().UTC(),
	})
}

// runChecks probes every component concurrently and aggregates the results
func (h *HealthHandler) runChecks(ctx context.Context) models.HealthReport {
	h.mu.Lock()
	probes := make([]namedProbe, len(h.probes))
	copy(probes, h.probes)
	h.mu.Unlock()

	components := make(map[string]models.ComponentHealth, len(probes))
	results := make(chan models.ComponentHealth, len(probes))
	for _, np := range probes {
		go func(np namedProbe) {
			results <- h.check(ctx, np)
		}(np)
	}
	for range probes {
		c := <-results
		components[c.Name] = c
	}

	state := models.HealthStateHealthy
	score := 0
	for _, c := range components {
		state = state.Worst(c.State)
		switch c.State {
		case models.HealthStateHealthy:
			score += 100
		case models.HealthStateDegraded:
			score += 50
		}
	}
	if len(components) > 0 {
		score /= len(components)
	} else {
		score = 100
	}

	return models.HealthReport{
		State:      state,
		Score:      score,
		Components: components,
		Version:    h.version,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		CheckedAt:  time.Now().UTC(),
	}
}

// check runs one probe with a timeout and tracks consecutive failures
func (h *HealthHandler) check(ctx context.Context, np namedProbe) models.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	started := time.Now()
	err := np.probe(ctx)
	elapsed := time.Since(started)

	component := models.ComponentHealth{
		Name:           np.name,
		State:          models.HealthStateHealthy,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		LastCheck:      time.Now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		component.ErrorMessage = err.Error()
		if errors.Is(err, ErrDegraded) {
			component.State = models.HealthStateDegraded
		} else {
			component.State = models.HealthStateUnhealthy
		}
		h.failures[np.name]++
		component.ConsecutiveFailures = h.failures[np.name]
		if component.ConsecutiveFailures == 1 {
			h.logger.Printf("⚠️ Health check failed for %s: %v", np.name, err)
		} else if component.ConsecutiveFailures%3 == 0 {
			h.logger.Printf("❌ Health check for %s failing repeatedly (%d consecutive): %v",
				np.name, component.ConsecutiveFailures, err)
		}
	} else {
		h.failures[np.name] = 0
	}

	return component
}
