package api

import (
	"context"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/version"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	nanosecondsToMilliseconds = 1e6
	dependencyCheckTimeout    = 3 * time.Second
)

// DependencyCheck probes one external dependency.
type DependencyCheck func(ctx context.Context) error

// DependencyStatus is the result of one DependencyCheck.
type DependencyStatus struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	ResponseTime string `json:"response_time"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version"`
	OpenBreakers []string                    `json:"open_breakers"`
	DegradedKeys int                         `json:"degraded_keys"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// HealthHandler reports breaker, degradation and dependency health.
type HealthHandler struct {
	service inbound.RecoveryService
	checks  map[string]DependencyCheck
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(service inbound.RecoveryService, checks map[string]DependencyCheck) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// GetHealth handles GET /health. A failing dependency answers 503; open breakers
// or degraded keys answer 200 with status degraded.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := HealthResponse{
		Status:       StatusHealthy,
		Timestamp:    start.UTC(),
		Version:      version.NewVersionInfo().Version,
		OpenBreakers: []string{},
		DegradedKeys: len(h.service.DegradedKeys()),
		Dependencies: h.checkDependencies(r.Context()),
	}
	for _, breaker := range h.service.ListBreakers() {
		if breaker.State != valueobject.CircuitClosed {
			response.OpenBreakers = append(response.OpenBreakers, breaker.Name)
		}
	}

	if len(response.OpenBreakers) > 0 || response.DegradedKeys > 0 {
		response.Status = StatusDegraded
	}
	for _, dependency := range response.Dependencies {
		if dependency.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		}
	}

	w.Header().Set("X-Health-Check-Duration",
		fmt.Sprintf("%.2fms", float64(time.Since(start).Nanoseconds())/nanosecondsToMilliseconds))

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, statusCode, response); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Health check response encoding failed"))
	}
}

func (h *HealthHandler) checkDependencies(ctx context.Context) map[string]DependencyStatus {
	if len(h.checks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, dependencyCheckTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		statuses = make(map[string]DependencyStatus, len(h.checks))
		g        errgroup.Group
	)
	for name, check := range h.checks {
		g.Go(func() error {
			started := time.Now()
			err := check(ctx)
			status := DependencyStatus{
				Status:       StatusHealthy,
				ResponseTime: time.Since(started).String(),
			}
			if err != nil {
				status.Status = StatusUnhealthy
				status.Message = err.Error()
			}
			mu.Lock()
			statuses[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}
