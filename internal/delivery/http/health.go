package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RegistryHealthChecker reports how many live account connections exist
type RegistryHealthChecker interface {
	ActiveCount() int
}

// OrchestratorHealthChecker reports transfer scheduler load
type OrchestratorHealthChecker interface {
	RunningCount() int
	QueuedCount() int
}

// PublisherHealthChecker reports event publisher connectivity
type PublisherHealthChecker interface {
	IsHealthy() bool
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles HTTP health check requests. The registry and
// orchestrator are always present; the publisher is nil when event
// publishing is disabled and is then excluded from the report.
type HealthHandler struct {
	registry     RegistryHealthChecker
	orchestrator OrchestratorHealthChecker
	publisher    PublisherHealthChecker
	logger       zerolog.Logger
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(
	registry RegistryHealthChecker,
	orchestrator OrchestratorHealthChecker,
	publisher PublisherHealthChecker,
	logger zerolog.Logger,
) *HealthHandler {
	return &HealthHandler{
		registry:     registry,
		orchestrator: orchestrator,
		publisher:    publisher,
		logger:       logger,
	}
}

// ServeHTTP implements http.Handler interface
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := h.checkComponents(ctx)
	status := h.determineOverallStatus(components)

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}

	statusCode := http.StatusOK
	if status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	logEvent := h.logger.Debug()
	if status == HealthStatusUnhealthy {
		logEvent = h.logger.Warn()
	} else if status == HealthStatusDegraded {
		logEvent = h.logger.Info()
	}
	logEvent.
		Str("status", string(status)).
		Int("status_code", statusCode).
		Interface("components", components).
		Msg("Health check completed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Headers already sent, only log encode failures
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode health check response")
	}
}

// checkComponents checks health of all engine components
func (h *HealthHandler) checkComponents(ctx context.Context) []ComponentHealth {
	components := make([]ComponentHealth, 0, 3)

	select {
	case <-ctx.Done():
		return []ComponentHealth{{
			Name:    "health_check",
			Healthy: false,
			Message: "Health check timeout",
		}}
	default:
	}

	accountCount := h.registry.ActiveCount()
	accountHealthy := accountCount > 0
	accountMsg := ""
	if !accountHealthy {
		accountMsg = "No connected accounts"
	}
	components = append(components, ComponentHealth{
		Name:    "accounts",
		Healthy: accountHealthy,
		Message: accountMsg,
	})

	// The orchestrator is healthy as long as it is accepting work; load
	// numbers are informational
	components = append(components, ComponentHealth{
		Name:    "orchestrator",
		Healthy: true,
	})

	if h.publisher != nil {
		publisherHealthy := h.publisher.IsHealthy()
		publisherMsg := ""
		if !publisherHealthy {
			publisherMsg = "Event publisher is not healthy"
		}
		components = append(components, ComponentHealth{
			Name:    "event_publisher",
			Healthy: publisherHealthy,
			Message: publisherMsg,
		})
	}

	return components
}

// determineOverallStatus determines overall health status based on component health
func (h *HealthHandler) determineOverallStatus(components []ComponentHealth) HealthStatus {
	allHealthy := true
	anyHealthy := false

	for _, component := range components {
		if !component.Healthy {
			allHealthy = false
		} else {
			anyHealthy = true
		}
	}

	if allHealthy {
		return HealthStatusHealthy
	} else if anyHealthy {
		return HealthStatusDegraded
	}

	return HealthStatusUnhealthy
}
