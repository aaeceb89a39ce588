package httpserver

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	// HealthStatusHealthy indicates the service is healthy.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the service is degraded but functional.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the service is unhealthy.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the health check response format.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of an individual health check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker performs one dependency check.
type HealthChecker func() CheckResult

var healthState = struct {
	sync.Once
	startTime time.Time
}{}

func initStartTime() {
	healthState.Do(func() {
		healthState.startTime = time.Now()
	})
}

// registerHealthRoutes adds GET and HEAD /health to the router.
func registerHealthRoutes(router *gin.Engine, serviceName, version string, checks map[string]HealthChecker) {
	initStartTime()

	router.GET("/health", healthHandler(serviceName, version, checks))
	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}

func healthHandler(serviceName, version string, checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: serviceName,
			Version: version,
			Uptime:  formatUptime(time.Since(healthState.startTime)),
		}

		if len(checks) > 0 {
			response.Checks = make(map[string]CheckResult, len(checks))
			for name, checker := range checks {
				result := checker()
				response.Checks[name] = result

				switch result.Status {
				case HealthStatusUnhealthy:
					response.Status = HealthStatusUnhealthy
				case HealthStatusDegraded:
					if response.Status == HealthStatusHealthy {
						response.Status = HealthStatusDegraded
					}
				}
			}
		}

		statusCode := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	}
}

func formatUptime(d time.Duration) string {
	const hoursPerDay = 24

	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// DatabaseHealthChecker checks database connectivity. A failing database
// makes the service unhealthy.
func DatabaseHealthChecker(pingFunc func() error) HealthChecker {
	return func() CheckResult {
		start := time.Now()
		err := pingFunc()
		latency := time.Since(start)

		if err != nil {
			return CheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "Database connection failed",
				Latency: latency.String(),
			}
		}
		return CheckResult{
			Status:  HealthStatusHealthy,
			Message: "Database connection OK",
			Latency: latency.String(),
		}
	}
}

// CacheHealthChecker checks attribution cache connectivity. A failing cache
// degrades reconciliation but redirects still work, so the service reports
// degraded rather than unhealthy.
func CacheHealthChecker(pingFunc func() error) HealthChecker {
	return func() CheckResult {
		start := time.Now()
		err := pingFunc()
		latency := time.Since(start)

		if err != nil {
			return CheckResult{
				Status:  HealthStatusDegraded,
				Message: "Cache connection failed",
				Latency: latency.String(),
			}
		}
		return CheckResult{
			Status:  HealthStatusHealthy,
			Message: "Cache connection OK",
			Latency: latency.String(),
		}
	}
}
