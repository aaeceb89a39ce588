// Package api assembles the HTTP surface of the conversions service.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadlink/conversions/internal/config"
	"github.com/leadlink/conversions/internal/handler"
	"github.com/leadlink/conversions/internal/httpserver"
	"github.com/leadlink/conversions/internal/logger"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Handlers bundles the service's route handlers.
type Handlers struct {
	Webhook *handler.WebhookHandler
	Track   *handler.TrackHandler
	Sweep   *handler.SweepHandler
}

// HealthPings holds the dependency ping functions for health checks. DBPing
// may be nil when the event log database is not configured.
type HealthPings struct {
	CachePing func() error
	DBPing    func() error
}

// NewServer creates the HTTP server with all routes and health checks.
func NewServer(
	handlers Handlers,
	pings HealthPings,
	cfg *config.Config,
	log logger.Logger,
) *httpserver.Server {
	builder := httpserver.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout).
		WithCacheHealthCheck(pings.CachePing).
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, handlers)
		})

	if pings.DBPing != nil {
		builder = builder.WithDatabaseHealthCheck(pings.DBPing)
	}

	return builder.Build()
}
