package api

import (
	"github.com/gin-gonic/gin"

	"github.com/leadlink/conversions/internal/telemetry"
)

// SetupRoutes configures all API routes.
// Health routes are registered by the server builder.
func SetupRoutes(router *gin.Engine, handlers Handlers) {
	router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// Public surface: provider webhooks and the thank-you redirect.
	router.POST("/webhooks/:provider", handlers.Webhook.HandleWebhook)
	router.GET("/track", handlers.Track.HandleTrack)

	// Scheduler callbacks; authenticated by signature, not by network
	// position.
	internalGroup := router.Group("/internal")
	internalGroup.POST("/sweep", handlers.Sweep.HandleSweep)
}
