// Package api exposes the HTTP and WebSocket surface.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetwatch/internal/logging"
)

// NewRouter builds the gin engine. Optional dependencies left nil make their
// routes answer 503.
func NewRouter(deps Deps, logger *logging.Logger, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(deps, logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group(basePath)
	{
		// Events
		api.GET("/events/recent", h.GetRecentEvents)

		// Alerts
		api.GET("/alerts/active", h.GetActiveAlerts)
		api.GET("/alerts/history", h.GetAlertHistory)
		api.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)

		// Channels
		api.POST("/channels/reload", h.ReloadChannels)

		// Tasks
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks/:id", h.GetTask)
		api.DELETE("/tasks/:id", h.CancelTask)
	}
	return r
}
