package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pdfpool/models"
)

// Version is reported by the health endpoint and the CLI.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" when no worker is healthy or the pool is shutting down.
func Health(r Renderer, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := r.Stats()

		status := "healthy"
		if stats.HealthyWorkers == 0 || stats.ShuttingDown {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}

// Stats returns a handler for GET /api/v1/stats.
func Stats(r Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, r.Stats())
	}
}
